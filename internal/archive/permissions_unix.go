//go:build !windows

package archive

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// RepairPermissions marks every regular file under root executable
// (0755). Symlinks are not followed. Failures are collected and returned
// after the walk completes.
func RepairPermissions(root string) error {
	var errs []error
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := os.Chmod(path, 0o755); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}
