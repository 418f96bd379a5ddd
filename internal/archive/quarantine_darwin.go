//go:build darwin

package archive

import (
	"errors"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const quarantineAttr = "com.apple.quarantine"

// ClearQuarantine removes the Gatekeeper quarantine attribute from root
// and everything below it.
func ClearQuarantine(root string) error {
	var errs []error
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if err := unix.Lremovexattr(path, quarantineAttr); err != nil && !errors.Is(err, unix.ENOATTR) {
			errs = append(errs, &fs.PathError{Op: "removexattr", Path: path, Err: err})
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}
