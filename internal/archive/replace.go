package archive

import (
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
)

// StagingDir returns the sibling directory extraction for final uses.
func StagingDir(final string) string {
	return filepath.Clean(final) + ".staging"
}

// PrepareStaging removes any leftover staging directory for final and
// creates an empty one.
func PrepareStaging(final string) (string, error) {
	staging := StagingDir(final)
	if err := os.RemoveAll(staging); err != nil {
		return "", fault.Filesystem("remove stale staging dir", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fault.Filesystem("create staging dir", err)
	}
	return staging, nil
}

// ReplaceDir swaps staging into final, removing whatever final held.
func ReplaceDir(staging, final string) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fault.Filesystem("create parent of "+final, err)
	}
	if err := os.RemoveAll(final); err != nil {
		return fault.Filesystem("remove previous "+final, err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fault.Filesystem("move staging into "+final, err)
	}
	return nil
}
