package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
)

// Flatten lifts the contents of a lone wrapper directory into destDir.
//
// It applies only when the immediate children of destDir are exactly one
// non-hidden directory plus any number of hidden entries; anything else
// is left untouched and Flatten reports false. Hidden siblings stay where
// they are unless the wrapper holds an entry of the same name, in which
// case the wrapper's copy replaces them.
func Flatten(destDir string) (bool, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return false, fault.Filesystem("read "+destDir, err)
	}

	var wrapper string
	visible := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		visible++
		if e.IsDir() {
			wrapper = e.Name()
		}
	}
	if visible != 1 || wrapper == "" {
		return false, nil
	}

	src := filepath.Join(destDir, wrapper)
	inner, err := os.ReadDir(src)
	if err != nil {
		return false, fault.Filesystem("read "+src, err)
	}

	// pkg/pkg would collide with the wrapper itself once moved up.
	for _, e := range inner {
		if e.Name() == wrapper {
			aside := filepath.Join(destDir, ".flatten-"+wrapper)
			if err := os.Rename(src, aside); err != nil {
				return false, fault.Filesystem("move wrapper aside", err)
			}
			src = aside
			break
		}
	}

	for _, e := range inner {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(destDir, e.Name())
		// Only hidden siblings can be in the way here.
		if err := os.RemoveAll(to); err != nil {
			return false, fault.Filesystem("replace "+e.Name(), err)
		}
		if err := os.Rename(from, to); err != nil {
			return false, fault.Filesystem("move "+e.Name(), err)
		}
	}

	if err := os.Remove(src); err != nil {
		return false, fault.Filesystem("remove wrapper "+src, err)
	}
	return true, nil
}
