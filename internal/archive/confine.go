package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxLinkHops = 40

var errEscapes = errors.New("path escapes destination")

// resolveInside walks rel from start one component at a time, following
// symlinks already on disk, and returns where it really lands. Every step
// must stay within root. Missing components are taken literally.
func resolveInside(root, start, rel string) (string, error) {
	cur := start
	pending := splitPath(rel)
	hops := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		switch name {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			next := filepath.Join(cur, name)
			fi, err := os.Lstat(next)
			if err != nil || fi.Mode()&os.ModeSymlink == 0 {
				cur = next
				break
			}
			if hops++; hops > maxLinkHops {
				return "", fmt.Errorf("%s: too many levels of symbolic links", rel)
			}
			link, err := os.Readlink(next)
			if err != nil {
				return "", err
			}
			if filepath.IsAbs(link) {
				return "", fmt.Errorf("%s: %w via absolute link %s", rel, errEscapes, next)
			}
			pending = append(splitPath(link), pending...)
		}

		if !within(root, cur) {
			return "", fmt.Errorf("%s: %w", rel, errEscapes)
		}
	}
	return cur, nil
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}

// within reports whether p is root or below it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}
