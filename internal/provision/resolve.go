package provision

import (
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
)

const maxSearchDepth = 8

// resolveStrategy looks for the interpreter under root.
type resolveStrategy func(root string, info *platform.Info) (string, bool)

// interpreterStrategies are tried in order; the first hit wins.
var interpreterStrategies = []resolveStrategy{
	directPath,
	searchTree,
}

// ResolveInterpreter finds the Node.js executable under root: first at
// its canonical location (bin/node, or node.exe on Windows), then by a
// bounded depth-first search for a regular file with that name.
func ResolveInterpreter(root string, info *platform.Info) (string, bool) {
	for _, s := range interpreterStrategies {
		if p, ok := s(root, info); ok {
			return p, true
		}
	}
	return "", false
}

func directPath(root string, info *platform.Info) (string, bool) {
	p := filepath.Join(root, filepath.FromSlash(info.InterpreterRelPath()))
	if isRegular(p) {
		return p, true
	}
	return "", false
}

func searchTree(root string, info *platform.Info) (string, bool) {
	return search(root, info.InterpreterName(), 0)
}

// search visits entries in lexical order, descending into real
// directories only.
func search(dir, name string, depth int) (string, bool) {
	if depth > maxSearchDepth {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if found, ok := search(p, name, depth+1); ok {
				return found, true
			}
			continue
		}
		if e.Name() == name && isRegular(p) {
			return p, true
		}
	}
	return "", false
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
