package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
)

func TestResolveInterpreter(t *testing.T) {
	posix := &platform.Info{OS: platform.OSLinux, Arch: "amd64"}
	windows := &platform.Info{OS: platform.OSWindows, Arch: "amd64"}

	tests := []struct {
		name  string
		info  *platform.Info
		files []string
		dirs  []string
		want  string // relative to root, "" for not found
	}{
		{"canonical posix", posix, []string{"bin/node"}, nil, "bin/node"},
		{"canonical windows", windows, []string{"node.exe"}, nil, "node.exe"},
		{"nested wrapper", posix, []string{"node-v20.19.0-linux-x64/bin/node"}, nil, "node-v20.19.0-linux-x64/bin/node"},
		{"canonical wins over nested", posix, []string{"a/bin/node", "bin/node"}, nil, "bin/node"},
		{"lexical order", posix, []string{"b/node", "a/node"}, nil, "a/node"},
		{"directory named node is ignored", posix, nil, []string{"bin/node"}, ""},
		{"wrong platform name", posix, []string{"node.exe"}, nil, ""},
		{"empty", posix, nil, nil, ""},
		{"too deep", posix, []string{strings.Repeat("d/", maxSearchDepth+1) + "node"}, nil, ""},
		{"at depth limit", posix, []string{strings.Repeat("d/", maxSearchDepth) + "node"}, nil, strings.Repeat("d/", maxSearchDepth) + "node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, d := range tt.dirs {
				if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
					t.Fatal(err)
				}
			}
			for _, f := range tt.files {
				writeFile(t, filepath.Join(root, filepath.FromSlash(f)), "x", 0o755)
			}

			got, ok := ResolveInterpreter(root, tt.info)
			if tt.want == "" {
				if ok {
					t.Errorf("ResolveInterpreter() = %q, want not found", got)
				}
				return
			}
			if want := filepath.Join(root, filepath.FromSlash(tt.want)); !ok || got != want {
				t.Errorf("ResolveInterpreter() = %q, %v, want %q", got, ok, want)
			}
		})
	}
}

func TestResolveInterpreter_MissingRoot(t *testing.T) {
	if _, ok := ResolveInterpreter(filepath.Join(t.TempDir(), "absent"), &platform.Info{OS: platform.OSLinux}); ok {
		t.Error("found an interpreter under a missing root")
	}
}
