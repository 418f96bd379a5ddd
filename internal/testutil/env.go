// Package testutil provides utilities for testing n8nbox in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/logging"
)

// Env holds the isolated locations set up by SetupTestEnv.
type Env struct {
	Root       string
	ConfigPath string
	DataDir    string
}

// SetupTestEnv points the n8nbox environment variables at a fresh temp
// directory so tests never read the user's launcher.lua or write into
// the real data root. Cleanup is handled by t.TempDir.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:       tmpDir,
		ConfigPath: filepath.Join(tmpDir, "config", config.ConfigFileName),
		DataDir:    filepath.Join(tmpDir, "data"),
	}

	t.Setenv(config.EnvConfigPath, env.ConfigPath)
	t.Setenv(config.EnvDataDir, env.DataDir)
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvJSONLog, "")

	for _, dir := range []string{filepath.Dir(env.ConfigPath), env.DataDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}

// WriteConfig writes a launcher.lua with the given body to env.ConfigPath.
func (e Env) WriteConfig(t *testing.T, body string) {
	t.Helper()
	if err := os.WriteFile(e.ConfigPath, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}
