package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
	"github.com/hashicorp/go-hclog"
)

// DefaultPath returns the default launcher config location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "n8nbox", ConfigFileName), nil
}

// DefaultDataDir returns the platform application data root.
func DefaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, AppIdentifier), nil
}

// Loader resolves and parses the launcher config.
type Loader struct {
	parser *Parser
	logger hclog.Logger
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(detector platform.Detector, logger hclog.Logger) *Loader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Loader{parser: NewParser(detector), logger: logger}
}

// Load reads the config at path. An empty path falls back to
// N8NBOX_CONFIG and then DefaultPath. A missing file yields the defaults.
// N8NBOX_DATA_DIR overrides data_dir, and an empty data_dir resolves to
// DefaultDataDir.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := l.parser.ParseFile(ctx, path)
	switch {
	case err == nil:
		l.logger.Debug("loaded config", "path", path)
		l.warnSensitive(path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		l.logger.Debug("no config file, using defaults", "path", path)
		cfg = Default()
	default:
		return nil, err
	}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}
	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	cfg.DataDir, err = expandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) warnSensitive(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, f := range DetectSensitiveData(string(data)) {
		l.logger.Warn("config may contain a secret", "path", path, "line", f.Line, "kind", f.PatternName, "preview", f.Preview)
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
