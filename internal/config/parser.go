package config

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseFile reads and parses the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), MaxConfigSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global n8nbox table over the defaults.
// A script that never assigns n8nbox yields the defaults.
func extractConfig(L *lua.LState) (*Config, error) {
	cfg := Default()

	root := L.GetGlobal(luaGlobal)
	switch root.Type() {
	case lua.LTNil:
		return cfg, cfg.Validate()
	case lua.LTTable:
	default:
		return nil, &ParseError{
			Message: "invalid 'n8nbox' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}
	table := root.(*lua.LTable)

	var err error
	if cfg.DataDir, err = optString(table, luaFieldDataDir, cfg.DataDir); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = optString(table, luaFieldLogLevel, cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.Channel, err = optString(table, luaFieldChannel, cfg.Channel); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = optString(table, luaFieldMetrics, cfg.MetricsAddr); err != nil {
		return nil, err
	}

	if rt, err := optTable(table, luaFieldRuntime); err != nil {
		return nil, err
	} else if rt != nil {
		if err := extractRuntime(rt, &cfg.Runtime); err != nil {
			return nil, err
		}
	}

	if app, err := optTable(table, luaFieldApp); err != nil {
		return nil, err
	} else if app != nil {
		if err := extractApplication(app, &cfg.Application); err != nil {
			return nil, err
		}
	}

	if srv, err := optTable(table, luaFieldServer); err != nil {
		return nil, err
	} else if srv != nil {
		if cfg.Server.Host, err = optString(srv, luaFieldHost, cfg.Server.Host); err != nil {
			return nil, err
		}
		if cfg.Server.Port, err = optInt(srv, luaFieldPort, cfg.Server.Port); err != nil {
			return nil, err
		}
	}

	if env, err := optTable(table, luaFieldEnv); err != nil {
		return nil, err
	} else if env != nil {
		m, err := stringMap(env, luaFieldEnv)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			cfg.Env[k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractRuntime(table *lua.LTable, rt *RuntimeConfig) error {
	var err error
	if rt.Version, err = optString(table, luaFieldVersion, rt.Version); err != nil {
		return err
	}
	if rt.Mirror, err = optString(table, luaFieldMirror, rt.Mirror); err != nil {
		return err
	}
	if rt.VerifyChecksums, err = optBool(table, luaFieldVerify, rt.VerifyChecksums); err != nil {
		return err
	}
	if rt.Keyring, err = optString(table, luaFieldKeyring, rt.Keyring); err != nil {
		return err
	}
	return nil
}

func extractApplication(table *lua.LTable, app *ApplicationConfig) error {
	var err error
	if app.ReleaseURL, err = optString(table, luaFieldReleaseURL, app.ReleaseURL); err != nil {
		return err
	}
	if app.ManifestURL, err = optString(table, luaFieldManifest, app.ManifestURL); err != nil {
		return err
	}
	proxies, err := optTable(table, luaFieldProxies)
	if err != nil {
		return err
	}
	if proxies != nil {
		m, err := stringMap(proxies, luaFieldApp+"."+luaFieldProxies)
		if err != nil {
			return err
		}
		// A proxies table replaces the default channel set.
		app.Proxies = m
	}
	return nil
}

// optString returns the string at key, or def when the key is nil.
func optString(table *lua.LTable, key, def string) (string, error) {
	v := table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return def, nil
	case lua.LTString:
		return v.String(), nil
	default:
		return "", typeError(key, "string", v)
	}
}

func optInt(table *lua.LTable, key string, def int) (int, error) {
	v := table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return def, nil
	case lua.LTNumber:
		n := float64(v.(lua.LNumber))
		if n != float64(int(n)) {
			return 0, &ParseError{Message: fmt.Sprintf("invalid '%s'", key), Detail: fmt.Sprintf("expected integer, got %v", n)}
		}
		return int(n), nil
	default:
		return 0, typeError(key, "number", v)
	}
}

func optBool(table *lua.LTable, key string, def bool) (bool, error) {
	v := table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return def, nil
	case lua.LTBool:
		return bool(v.(lua.LBool)), nil
	default:
		return false, typeError(key, "boolean", v)
	}
}

func optTable(table *lua.LTable, key string) (*lua.LTable, error) {
	v := table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return nil, nil
	case lua.LTTable:
		return v.(*lua.LTable), nil
	default:
		return nil, typeError(key, "table", v)
	}
}

// stringMap converts a Lua table of string keys to string values.
func stringMap(table *lua.LTable, field string) (map[string]string, error) {
	out := make(map[string]string)
	var bad *ParseError
	table.ForEach(func(k, v lua.LValue) {
		if bad != nil {
			return
		}
		if k.Type() != lua.LTString {
			bad = &ParseError{Message: fmt.Sprintf("invalid '%s'", field), Detail: fmt.Sprintf("expected string keys, got %s", k.Type())}
			return
		}
		switch v.Type() {
		case lua.LTString:
			out[k.String()] = v.String()
		case lua.LTNumber, lua.LTBool:
			out[k.String()] = v.String()
		default:
			bad = &ParseError{Message: fmt.Sprintf("invalid '%s.%s'", field, k.String()), Detail: fmt.Sprintf("expected string, got %s", v.Type())}
		}
	})
	if bad != nil {
		return nil, bad
	}
	return out, nil
}

func typeError(key, want string, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid '%s'", key),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// sortedKeys returns map keys in lexical order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
