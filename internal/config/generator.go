package config

import (
	"bytes"
	"fmt"
	"strconv"
)

// Generator renders a Config as a launcher.lua document.
type Generator struct {
	indent string
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{indent: "  "}
}

// Generate renders cfg. Parsing the output yields an equal Config.
func (g *Generator) Generate(cfg *Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("-- n8nbox launcher configuration\n")
	buf.WriteString("-- The read-only `platform` table is available, e.g. platform.is_macos.\n\n")
	buf.WriteString(luaGlobal + " = {\n")

	if cfg.DataDir != "" {
		g.field(&buf, 1, luaFieldDataDir, quote(cfg.DataDir))
	}
	if cfg.LogLevel != "" {
		g.field(&buf, 1, luaFieldLogLevel, quote(cfg.LogLevel))
	}
	g.field(&buf, 1, luaFieldChannel, quote(cfg.Channel))
	if cfg.MetricsAddr != "" {
		g.field(&buf, 1, luaFieldMetrics, quote(cfg.MetricsAddr))
	}

	g.open(&buf, 1, luaFieldRuntime)
	g.field(&buf, 2, luaFieldVersion, quote(cfg.Runtime.Version))
	g.field(&buf, 2, luaFieldMirror, quote(cfg.Runtime.Mirror))
	g.field(&buf, 2, luaFieldVerify, strconv.FormatBool(cfg.Runtime.VerifyChecksums))
	if cfg.Runtime.Keyring != "" {
		g.field(&buf, 2, luaFieldKeyring, quote(cfg.Runtime.Keyring))
	}
	g.close(&buf, 1)

	g.open(&buf, 1, luaFieldApp)
	g.field(&buf, 2, luaFieldReleaseURL, quote(cfg.Application.ReleaseURL))
	g.field(&buf, 2, luaFieldManifest, quote(cfg.Application.ManifestURL))
	g.open(&buf, 2, luaFieldProxies)
	for _, k := range sortedKeys(cfg.Application.Proxies) {
		g.field(&buf, 3, luaKey(k), quote(cfg.Application.Proxies[k]))
	}
	g.close(&buf, 2)
	g.close(&buf, 1)

	g.open(&buf, 1, luaFieldServer)
	g.field(&buf, 2, luaFieldHost, quote(cfg.Server.Host))
	g.field(&buf, 2, luaFieldPort, strconv.Itoa(cfg.Server.Port))
	g.close(&buf, 1)

	if len(cfg.Env) > 0 {
		g.open(&buf, 1, luaFieldEnv)
		for _, k := range sortedKeys(cfg.Env) {
			g.field(&buf, 2, luaKey(k), quote(cfg.Env[k]))
		}
		g.close(&buf, 1)
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func (g *Generator) pad(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(g.indent)
	}
}

func (g *Generator) field(buf *bytes.Buffer, depth int, key, value string) {
	g.pad(buf, depth)
	fmt.Fprintf(buf, "%s = %s,\n", key, value)
}

func (g *Generator) open(buf *bytes.Buffer, depth int, key string) {
	g.pad(buf, depth)
	fmt.Fprintf(buf, "%s = {\n", key)
}

func (g *Generator) close(buf *bytes.Buffer, depth int) {
	g.pad(buf, depth)
	buf.WriteString("},\n")
}

// quote renders s as a Lua string literal.
func quote(s string) string {
	return strconv.Quote(s)
}

// luaKey renders k bare when it is a valid identifier, else as ["k"].
func luaKey(k string) string {
	if isIdent(k) {
		return k
	}
	return "[" + quote(k) + "]"
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	_, reserved := luaReserved[s]
	return !reserved
}

var luaReserved = map[string]struct{}{
	"and": {}, "break": {}, "do": {}, "else": {}, "elseif": {}, "end": {},
	"false": {}, "for": {}, "function": {}, "goto": {}, "if": {}, "in": {},
	"local": {}, "nil": {}, "not": {}, "or": {}, "repeat": {}, "return": {},
	"then": {}, "true": {}, "until": {}, "while": {},
}
