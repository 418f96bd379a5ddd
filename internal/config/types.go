package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config represents the complete launcher configuration.
type Config struct {
	DataDir     string            `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	LogLevel    string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Channel     string            `json:"channel" yaml:"channel"`
	MetricsAddr string            `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Runtime     RuntimeConfig     `json:"runtime" yaml:"runtime"`
	Application ApplicationConfig `json:"application" yaml:"application"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// RuntimeConfig selects the Node.js release and its source.
type RuntimeConfig struct {
	Version         string `json:"version" yaml:"version"`
	Mirror          string `json:"mirror" yaml:"mirror"`
	VerifyChecksums bool   `json:"verify_checksums" yaml:"verify_checksums"`
	Keyring         string `json:"keyring,omitempty" yaml:"keyring,omitempty"`
}

// ApplicationConfig locates the n8n bundle release and its manifest.
type ApplicationConfig struct {
	ReleaseURL  string            `json:"release_url" yaml:"release_url"`
	ManifestURL string            `json:"manifest_url" yaml:"manifest_url"`
	Proxies     map[string]string `json:"proxies" yaml:"proxies"`
}

// ServerConfig is where the supervised n8n process listens.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Channel: DefaultChannel,
		Runtime: RuntimeConfig{
			Version:         DefaultNodeVersion,
			Mirror:          DefaultNodeMirror,
			VerifyChecksums: true,
		},
		Application: ApplicationConfig{
			ReleaseURL:  DefaultReleaseURL,
			ManifestURL: DefaultManifestURL,
			Proxies: map[string]string{
				"cn":     "https://gh-proxy.com/",
				"global": "",
			},
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Env: map[string]string{},
	}
}

// ProxyPrefix returns the download URL prefix for the configured channel.
func (c *Config) ProxyPrefix() string {
	return c.Application.Proxies[c.Channel]
}

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Runtime.Version, "v") {
		return &ValidationError{Field: "runtime.version", Message: fmt.Sprintf("expected a release tag like v20.19.0, got %q", c.Runtime.Version)}
	}
	if err := validateHTTPURL(c.Runtime.Mirror); err != nil {
		return &ValidationError{Field: "runtime.mirror", Message: err.Error()}
	}
	if err := validateHTTPURL(c.Application.ReleaseURL); err != nil {
		return &ValidationError{Field: "application.release_url", Message: err.Error()}
	}
	if err := validateHTTPURL(c.Application.ManifestURL); err != nil {
		return &ValidationError{Field: "application.manifest_url", Message: err.Error()}
	}
	if _, ok := c.Application.Proxies[c.Channel]; !ok {
		return &ValidationError{Field: "channel", Message: fmt.Sprintf("no proxy entry for channel %q", c.Channel)}
	}
	for channel, prefix := range c.Application.Proxies {
		if prefix == "" {
			continue
		}
		if err := validateHTTPURL(prefix); err != nil {
			return &ValidationError{Field: "application.proxies." + channel, Message: err.Error()}
		}
	}
	if c.Server.Host == "" {
		return &ValidationError{Field: "server.host", Message: "host cannot be empty"}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: fmt.Sprintf("port %d out of range", c.Server.Port)}
	}
	for key := range c.Env {
		if key == "" || strings.ContainsAny(key, "= \t\n") {
			return &ValidationError{Field: "env", Message: fmt.Sprintf("invalid environment variable name %q", key)}
		}
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
