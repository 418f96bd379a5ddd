package platform

import (
	"fmt"
	"strings"
)

// normalizeArch converts GOARCH values to normalized architecture names.
// Only amd64 and arm64 have runtime builds.
func normalizeArch(arch string) (string, error) {
	switch strings.ToLower(arch) {
	case "amd64", "x86_64", "x64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (amd64 and arm64 only)", arch)
	}
}

// normalizeToken lowercases and trims a detected identifier.
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NodeArch maps a normalized architecture to the Node.js release token.
func NodeArch(arch string) (string, error) {
	switch arch {
	case "amd64":
		return "x64", nil
	case "arm64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture for node: %s", arch)
	}
}

// NodeOS maps a Go OS name to the Node.js release token.
func NodeOS(goos string) (string, error) {
	switch goos {
	case OSDarwin:
		return "darwin", nil
	case OSLinux:
		return "linux", nil
	case OSWindows:
		return "win", nil
	default:
		return "", fmt.Errorf("unsupported OS for node: %s", goos)
	}
}
