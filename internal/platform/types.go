// Package platform detects the host OS and architecture and maps them to
// the naming schemes used by the runtime mirror and the application
// release assets.
//
// Detection uses runtime.GOOS/GOARCH for the basics and gopsutil for the
// Linux distribution, which is informational only. The detected Info is
// also exposed to Lua configuration files as a read-only platform table.
package platform

import (
	"context"
	"fmt"
)

// Go OS names this package understands.
const (
	OSLinux   = "linux"
	OSDarwin  = "darwin"
	OSWindows = "windows"
)

// Info contains platform detection information.
type Info struct {
	OS            string // "linux", "darwin", "windows"
	Arch          string // "amd64", "arm64" (normalized)
	ArchRaw       string // original GOARCH
	Distro        string // distro ID (Linux only, e.g. "ubuntu")
	DistroVersion string // distro version (Linux only, e.g. "22.04")
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == OSLinux
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == OSDarwin
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == OSWindows
}

// IsPOSIX returns true on platforms with POSIX permission bits and signals.
func (i *Info) IsPOSIX() bool {
	return !i.IsWindows()
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.OS == OSDarwin && i.Arch == "arm64"
}

// InterpreterName is the file name of the Node.js binary on this platform.
func (i *Info) InterpreterName() string {
	if i.IsWindows() {
		return "node.exe"
	}
	return "node"
}

// InterpreterRelPath is the canonical location of the interpreter inside
// an extracted runtime archive.
func (i *Info) InterpreterRelPath() string {
	if i.IsWindows() {
		return "node.exe"
	}
	return "bin/node"
}

// BundlePlatform is the platform token used in application asset names
// (n8n-core-<token>.zip).
func (i *Info) BundlePlatform() string {
	switch i.OS {
	case OSWindows:
		return "windows"
	case OSDarwin:
		return "macos"
	default:
		return i.OS
	}
}

// String returns "os/arch".
func (i *Info) String() string {
	return fmt.Sprintf("%s/%s", i.OS, i.Arch)
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. Used by tests and by callers that
// already know the target platform.
type StaticDetector struct {
	Info *Info
}

// Detect returns a copy of the fixed Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	if s.Info == nil {
		return nil, fmt.Errorf("static detector has no platform info")
	}
	info := *s.Info
	return &info, nil
}
