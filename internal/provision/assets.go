package provision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
)

// AssetKind distinguishes the two installable payloads.
type AssetKind int

const (
	Runtime AssetKind = iota
	ApplicationBundle
)

func (k AssetKind) String() string {
	if k == ApplicationBundle {
		return "application"
	}
	return "runtime"
}

// Asset names double as progress labels and lock names.
const (
	RuntimeAsset = "runtime"
	BundleAsset  = "n8n-core"
)

// AssetSpec is one immutable install target.
type AssetSpec struct {
	Name            string
	SourceURL       string
	DestinationPath string
	Kind            AssetKind
}

// runtimeArchives lists the supported Node.js release archives by
// GOOS/GOARCH.
var runtimeArchives = map[string]string{
	"darwin/arm64":  "tar.gz",
	"darwin/amd64":  "tar.gz",
	"windows/amd64": "zip",
	"linux/amd64":   "tar.gz",
	"linux/arm64":   "tar.gz",
}

// RuntimeFileName returns the Node.js archive name for version on info,
// e.g. node-v20.19.0-darwin-arm64.tar.gz.
func RuntimeFileName(version string, info *platform.Info) (string, error) {
	ext, ok := runtimeArchives[info.OS+"/"+info.Arch]
	if !ok {
		return "", fmt.Errorf("no Node.js build for %s/%s", info.OS, info.Arch)
	}
	nodeOS, err := platform.NodeOS(info.OS)
	if err != nil {
		return "", err
	}
	nodeArch, err := platform.NodeArch(info.Arch)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("node-%s-%s-%s.%s", version, nodeOS, nodeArch, ext), nil
}

// RuntimeSpec returns the runtime asset for cfg on info.
func RuntimeSpec(cfg *config.Config, info *platform.Info, layout Layout) (AssetSpec, error) {
	file, err := RuntimeFileName(cfg.Runtime.Version, info)
	if err != nil {
		return AssetSpec{}, err
	}
	return AssetSpec{
		Name:            RuntimeAsset,
		SourceURL:       strings.TrimRight(cfg.Runtime.Mirror, "/") + "/" + cfg.Runtime.Version + "/" + file,
		DestinationPath: layout.RuntimeDir(),
		Kind:            Runtime,
	}, nil
}

// BundleFileName returns the platform bundle asset name, e.g.
// n8n-core-macos.zip.
func BundleFileName(info *platform.Info) string {
	return "n8n-core-" + info.BundlePlatform() + ".zip"
}

// BundleSpec returns the application bundle asset for cfg on info. The
// destination is the kept zip, not the extracted directory.
func BundleSpec(cfg *config.Config, info *platform.Info, layout Layout) AssetSpec {
	file := BundleFileName(info)
	return AssetSpec{
		Name:            BundleAsset,
		SourceURL:       cfg.ProxyPrefix() + strings.TrimRight(cfg.Application.ReleaseURL, "/") + "/" + file,
		DestinationPath: layout.BundleZip(file),
		Kind:            ApplicationBundle,
	}
}

// Layout resolves well-known paths under the data root.
type Layout struct {
	Root string
}

func (l Layout) RuntimeDir() string { return filepath.Join(l.Root, "runtime") }
func (l Layout) CoreDir() string    { return filepath.Join(l.Root, "n8n-core") }
func (l Layout) UserDir() string    { return filepath.Join(l.Root, "n8n-data") }
func (l Layout) InstallDir() string { return filepath.Join(l.Root, ".install") }

// BundleZip is where the downloaded bundle is kept for reverification.
func (l Layout) BundleZip(file string) string { return filepath.Join(l.Root, file) }

// Entrypoint is the n8n CLI script inside the extracted bundle.
func (l Layout) Entrypoint() string {
	return filepath.Join(l.CoreDir(), "node_modules", "n8n", "bin", "n8n")
}
