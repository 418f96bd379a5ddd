package provision

import (
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/supervisor"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/transaction"
)

// AssetStatus describes one installable payload.
type AssetStatus struct {
	Installed   bool                 `json:"installed" yaml:"installed"`
	Path        string               `json:"path,omitempty" yaml:"path,omitempty"`
	LastAttempt *transaction.Attempt `json:"last_attempt,omitempty" yaml:"last_attempt,omitempty"`
}

// Status is a snapshot of the installation and the supervised process.
type Status struct {
	DataDir     string            `json:"data_dir" yaml:"data_dir"`
	Platform    string            `json:"platform" yaml:"platform"`
	Runtime     AssetStatus       `json:"runtime" yaml:"runtime"`
	Application AssetStatus       `json:"application" yaml:"application"`
	Process     supervisor.Status `json:"process" yaml:"process"`
}

// Status reports what is installed, the last install attempts and the
// process slot.
func (o *Orchestrator) Status() Status {
	st := Status{
		DataDir:  o.layout.Root,
		Platform: o.info.String(),
		Process:  o.sup.Status(),
	}

	if p, ok := o.Interpreter(); ok {
		st.Runtime = AssetStatus{Installed: true, Path: p}
	}
	if o.IsInstalled() {
		st.Application = AssetStatus{Installed: true, Path: o.layout.Entrypoint()}
	}
	st.Runtime.LastAttempt = o.lastAttempt(RuntimeAsset)
	st.Application.LastAttempt = o.lastAttempt(BundleAsset)
	return st
}

func (o *Orchestrator) lastAttempt(asset string) *transaction.Attempt {
	a, err := transaction.Load(o.layout.InstallDir(), asset)
	if err != nil {
		o.logger.Warn("read install attempt", "asset", asset, "error", err)
		return nil
	}
	return a
}
