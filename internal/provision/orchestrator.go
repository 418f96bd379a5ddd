package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/archive"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/clock"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/download"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/metrics"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/supervisor"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/transaction"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/verify"
	"github.com/hashicorp/go-hclog"
)

// Options wires an Orchestrator. Config and Platform are required; every
// other field has a working default.
type Options struct {
	Config     *config.Config
	Platform   *platform.Info
	Logger     hclog.Logger
	Metrics    metrics.Metrics
	Observer   download.Observer
	HTTPClient *http.Client
	Supervisor *supervisor.Supervisor
	Clock      clock.Clock
	// Stdout and Stderr receive the n8n process output.
	Stdout io.Writer
	Stderr io.Writer
}

// Orchestrator runs the setup pipelines and launches n8n.
type Orchestrator struct {
	cfg    *config.Config
	info   *platform.Info
	layout Layout

	logger   hclog.Logger
	metrics  metrics.Metrics
	observer download.Observer
	client   *http.Client
	clock    clock.Clock
	stdout   io.Writer
	stderr   io.Writer

	engine    *download.Engine
	verifier  *verify.Verifier
	checksums *verify.ChecksumList
	sup       *supervisor.Supervisor
}

// NewOrchestrator builds an Orchestrator from opts.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("provision: config is required")
	}
	if opts.Platform == nil {
		return nil, errors.New("provision: platform is required")
	}
	if opts.Config.DataDir == "" {
		return nil, errors.New("provision: data dir is not set")
	}

	o := &Orchestrator{
		cfg:      opts.Config,
		info:     opts.Platform,
		layout:   Layout{Root: opts.Config.DataDir},
		logger:   opts.Logger,
		metrics:  metrics.OrNoop(opts.Metrics),
		observer: opts.Observer,
		client:   opts.HTTPClient,
		clock:    opts.Clock,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		sup:      opts.Supervisor,
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}
	if o.observer == nil {
		o.observer = download.NopObserver{}
	}
	if o.client == nil {
		o.client = http.DefaultClient
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}

	o.engine = download.New(
		download.WithHTTPClient(o.client),
		download.WithObserver(o.observer),
		download.WithLogger(o.logger.Named("download")),
		download.WithMetrics(o.metrics),
		download.WithClock(o.clock),
	)
	o.verifier = verify.New(o.cfg.Application.ManifestURL,
		verify.WithHTTPClient(o.client),
		verify.WithLogger(o.logger.Named("verify")),
		verify.WithMetrics(o.metrics),
	)
	o.checksums = &verify.ChecksumList{
		Mirror:      o.cfg.Runtime.Mirror,
		KeyringPath: o.cfg.Runtime.Keyring,
		Client:      o.client,
		Logger:      o.logger.Named("checksums"),
	}
	if o.sup == nil {
		o.sup = supervisor.New(
			supervisor.WithLogger(o.logger.Named("supervisor")),
			supervisor.WithMetrics(o.metrics),
			supervisor.WithClock(o.clock),
		)
	}
	return o, nil
}

// Layout returns the data root layout.
func (o *Orchestrator) Layout() Layout {
	return o.layout
}

// IsInstalled reports whether the n8n bundle is installed.
func (o *Orchestrator) IsInstalled() bool {
	return isRegular(o.layout.Entrypoint())
}

// Interpreter resolves the installed Node.js executable.
func (o *Orchestrator) Interpreter() (string, bool) {
	return ResolveInterpreter(o.layout.RuntimeDir(), o.info)
}

// SetupRuntime installs the Node.js runtime unless an interpreter is
// already present.
func (o *Orchestrator) SetupRuntime(ctx context.Context) error {
	spec, err := RuntimeSpec(o.cfg, o.info, o.layout)
	if err != nil {
		return err
	}

	return o.pipeline(ctx, spec, func() error {
		if p, ok := o.Interpreter(); ok {
			o.logger.Info("runtime already installed", "path", p)
			return nil
		}

		var expected string
		if o.cfg.Runtime.VerifyChecksums {
			digest, res, err := o.checksums.Lookup(ctx, o.cfg.Runtime.Version, path.Base(spec.SourceURL))
			if err != nil {
				return err
			}
			o.metrics.IncVerification(spec.Name, res.Status.String())
			o.logger.Info("runtime checksum", "result", res.String(), "sha256", digest)
			expected = digest
		}

		req := download.Request{
			URL:            spec.SourceURL,
			Destination:    spec.DestinationPath,
			Label:          spec.Name,
			ExpectedSHA256: expected,
		}
		if err := o.engine.Fetch(ctx, req); err != nil {
			return err
		}

		if _, ok := o.Interpreter(); !ok {
			return fault.Format("install runtime", fmt.Errorf("no %s found under %s", o.info.InterpreterName(), spec.DestinationPath))
		}
		return nil
	})
}

// SetupApplication installs the n8n bundle. A kept zip that matches the
// release digest, or that cannot be checked, is reused without a
// download. The bundle is always re-extracted.
func (o *Orchestrator) SetupApplication(ctx context.Context) error {
	spec := BundleSpec(o.cfg, o.info, o.layout)

	return o.pipeline(ctx, spec, func() error {
		decision, err := o.verifier.Check(ctx, BundleFileName(o.info), spec.DestinationPath)
		if err != nil {
			return err
		}
		o.logger.Info("bundle verification", "result", decision.Result.String(), "redownload", decision.Redownload)

		if !decision.Redownload {
			return o.installBundle(spec.DestinationPath)
		}

		// The download only completes once the bundle is extracted.
		req := download.Request{
			URL:             spec.SourceURL,
			Destination:     spec.DestinationPath,
			Label:           spec.Name,
			ExpectedSHA256:  decision.Expected,
			DeferCompletion: true,
		}
		if err := o.engine.Fetch(ctx, req); err != nil {
			return err
		}
		if err := o.installBundle(spec.DestinationPath); err != nil {
			return err
		}
		var size int64
		if fi, err := os.Stat(spec.DestinationPath); err == nil {
			size = fi.Size()
		}
		o.observer.Progress(download.Completed(spec.Name, size, size))
		return nil
	})
}

// installBundle extracts zipPath into a fresh staging directory and swaps
// it into n8n-core/.
func (o *Orchestrator) installBundle(zipPath string) error {
	final := o.layout.CoreDir()
	staging, err := archive.PrepareStaging(final)
	if err != nil {
		return err
	}

	o.observer.ExtractionStarted(BundleAsset)
	o.logger.Info("extracting bundle", "zip", zipPath, "staging", staging)

	if err := archive.ExtractZipFile(zipPath, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := archive.ReplaceDir(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	o.logger.Info("bundle installed", "path", final)
	return nil
}

// pipeline runs fn under the asset's install lock and journals the attempt.
func (o *Orchestrator) pipeline(ctx context.Context, spec AssetSpec, fn func() error) error {
	lock, err := transaction.AcquireLock(ctx, o.layout.InstallDir(), spec.Name)
	if err != nil {
		return fmt.Errorf("acquire %s install lock: %w", spec.Name, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			o.logger.Warn("release install lock", "asset", spec.Name, "error", err)
		}
	}()

	attempt := transaction.NewAttempt(spec.Name, spec.SourceURL, o.clock)
	attempt.Begin()
	o.saveAttempt(attempt)

	err = fn()
	attempt.Finish(err)
	o.saveAttempt(attempt)

	if err != nil {
		o.logger.Error("setup failed", "asset", spec.Name, "kind", spec.Kind.String(), "error", err)
		return err
	}
	o.logger.Info("setup complete", "asset", spec.Name)
	return nil
}

func (o *Orchestrator) saveAttempt(a *transaction.Attempt) {
	if err := a.Save(o.layout.InstallDir()); err != nil {
		o.logger.Warn("record install attempt", "asset", a.Asset, "error", err)
	}
}

// Launch starts n8n with the installed runtime and bundle.
func (o *Orchestrator) Launch(ctx context.Context) error {
	interp, ok := o.Interpreter()
	if !ok {
		return fault.Precondition(fault.ErrRuntimeMissing, filepath.Join(o.layout.RuntimeDir(), filepath.FromSlash(o.info.InterpreterRelPath())))
	}
	entry := o.layout.Entrypoint()
	if !isRegular(entry) {
		return fault.Precondition(fault.ErrApplicationMissing, entry)
	}

	userDir := o.layout.UserDir()
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fault.Filesystem("create "+userDir, err)
	}

	return o.sup.Start(ctx, supervisor.LaunchSpec{
		Interpreter: interp,
		Entrypoint:  entry,
		DataDir:     userDir,
		Host:        o.cfg.Server.Host,
		Port:        o.cfg.Server.Port,
		Env:         o.cfg.Env,
		Stdout:      o.stdout,
		Stderr:      o.stderr,
	})
}

// Shutdown kills the n8n process, if any.
func (o *Orchestrator) Shutdown() {
	o.sup.Kill()
}

// Done is closed when the launched process exits. It is nil when nothing
// was launched.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.sup.Done()
}

// Close releases the orchestrator at host shutdown.
func (o *Orchestrator) Close() error {
	return o.sup.Close()
}
