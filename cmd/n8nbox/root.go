package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/download"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/logging"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/metrics"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/provision"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	dataDir     string
	logLevel    string
	metricsAddr string
}

// app carries what a command needs once flags are parsed.
type app struct {
	flags    globalFlags
	stdout   io.Writer
	stderr   io.Writer
	detector platform.Detector
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, detector: platform.NewDetector()}

	root := &cobra.Command{
		Use:           "n8nbox",
		Short:         "Install and run a self-contained n8n",
		Long:          "n8nbox downloads a private Node.js runtime and the n8n-core bundle into one data directory and runs the n8n server from it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Path to launcher.lua (default: $"+config.EnvConfigPath+" or the user config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "Data root for runtime, bundle and n8n user data")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")

	root.AddCommand(
		newSetupCmd(a),
		newLaunchCmd(a),
		newHealthCmd(a),
		newStatusCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig reads launcher.lua and applies the command-line overrides.
func (a *app) loadConfig(ctx context.Context, logger hclog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(a.detector, logger.Named("config")).Load(ctx, a.flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.flags.dataDir != "" {
		cfg.DataDir = a.flags.dataDir
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.metricsAddr != "" {
		cfg.MetricsAddr = a.flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is one command's wired orchestrator and its teardown.
type session struct {
	cfg    *config.Config
	logger hclog.Logger
	orch   *provision.Orchestrator
	stop   []func()
}

func (s *session) close() {
	for i := len(s.stop) - 1; i >= 0; i-- {
		s.stop[i]()
	}
}

// newSession loads config, builds the logger and metrics, and wires an
// orchestrator. The caller must call close.
func (a *app) newSession(ctx context.Context, observer download.Observer) (*session, error) {
	bootLogger := logging.NewLogger("n8nbox", logging.ResolveLevel(a.flags.logLevel), a.stderr)
	cfg, err := a.loadConfig(ctx, bootLogger)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger("n8nbox", logging.ResolveLevel(cfg.LogLevel), a.stderr)

	info, err := a.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	s := &session{cfg: cfg, logger: logger}

	var m metrics.Metrics = metrics.Noop{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.NewProm("n8nbox", reg)
		_, stop, err := serveMetrics(cfg.MetricsAddr, reg, logger)
		if err != nil {
			return nil, err
		}
		s.stop = append(s.stop, stop)
	}

	s.orch, err = provision.NewOrchestrator(provision.Options{
		Config:   cfg,
		Platform: info,
		Logger:   logger,
		Metrics:  m,
		Observer: observer,
		Stdout:   a.stdout,
		Stderr:   a.stderr,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	logger.Debug("session ready", "data_dir", cfg.DataDir, "platform", info.String())
	return s, nil
}

// serveMetrics starts a /metrics endpoint and returns the bound address
// and a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, logger hclog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
