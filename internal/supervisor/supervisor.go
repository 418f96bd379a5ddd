// Package supervisor owns the single n8n child process.
//
// A Supervisor holds at most one live process in its slot. Start fills
// the slot, killing any previous occupant first; Kill and Close empty it.
// A background reaper waits on each process so no zombie is left behind,
// but a process that exits on its own stays in the slot until it is
// killed or replaced, and Status reports it as exited.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/clock"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/metrics"
	"github.com/hashicorp/go-hclog"
)

// LaunchSpec describes the process to start.
type LaunchSpec struct {
	Interpreter string
	Entrypoint  string
	DataDir     string
	Host        string
	Port        int
	// Env entries are applied after the fixed n8n settings and win over them.
	Env map[string]string
	// Stdout and Stderr default to the parent's streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Status is a snapshot of the slot.
type Status struct {
	Running bool      `json:"running" yaml:"running"`
	PID     int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Started time.Time `json:"started,omitempty" yaml:"started,omitempty"`
	Exited  bool      `json:"exited" yaml:"exited"`
	ExitErr string    `json:"exit_error,omitempty" yaml:"exit_error,omitempty"`
}

// StrayKiller terminates leftover processes named name, except the
// current process.
type StrayKiller func(ctx context.Context, name string) error

type handle struct {
	cmd     *exec.Cmd
	pid     int
	started time.Time
	done    chan struct{}
	waitErr error // valid once done is closed
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor starts and stops the n8n process.
type Supervisor struct {
	mu      sync.Mutex
	current *handle

	logger     hclog.Logger
	metrics    metrics.Metrics
	clock      clock.Clock
	killStrays StrayKiller
	environ    func() []string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithClock sets the clock used for start timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithStrayKiller replaces the stray process cleanup run before each
// start on POSIX systems. A nil killer disables the cleanup.
func WithStrayKiller(k StrayKiller) Option {
	return func(s *Supervisor) { s.killStrays = k }
}

// WithEnviron replaces the parent environment source.
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) { s.environ = fn }
}

// New creates a Supervisor with an empty slot.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:  hclog.NewNullLogger(),
		metrics: metrics.Noop{},
		clock:   clock.Real{},
		environ: os.Environ,
	}
	s.killStrays = s.defaultStrayKiller
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches `<interpreter> <entrypoint> start`.
func (s *Supervisor) Start(ctx context.Context, spec LaunchSpec) error {
	if !isFile(spec.Interpreter) {
		return fault.Precondition(fault.ErrRuntimeMissing, spec.Interpreter)
	}
	if !isFile(spec.Entrypoint) {
		return fault.Precondition(fault.ErrApplicationMissing, spec.Entrypoint)
	}

	if prev := s.take(); prev != nil {
		s.logger.Info("replacing running process", "pid", prev.pid)
		s.signal(prev)
		s.metrics.IncProcessEvent("replace")
	}

	if runtime.GOOS != "windows" && s.killStrays != nil {
		name := filepath.Base(spec.Interpreter)
		if err := s.killStrays(ctx, name); err != nil {
			s.logger.Warn("stray process cleanup incomplete", "name", name, "error", err)
		}
	}

	cmd := exec.Command(spec.Interpreter, spec.Entrypoint, "start")
	cmd.Env = BuildEnv(s.environ(), spec)
	cmd.Stdin = nil
	cmd.Stdout = orWriter(spec.Stdout, os.Stdout)
	cmd.Stderr = orWriter(spec.Stderr, os.Stderr)
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fault.Spawn("start "+spec.Interpreter, err)
	}

	h := &handle{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		started: s.clock.Now(),
		done:    make(chan struct{}),
	}
	go s.reap(h)

	s.mu.Lock()
	prev := s.current
	s.current = h
	s.mu.Unlock()
	if prev != nil {
		s.signal(prev)
	}

	s.metrics.IncProcessEvent("start")
	s.logger.Info("n8n started", "pid", h.pid, "port", spec.Port, "data_dir", spec.DataDir)
	return nil
}

// Kill terminates the process in the slot, if any, and empties the slot.
// It does not wait for the process to exit and is idempotent.
func (s *Supervisor) Kill() {
	h := s.take()
	if h == nil {
		return
	}
	s.signal(h)
}

// Close tears the supervisor down, killing any live process.
func (s *Supervisor) Close() error {
	s.Kill()
	return nil
}

// Status reports the slot contents.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h == nil {
		return Status{}
	}
	st := Status{PID: h.pid, Started: h.started}
	if h.exited() {
		st.Exited = true
		if h.waitErr != nil {
			st.ExitErr = h.waitErr.Error()
		}
		return st
	}
	st.Running = true
	return st
}

// Done returns a channel closed when the current process exits, or nil
// when the slot is empty.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.done
}

func (s *Supervisor) take() *handle {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()
	return h
}

func (s *Supervisor) signal(h *handle) {
	if err := h.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			s.logger.Debug("process already exited", "pid", h.pid)
		} else {
			s.logger.Warn("kill failed", "pid", h.pid, "error", err)
		}
		return
	}
	s.metrics.IncProcessEvent("kill")
	s.logger.Info("n8n killed", "pid", h.pid)
}

func (s *Supervisor) reap(h *handle) {
	h.waitErr = h.cmd.Wait()
	close(h.done)
	s.metrics.IncProcessEvent("exit")
	if h.waitErr != nil {
		s.logger.Info("n8n exited", "pid", h.pid, "status", h.waitErr)
	} else {
		s.logger.Info("n8n exited", "pid", h.pid)
	}
}

func (s *Supervisor) defaultStrayKiller(ctx context.Context, name string) error {
	return KillStrays(ctx, name, s.logger)
}

// BuildEnv returns base with the n8n launch settings applied. Later
// entries override earlier ones for the same key.
func BuildEnv(base []string, spec LaunchSpec) []string {
	host := spec.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := spec.Port
	if port == 0 {
		port = 5678
	}

	overrides := map[string]string{
		"N8N_USER_FOLDER":                spec.DataDir,
		"N8N_DISABLE_INTERACTIVE_REPL":   "true",
		"N8N_BLOCK_IFRAME_EMBEDS":        "false",
		"N8N_USE_SAMESITE_COOKIE_STRICT": "false",
		"N8N_CORS_ALLOWED_ORIGINS":       "*",
		"N8N_SECURE_COOKIE":              "false",
		"N8N_USER_MANAGEMENT_DISABLED":   "true",
		"SKIP_SETUP":                     "true",
		"N8N_PORT":                       strconv.Itoa(port),
		"N8N_HOST":                       host,
		"NODES_EXCLUDE":                  "[]",
		"N8N_BLOCK_NODES":                "",
	}
	for k, v := range spec.Env {
		overrides[k] = v
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func orWriter(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
