package provision

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/config"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/download"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/platform"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/supervisor"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/transaction"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/verify"
	"github.com/klauspost/compress/gzip"
)

var linuxAMD64 = &platform.Info{OS: platform.OSLinux, Arch: "amd64"}

const runtimeArchive = "node-v20.19.0-linux-x64.tar.gz"

// release serves a fake mirror, release directory and manifest, counting
// hits per path.
type release struct {
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
	srv   *httptest.Server
}

func newRelease(t *testing.T) *release {
	t.Helper()
	r := &release{files: map[string][]byte{}, hits: map[string]int{}}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.hits[req.URL.Path]++
		body, ok := r.files[req.URL.Path]
		r.mu.Unlock()
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *release) put(path string, body []byte) {
	r.mu.Lock()
	r.files[path] = body
	r.mu.Unlock()
}

func (r *release) hitCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func (r *release) config(dataDir string) *config.Config {
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.Channel = "global"
	cfg.Runtime.Mirror = r.srv.URL + "/dist"
	cfg.Application.ReleaseURL = r.srv.URL + "/releases"
	cfg.Application.ManifestURL = r.srv.URL + "/manifest"
	return cfg
}

func (r *release) setManifest(name, digest string) {
	r.put("/manifest", []byte(fmt.Sprintf(`{"assets":[{"name":%q,"digest":"sha256:%s"}]}`, name, digest)))
}

func nodeTarGz(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	entries := []struct {
		name string
		body string
		mode int64
	}{
		{"node-v20.19.0-linux-x64/bin/node", "#!/bin/sh\nexec sleep 30\n", 0o755},
		{"node-v20.19.0-linux-x64/LICENSE", "MIT\n", 0o644},
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func bundleZip(t *testing.T, marker string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"node_modules/n8n/bin/n8n":      "#!/usr/bin/env node\n",
		"node_modules/n8n/package.json": `{"name":"n8n","marker":"` + marker + `"}`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func nopStrays(context.Context, string) error { return nil }

func newTestOrchestrator(t *testing.T, cfg *config.Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Options{
		Config:     cfg,
		Platform:   linuxAMD64,
		Supervisor: supervisor.New(supervisor.WithStrayKiller(nopStrays)),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestNewOrchestrator_Required(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	tests := []struct {
		name string
		opts Options
	}{
		{"no config", Options{Platform: linuxAMD64}},
		{"no platform", Options{Config: cfg}},
		{"no data dir", Options{Config: config.Default(), Platform: linuxAMD64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOrchestrator(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSetupRuntime(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tar.gz runtime layout")
	}
	rel := newRelease(t)
	archiveBytes := nodeTarGz(t)
	rel.put("/dist/v20.19.0/"+runtimeArchive, archiveBytes)
	rel.put("/dist/v20.19.0/SHASUMS256.txt", []byte(verify.HashBytes(archiveBytes)+"  "+runtimeArchive+"\n"))

	dataDir := t.TempDir()
	o := newTestOrchestrator(t, rel.config(dataDir))

	if err := o.SetupRuntime(context.Background()); err != nil {
		t.Fatalf("SetupRuntime() error = %v", err)
	}

	interp, ok := o.Interpreter()
	if !ok {
		t.Fatal("interpreter not resolved after setup")
	}
	if want := filepath.Join(dataDir, "runtime", "bin", "node"); interp != want {
		t.Errorf("interpreter = %q, want %q (archive wrapper should be flattened)", interp, want)
	}
	info, err := os.Stat(interp)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("interpreter mode = %v, want executable", info.Mode())
	}

	// An installed runtime short-circuits the pipeline.
	if err := o.SetupRuntime(context.Background()); err != nil {
		t.Fatalf("second SetupRuntime() error = %v", err)
	}
	if n := rel.hitCount("/dist/v20.19.0/" + runtimeArchive); n != 1 {
		t.Errorf("archive fetched %d times, want 1", n)
	}

	a, err := transaction.Load(o.Layout().InstallDir(), RuntimeAsset)
	if err != nil || a == nil {
		t.Fatalf("Load attempt = %v, %v", a, err)
	}
	if a.State != transaction.StateCompleted {
		t.Errorf("attempt state = %q, want completed", a.State)
	}
}

func TestSetupRuntime_ChecksumMismatch(t *testing.T) {
	rel := newRelease(t)
	rel.put("/dist/v20.19.0/"+runtimeArchive, nodeTarGz(t))
	rel.put("/dist/v20.19.0/SHASUMS256.txt", []byte(strings.Repeat("a", 64)+"  "+runtimeArchive+"\n"))

	o := newTestOrchestrator(t, rel.config(t.TempDir()))

	err := o.SetupRuntime(context.Background())
	if !errors.Is(err, fault.ErrIntegrity) {
		t.Fatalf("SetupRuntime() error = %v, want integrity error", err)
	}
	if _, ok := o.Interpreter(); ok {
		t.Error("runtime installed despite digest mismatch")
	}

	a, _ := transaction.Load(o.Layout().InstallDir(), RuntimeAsset)
	if a == nil || a.State != transaction.StateFailed || a.LastError == "" {
		t.Errorf("attempt = %+v, want failed with error", a)
	}
}

func TestSetupRuntime_NoInterpreterInArchive(t *testing.T) {
	rel := newRelease(t)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	_ = tw.WriteHeader(&tar.Header{Name: "pkg/README", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte("hi"))
	_ = tw.Close()
	_ = gz.Close()
	rel.put("/dist/v20.19.0/"+runtimeArchive, buf.Bytes())

	cfg := rel.config(t.TempDir())
	cfg.Runtime.VerifyChecksums = false
	o := newTestOrchestrator(t, cfg)

	if err := o.SetupRuntime(context.Background()); !errors.Is(err, fault.ErrFormat) {
		t.Fatalf("SetupRuntime() error = %v, want format error", err)
	}
	if n := rel.hitCount("/dist/v20.19.0/SHASUMS256.txt"); n != 0 {
		t.Errorf("checksum list fetched %d times with verification off", n)
	}
}

func TestSetupApplication(t *testing.T) {
	bundle := bundleZip(t, "fresh")
	digest := verify.HashBytes(bundle)
	zipPath := "/releases/n8n-core-linux.zip"

	tests := []struct {
		name      string
		kept      []byte // zip already on disk, nil for none
		manifest  bool
		wantFetch int
	}{
		{"no local copy", nil, true, 1},
		{"verified copy is reused", bundle, true, 0},
		{"mismatching copy is replaced", bundleZip(t, "stale"), true, 1},
		{"unverifiable copy is reused", bundleZip(t, "stale"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := newRelease(t)
			rel.put(zipPath, bundle)
			if tt.manifest {
				rel.setManifest("n8n-core-linux.zip", digest)
			}

			dataDir := t.TempDir()
			o := newTestOrchestrator(t, rel.config(dataDir))
			kept := o.Layout().BundleZip("n8n-core-linux.zip")
			if tt.kept != nil {
				if err := os.WriteFile(kept, tt.kept, 0o644); err != nil {
					t.Fatal(err)
				}
			}

			if err := o.SetupApplication(context.Background()); err != nil {
				t.Fatalf("SetupApplication() error = %v", err)
			}
			if n := rel.hitCount(zipPath); n != tt.wantFetch {
				t.Errorf("bundle fetched %d times, want %d", n, tt.wantFetch)
			}
			if !o.IsInstalled() {
				t.Fatal("IsInstalled() = false after setup")
			}
			if _, err := os.Stat(kept); err != nil {
				t.Errorf("bundle zip should be kept: %v", err)
			}
			if _, err := os.Stat(o.Layout().CoreDir() + ".staging"); !os.IsNotExist(err) {
				t.Errorf("staging dir left behind: %v", err)
			}
		})
	}
}

func TestSetupApplication_ReplacesPreviousInstall(t *testing.T) {
	rel := newRelease(t)
	bundle := bundleZip(t, "v2")
	rel.put("/releases/n8n-core-linux.zip", bundle)
	rel.setManifest("n8n-core-linux.zip", verify.HashBytes(bundle))

	o := newTestOrchestrator(t, rel.config(t.TempDir()))
	leftover := filepath.Join(o.Layout().CoreDir(), "old.txt")
	if err := os.MkdirAll(filepath.Dir(leftover), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(leftover, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := o.SetupApplication(context.Background()); err != nil {
		t.Fatalf("SetupApplication() error = %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("previous install contents survived the swap")
	}
	pkg, err := os.ReadFile(filepath.Join(o.Layout().CoreDir(), "node_modules", "n8n", "package.json"))
	if err != nil || !strings.Contains(string(pkg), "v2") {
		t.Errorf("package.json = %q, %v", pkg, err)
	}
}

func TestSetupApplication_CorruptBundleKeepsInstall(t *testing.T) {
	rel := newRelease(t)
	junk := []byte("definitely not a zip")
	rel.put("/releases/n8n-core-linux.zip", junk)
	rel.setManifest("n8n-core-linux.zip", verify.HashBytes(junk))

	o := newTestOrchestrator(t, rel.config(t.TempDir()))
	marker := filepath.Join(o.Layout().CoreDir(), "node_modules", "n8n", "bin", "n8n")
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := o.SetupApplication(context.Background()); !errors.Is(err, fault.ErrFormat) {
		t.Fatalf("SetupApplication() error = %v, want format error", err)
	}
	if !o.IsInstalled() {
		t.Error("previous install removed by a failed extraction")
	}
}

func TestSetup_LockHeld(t *testing.T) {
	rel := newRelease(t)
	o := newTestOrchestrator(t, rel.config(t.TempDir()))

	lock, err := transaction.AcquireLock(context.Background(), o.Layout().InstallDir(), BundleAsset)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if err := o.SetupApplication(context.Background()); !errors.Is(err, transaction.ErrLockExists) {
		t.Fatalf("SetupApplication() error = %v, want ErrLockExists", err)
	}
	if n := rel.hitCount("/manifest"); n != 0 {
		t.Errorf("manifest fetched %d times while locked", n)
	}
}

func TestLaunch_Preconditions(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	o := newTestOrchestrator(t, cfg)

	err := o.Launch(context.Background())
	if !errors.Is(err, fault.ErrRuntimeMissing) || fault.CodeOf(err) != fault.CodeRuntimeMissing {
		t.Fatalf("Launch() without runtime = %v", err)
	}

	writeFile(t, filepath.Join(o.Layout().RuntimeDir(), "bin", "node"), "x", 0o755)
	err = o.Launch(context.Background())
	if !errors.Is(err, fault.ErrApplicationMissing) || fault.CodeOf(err) != fault.CodeApplicationMissing {
		t.Fatalf("Launch() without bundle = %v", err)
	}
	if o.Status().Process.Running {
		t.Error("process running after failed launch")
	}
}

func TestLaunchShutdown(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the interpreter")
	}
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	o := newTestOrchestrator(t, cfg)

	writeFile(t, filepath.Join(o.Layout().RuntimeDir(), "bin", "node"), "#!/bin/sh\nexec sleep 30\n", 0o755)
	writeFile(t, o.Layout().Entrypoint(), "", 0o644)

	if err := o.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if _, err := os.Stat(o.Layout().UserDir()); err != nil {
		t.Errorf("user data dir not created: %v", err)
	}

	st := o.Status()
	if !st.Process.Running || !st.Runtime.Installed || !st.Application.Installed {
		t.Fatalf("Status() = %+v", st)
	}

	done := o.Done()
	o.Shutdown()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after Shutdown")
	}
	if o.Status().Process.Running {
		t.Error("still running after Shutdown")
	}
}

func writeFile(t *testing.T, path, body string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), mode); err != nil {
		t.Fatal(err)
	}
}

func TestSetupApplication_CompletesAfterExtraction(t *testing.T) {
	rel := newRelease(t)
	bundle := bundleZip(t, "fresh")
	rel.put("/releases/n8n-core-linux.zip", bundle)
	rel.setManifest("n8n-core-linux.zip", verify.HashBytes(bundle))

	var mu sync.Mutex
	var events []string
	obs := download.ObserverFuncs{
		OnProgress: func(p download.Progress) {
			mu.Lock()
			events = append(events, fmt.Sprintf("progress:%g", p.Percent))
			mu.Unlock()
		},
		OnExtraction: func(label string) {
			mu.Lock()
			events = append(events, "extract:"+label)
			mu.Unlock()
		},
	}

	o, err := NewOrchestrator(Options{
		Config:     rel.config(t.TempDir()),
		Platform:   linuxAMD64,
		Observer:   obs,
		Supervisor: supervisor.New(supervisor.WithStrayKiller(nopStrays)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.SetupApplication(context.Background()); err != nil {
		t.Fatalf("SetupApplication() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	completions := 0
	for _, ev := range events {
		if ev == "progress:100" {
			completions++
		}
	}
	n := len(events)
	if completions != 1 || n < 2 || events[n-2] != "extract:n8n-core" || events[n-1] != "progress:100" {
		t.Errorf("events = %v, want one completion after the extraction", events)
	}
}
