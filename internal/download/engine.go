// Package download fetches release payloads over HTTP and materializes
// them on disk, either as a single file or as an extracted directory
// tree swapped in atomically from a staging directory.
package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/archive"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/clock"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/metrics"
	"github.com/hashicorp/go-hclog"
)

const (
	// BrowserUserAgent is sent with payload requests. Some mirrors reject
	// unknown clients.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	chunkSize = 32 << 10

	// maxPrealloc caps the buffer reserved up front from Content-Length.
	maxPrealloc = 512 << 20
)

// Request describes one payload to fetch.
type Request struct {
	URL         string
	Destination string
	// Label names the payload in progress events and metrics.
	Label string
	// ExpectedSHA256 is an optional lowercase hex digest the body must match.
	ExpectedSHA256 string
	// DeferCompletion leaves the final 100% event to the caller, which
	// sends it after its own post-processing of the payload.
	DeferCompletion bool
}

// Engine downloads and installs payloads.
type Engine struct {
	client    *http.Client
	observer  Observer
	logger    hclog.Logger
	metrics   metrics.Metrics
	clock     clock.Clock
	userAgent string
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the clock used for progress throttling and timing.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		client:    http.DefaultClient,
		observer:  NopObserver{},
		logger:    hclog.NewNullLogger(),
		metrics:   metrics.Noop{},
		clock:     clock.Real{},
		userAgent: BrowserUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Download fetches url into destination without an expected digest.
func (e *Engine) Download(ctx context.Context, url, destination, label string) error {
	return e.Fetch(ctx, Request{URL: url, Destination: destination, Label: label})
}

// Fetch downloads req.URL and materializes it at req.Destination.
//
// An archive URL with a destination that has no extension is extracted
// into that directory; anything else is written verbatim as a file.
func (e *Engine) Fetch(ctx context.Context, req Request) (err error) {
	start := e.clock.Now()
	var received int64
	defer func() {
		e.metrics.ObserveDownload(req.Label, outcome(err), received, e.clock.Now().Sub(start).Seconds())
	}()

	log := e.logger.With("label", req.Label)
	log.Info("download started", "url", req.URL, "destination", req.Destination)

	data, digest, total, err := e.receive(ctx, req, &received)
	if err != nil {
		log.Error("download failed", "error", err)
		return err
	}

	if req.ExpectedSHA256 != "" && !strings.EqualFold(digest, req.ExpectedSHA256) {
		err := fault.Integrity("verify "+req.Label, fmt.Errorf("sha256 mismatch: got %s, want %s", digest, req.ExpectedSHA256))
		log.Error("payload rejected", "error", err)
		return err
	}

	log.Info("download complete", "bytes", received, "sha256", digest)

	kind := archive.Detect(req.URL)
	if kind != archive.None && isDirTarget(req.Destination) {
		err = e.install(kind, data, req.Destination, req.Label)
	} else {
		err = writeFile(data, req.Destination)
	}
	if err != nil {
		log.Error("install failed", "error", err)
		return err
	}

	if !req.DeferCompletion {
		e.observer.Progress(Completed(req.Label, received, total))
	}
	return nil
}

// Completed is the final event of a successful download of label.
func Completed(label string, received, total int64) Progress {
	return Progress{
		Label:           label,
		Percent:         100,
		BytesDownloaded: received,
		TotalBytes:      total,
	}
}

// receive reads the response body into memory while hashing it and
// reporting progress. The returned total is Content-Length, or the byte
// count when the server did not send one.
func (e *Engine) receive(ctx context.Context, req Request, received *int64) ([]byte, string, int64, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, "", 0, fault.Network("create request", err)
	}
	hreq.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(hreq)
	if err != nil {
		return nil, "", 0, fault.Network("download "+req.Label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", 0, fault.Network(fmt.Sprintf("download failed: HTTP %d", resp.StatusCode), nil)
	}

	total := max(resp.ContentLength, 0)
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(min(total, maxPrealloc)))
	}

	hasher := sha256.New()
	sink := io.MultiWriter(&buf, hasher)
	th := newThrottle(e.clock)
	chunk := make([]byte, chunkSize)

	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			_, _ = sink.Write(chunk[:n])
			*received += int64(n)
			// 100 is reserved for the completion event.
			if pct, ok := th.next(*received, total); ok && pct < 100 {
				e.observer.Progress(Progress{
					Label:           req.Label,
					Percent:         pct,
					BytesDownloaded: *received,
					TotalBytes:      total,
				})
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, "", 0, fault.Network("read response body", rerr)
		}
	}

	if total == 0 {
		total = *received
	}
	return buf.Bytes(), hex.EncodeToString(hasher.Sum(nil)), total, nil
}

// install extracts an archive into a staging directory, normalises it and
// swaps it into dest.
func (e *Engine) install(kind archive.Kind, data []byte, dest, label string) (err error) {
	staging, err := archive.PrepareStaging(dest)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	e.observer.ExtractionStarted(label)
	e.logger.Info("extracting", "label", label, "kind", kind.String(), "staging", staging)

	if err := archive.Extract(kind, data, staging); err != nil {
		return err
	}

	flattened, err := archive.Flatten(staging)
	if err != nil {
		return err
	}
	if flattened {
		e.logger.Debug("removed archive wrapper directory", "label", label)
	}

	if err := archive.RepairPermissions(staging); err != nil {
		e.logger.Warn("permission repair incomplete", "label", label, "error", err)
	}
	if err := archive.ClearQuarantine(staging); err != nil {
		e.logger.Warn("quarantine removal incomplete", "label", label, "error", err)
	}

	if err := archive.ReplaceDir(staging, dest); err != nil {
		return err
	}
	e.logger.Info("installed", "label", label, "path", dest)
	return nil
}

// writeFile writes data to dest through a temporary sibling.
func writeFile(data []byte, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fault.Filesystem("create dest dir", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fault.Filesystem("write "+tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fault.Filesystem("rename temp file", err)
	}
	return nil
}

// isDirTarget reports whether dest names a directory rather than a file.
func isDirTarget(dest string) bool {
	return filepath.Ext(filepath.Clean(dest)) == ""
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch fault.KindOf(err) {
	case fault.ErrNetwork:
		return "network"
	case fault.ErrIntegrity:
		return "integrity"
	case fault.ErrFormat:
		return "format"
	case fault.ErrFilesystem:
		return "filesystem"
	default:
		return "error"
	}
}
