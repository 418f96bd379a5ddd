package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/metrics"
	"github.com/hashicorp/go-hclog"
)

// Decision is what the caller should do with its local copy.
type Decision struct {
	Result Result
	// Redownload is set when the local copy is absent, unreadable or was
	// deleted because it did not match.
	Redownload bool
	// Expected is the trusted remote digest, empty when unknown.
	Expected string
}

// Verifier compares local payloads against a release manifest listing
// assets as {"name": ..., "digest": "sha256:<hex>"}.
type Verifier struct {
	manifestURL string
	client      *http.Client
	logger      hclog.Logger
	metrics     metrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New creates a Verifier reading the manifest at manifestURL.
func New(manifestURL string, opts ...Option) *Verifier {
	v := &Verifier{
		manifestURL: manifestURL,
		client:      http.DefaultClient,
		logger:      hclog.NewNullLogger(),
		metrics:     metrics.Noop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check decides whether localPath can be reused as assetName.
//
// The only error it returns is a failure to delete a mismatching copy.
func (v *Verifier) Check(ctx context.Context, assetName, localPath string) (Decision, error) {
	remote, reason := v.RemoteDigest(ctx, assetName)
	if remote == "" {
		v.logger.Debug("remote digest unavailable", "asset", assetName, "reason", reason)
	}

	if _, err := os.Stat(localPath); err != nil {
		d := Decision{Result: Skipped("no local copy"), Redownload: true, Expected: remote}
		v.record(assetName, d.Result)
		return d, nil
	}

	if remote == "" {
		d := Decision{Result: Skipped(reason)}
		v.logger.Warn("reusing unverified local copy", "asset", assetName, "path", localPath, "reason", reason)
		v.record(assetName, d.Result)
		return d, nil
	}

	local, err := HashFile(localPath)
	if err != nil {
		v.logger.Warn("cannot hash local copy, redownloading", "path", localPath, "error", err)
		d := Decision{Result: Skipped(err.Error()), Redownload: true, Expected: remote}
		v.record(assetName, d.Result)
		return d, nil
	}

	if local == remote {
		d := Decision{Result: Verified(local), Expected: remote}
		v.logger.Info("local copy verified", "asset", assetName, "sha256", local)
		v.record(assetName, d.Result)
		return d, nil
	}

	v.logger.Warn("local copy does not match release digest", "asset", assetName, "local", local, "remote", remote)
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Decision{}, fault.Filesystem("delete mismatching "+localPath, err)
	}
	d := Decision{Result: Mismatch(local, remote), Redownload: true, Expected: remote}
	v.record(assetName, d.Result)
	return d, nil
}

// RemoteDigest returns the manifest's sha256 for assetName in lowercase
// hex, or "" and the reason it could not be obtained.
func (v *Verifier) RemoteDigest(ctx context.Context, assetName string) (string, string) {
	header := http.Header{"Accept": []string{"application/vnd.github.v3+json"}}
	body, err := get(ctx, v.client, v.manifestURL, header)
	if err != nil {
		return "", fmt.Sprintf("fetch manifest: %v", err)
	}

	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Sprintf("decode manifest: %v", err)
	}
	if m.Assets == nil {
		return "", "manifest has no assets"
	}
	for _, a := range m.Assets {
		if a.Name != assetName {
			continue
		}
		hex, ok := parseDigest(a.Digest)
		if !ok {
			return "", fmt.Sprintf("asset %s has no usable sha256 digest (%q)", assetName, a.Digest)
		}
		return hex, ""
	}
	return "", fmt.Sprintf("asset %s not listed in manifest", assetName)
}

func (v *Verifier) record(asset string, r Result) {
	v.metrics.IncVerification(asset, r.Status.String())
}

type manifest struct {
	Assets []manifestAsset `json:"assets"`
}

type manifestAsset struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// parseDigest accepts only "sha256:<64 hex>".
func parseDigest(s string) (string, bool) {
	algo, hex, ok := strings.Cut(s, ":")
	if !ok || algo != "sha256" {
		return "", false
	}
	hex = strings.ToLower(hex)
	if !sha256Hex.MatchString(hex) {
		return "", false
	}
	return hex, true
}
