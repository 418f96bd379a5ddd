package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func manifestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("manifest request without User-Agent")
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("Accept = %q", got)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func manifestFor(name, digest string) string {
	return fmt.Sprintf(`{"tag_name":"v1","assets":[{"name":"other.zip","digest":"sha256:%s"},{"name":%q,"digest":%q}]}`,
		strings.Repeat("0", 64), name, digest)
}

const asset = "n8n-core-linux.zip"

func TestCheck(t *testing.T) {
	payload := []byte("bundle bytes")
	good := HashBytes(payload)
	bad := HashBytes([]byte("something else"))

	tests := []struct {
		name       string
		status     int
		body       string
		local      bool
		want       Status
		redownload bool
		expected   string
		keepsLocal bool
	}{
		{"match", 200, manifestFor(asset, "sha256:"+good), true, StatusVerified, false, good, true},
		{"uppercase digest", 200, manifestFor(asset, "sha256:"+strings.ToUpper(good)), true, StatusVerified, false, good, true},
		{"mismatch", 200, manifestFor(asset, "sha256:"+bad), true, StatusMismatch, true, bad, false},
		{"no local copy", 200, manifestFor(asset, "sha256:"+good), false, StatusSkipped, true, good, false},
		{"no local copy and no manifest", 503, "", false, StatusSkipped, true, "", false},
		{"server error", 500, "oops", true, StatusSkipped, false, "", true},
		{"malformed json", 200, "{not json", true, StatusSkipped, false, "", true},
		{"no assets", 200, `{"tag_name":"v1"}`, true, StatusSkipped, false, "", true},
		{"entry missing", 200, manifestFor("n8n-core-macos.zip", "sha256:"+bad), true, StatusSkipped, false, "", true},
		{"wrong algorithm", 200, manifestFor(asset, "md5:"+good[:32]), true, StatusSkipped, false, "", true},
		{"short digest", 200, manifestFor(asset, "sha256:abc"), true, StatusSkipped, false, "", true},
		{"no digest", 200, `{"assets":[{"name":"` + asset + `"}]}`, true, StatusSkipped, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := manifestServer(t, tt.status, tt.body)
			local := filepath.Join(t.TempDir(), asset)
			if tt.local {
				if err := os.WriteFile(local, payload, 0o644); err != nil {
					t.Fatal(err)
				}
			}

			d, err := New(srv.URL).Check(context.Background(), asset, local)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if d.Result.Status != tt.want {
				t.Errorf("Status = %s (%s), want %s", d.Result.Status, d.Result, tt.want)
			}
			if d.Redownload != tt.redownload {
				t.Errorf("Redownload = %v, want %v", d.Redownload, tt.redownload)
			}
			if d.Expected != tt.expected {
				t.Errorf("Expected = %q, want %q", d.Expected, tt.expected)
			}
			_, statErr := os.Stat(local)
			if exists := statErr == nil; tt.local && exists != tt.keepsLocal {
				t.Errorf("local exists = %v, want %v", exists, tt.keepsLocal)
			}
			if d.Result.Status == StatusSkipped && d.Result.Reason == "" {
				t.Error("skipped result without reason")
			}
		})
	}
}

func TestCheck_MismatchCarriesBothDigests(t *testing.T) {
	payload := []byte("stale")
	remote := HashBytes([]byte("fresh"))
	srv := manifestServer(t, 200, manifestFor(asset, "sha256:"+remote))

	local := filepath.Join(t.TempDir(), asset)
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(srv.URL).Check(context.Background(), asset, local)
	if err != nil {
		t.Fatal(err)
	}
	if d.Result.Local != HashBytes(payload) || d.Result.Remote != remote {
		t.Errorf("Result = %+v", d.Result)
	}
}

func TestCheck_UnreachableManifest(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	local := filepath.Join(t.TempDir(), asset)
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(url).Check(context.Background(), asset, local)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Result.Status != StatusSkipped || d.Redownload {
		t.Errorf("decision = %+v, want reuse with skipped", d)
	}
}

func TestCheck_DeleteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	srv := manifestServer(t, 200, manifestFor(asset, "sha256:"+HashBytes([]byte("fresh"))))

	dir := t.TempDir()
	local := filepath.Join(dir, asset)
	if err := os.WriteFile(local, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err := New(srv.URL).Check(context.Background(), asset, local)
	if err == nil {
		t.Fatal("expected filesystem error")
	}
	if !strings.Contains(err.Error(), "delete mismatching") {
		t.Errorf("error = %v", err)
	}
}

func TestHashFile(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 3000)
	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if got != HashBytes(data) {
		t.Errorf("HashFile() = %s, want %s", got, HashBytes(data))
	}
	if HashBytes(nil) != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("HashBytes(nil) = %s", HashBytes(nil))
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("HashFile(missing) error = %v", err)
	}
}

func TestHashBytes_SingleByteChange(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 257)
	base := HashBytes(data)
	for _, i := range []int{0, 1, 128, 255, 256} {
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0x01
		if HashBytes(mutated) == base {
			t.Errorf("flipping byte %d did not change the digest", i)
		}
	}
}
