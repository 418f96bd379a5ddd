// Package verify decides whether a locally cached payload can be reused
// by comparing its SHA-256 digest with one published upstream.
//
// Verification is advisory: when the upstream digest cannot be obtained
// the result is Skipped rather than an error, and callers fall back to
// reusing what they have.
package verify

import "fmt"

// Status is the outcome of a verification.
type Status int

const (
	StatusSkipped Status = iota
	StatusVerified
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusMismatch:
		return "mismatch"
	default:
		return "skipped"
	}
}

// Result describes one verification. Build it with Verified, Skipped or
// Mismatch and switch on Status.
type Result struct {
	Status Status `json:"status"`
	Digest string `json:"digest,omitempty"`
	Local  string `json:"local,omitempty"`
	Remote string `json:"remote,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Verified reports a local digest equal to the trusted one.
func Verified(digest string) Result {
	return Result{Status: StatusVerified, Digest: digest}
}

// Skipped reports that no comparison could be made.
func Skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// Mismatch reports differing local and remote digests.
func Mismatch(local, remote string) Result {
	return Result{Status: StatusMismatch, Local: local, Remote: remote}
}

func (r Result) String() string {
	switch r.Status {
	case StatusVerified:
		return "verified " + r.Digest
	case StatusMismatch:
		return fmt.Sprintf("mismatch local=%s remote=%s", r.Local, r.Remote)
	default:
		return "skipped: " + r.Reason
	}
}
