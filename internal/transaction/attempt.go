// Package transaction provides the per-asset install lock and the install
// attempt journal kept under <data>/.install.
//
// The journal is informational. Whether an asset is installed is always
// decided from the filesystem layout, never from a journal entry.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/clock"
	"github.com/google/uuid"
)

// State represents the current state of an install attempt.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const attemptVersion = 1

// Attempt records one run of an install pipeline.
type Attempt struct {
	Version   int        `json:"version" yaml:"version"`
	ID        string     `json:"id" yaml:"id"`
	Asset     string     `json:"asset" yaml:"asset"`
	Source    string     `json:"source,omitempty" yaml:"source,omitempty"`
	State     State      `json:"state" yaml:"state"`
	Started   time.Time  `json:"started" yaml:"started"`
	Finished  *time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`
	LastError string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	clock clock.Clock
}

// NewAttempt creates a pending attempt for asset.
func NewAttempt(asset, source string, c clock.Clock) *Attempt {
	if c == nil {
		c = clock.Real{}
	}
	return &Attempt{
		Version: attemptVersion,
		ID:      uuid.New().String(),
		Asset:   asset,
		Source:  source,
		State:   StatePending,
		Started: c.Now().UTC(),
		clock:   c,
	}
}

// Begin marks the attempt in progress.
func (a *Attempt) Begin() {
	a.State = StateInProgress
}

// Finish marks the attempt completed or, when err is non-nil, failed.
func (a *Attempt) Finish(err error) {
	now := a.now().UTC()
	a.Finished = &now
	if err != nil {
		a.State = StateFailed
		a.LastError = err.Error()
		return
	}
	a.State = StateCompleted
	a.LastError = ""
}

func (a *Attempt) now() time.Time {
	if a.clock == nil {
		return time.Now()
	}
	return a.clock.Now()
}

// AttemptPath returns the journal file for asset under dir.
func AttemptPath(dir, asset string) string {
	return filepath.Join(dir, "attempt-"+asset+".json")
}

// Save writes the attempt to disk atomically using write-then-rename.
func (a *Attempt) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := AttemptPath(dir, a.Asset)
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temporary attempt file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename attempt file: %w", err)
	}
	return nil
}

// Load reads the last recorded attempt for asset. It returns nil and no
// error when none was recorded.
func Load(dir, asset string) (*Attempt, error) {
	data, err := os.ReadFile(AttemptPath(dir, asset))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt file: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return &a, nil
}
