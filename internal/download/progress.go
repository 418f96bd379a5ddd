package download

import (
	"time"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/clock"
)

// Progress is one download progress notification.
type Progress struct {
	Label           string  `json:"downloadType"`
	Percent         float64 `json:"progress"`
	BytesDownloaded int64   `json:"bytesDownloaded"`
	TotalBytes      int64   `json:"totalBytes"`
}

// Observer receives engine events synchronously and in order. It must not
// block for long.
type Observer interface {
	Progress(Progress)
	ExtractionStarted(label string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Progress(Progress)         {}
func (NopObserver) ExtractionStarted(string) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	OnProgress   func(Progress)
	OnExtraction func(label string)
}

func (o ObserverFuncs) Progress(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

func (o ObserverFuncs) ExtractionStarted(label string) {
	if o.OnExtraction != nil {
		o.OnExtraction(label)
	}
}

const (
	minPercentStep = 0.5
	minInterval    = 150 * time.Millisecond
)

// throttle decides which byte counts are worth reporting.
type throttle struct {
	clock  clock.Clock
	last   float64
	lastAt time.Time
}

func newThrottle(c clock.Clock) *throttle {
	return &throttle{clock: c, last: -1}
}

// next returns the percent to report for done of total bytes, and whether
// to report at all. Reported values never decrease and never exceed 100.
func (t *throttle) next(done, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	pct := float64(done) * 100 / float64(total)
	if pct > 100 {
		pct = 100
	}
	if pct < t.last {
		pct = t.last
	}

	now := t.clock.Now()
	if t.last >= 0 && pct-t.last < minPercentStep && now.Sub(t.lastAt) < minInterval {
		return 0, false
	}
	t.last = pct
	t.lastAt = now
	return pct, true
}
