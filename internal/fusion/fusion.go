// Package fusion associates detections from the emotion stream with the
// most recent attendance result set by spatial overlap, so an emotion
// detection can carry an identity even though the two backend services
// run on independent cadences.
package fusion

import (
	"sync"
	"time"

	"kiosk-vision-go/internal/types"
)

const (
	// DefaultMinIoU and DefaultMaxAge come from kiosk field tuning and
	// are preserved as defaults, not recomputed.
	DefaultMinIoU = 0.25
	DefaultMaxAge = 1800 * time.Millisecond
)

// IoU returns the intersection-over-union of two boxes in the same
// coordinate space. 0 for disjoint or degenerate boxes, 1 for identical.
func IoU(a, b types.Box) float64 {
	ix := max(a.X, b.X)
	iy := max(a.Y, b.Y)
	ix2 := min(a.X+a.W, b.X+b.W)
	iy2 := min(a.Y+a.H, b.Y+b.H)

	iw := ix2 - ix
	ih := iy2 - iy
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Match is the outcome of resolving one emotion detection.
type Match struct {
	Label    string
	Score    float64
	IoU      float64
	Resolved bool
}

// Engine holds the fusion reference window: the latest attendance batch.
// Safe for concurrent use; the transport handler stores batches while the
// emotion handler resolves against them.
type Engine struct {
	mu     sync.Mutex
	latest types.ResultBatch
	has    bool

	minIoU float64
	maxAge time.Duration
	now    func() time.Time
}

func New(minIoU float64, maxAge time.Duration) *Engine {
	if minIoU <= 0 {
		minIoU = DefaultMinIoU
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Engine{minIoU: minIoU, maxAge: maxAge, now: time.Now}
}

// Store replaces the fusion reference window with a fresh attendance
// batch. Last result wins; out-of-order arrivals are accepted as-is.
func (e *Engine) Store(batch types.ResultBatch) {
	e.mu.Lock()
	e.latest = batch
	e.has = true
	e.mu.Unlock()
}

// Reference returns the current attendance batch, if any.
func (e *Engine) Reference() (types.ResultBatch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.has
}

// Clear drops the reference window.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.latest = types.ResultBatch{}
	e.has = false
	e.mu.Unlock()
}

// Resolve matches an emotion detection bbox against the retained
// attendance batch. The candidate with the highest IoU wins; a strictly
// greater overlap is required to displace an earlier candidate, so ties
// keep first-seen order. A match is accepted only when the best IoU
// reaches the threshold and the batch is within the staleness window.
func (e *Engine) Resolve(box types.Box) Match {
	e.mu.Lock()
	batch, has := e.latest, e.has
	e.mu.Unlock()

	if !has || len(batch.Results) == 0 {
		return Match{}
	}
	if e.now().Sub(batch.Timestamp) > e.maxAge {
		return Match{}
	}

	best := Match{IoU: -1}
	for _, candidate := range batch.Results {
		overlap := IoU(box, candidate.Box)
		if overlap > best.IoU {
			best = Match{Label: candidate.Label, Score: candidate.Score, IoU: overlap}
		}
	}
	if best.IoU < e.minIoU {
		return Match{IoU: best.IoU}
	}
	best.Resolved = true
	return best
}
