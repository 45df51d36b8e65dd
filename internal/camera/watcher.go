package camera

import (
	"context"
	"time"
)

// DefaultWatchInterval matches the polling cadence used for detecting
// camera hot-swap and display geometry changes.
const DefaultWatchInterval = 400 * time.Millisecond

// DimsFunc reports the current dimensions of whatever is being watched.
type DimsFunc func() (int, int)

// Watcher polls a dimension source and fires a callback when the
// dimensions change. Polling is deliberate: it covers camera hot-swap
// and any other source that offers no change notification, and can be
// swapped for a native observer without touching pipeline logic.
type Watcher struct {
	dims     DimsFunc
	interval time.Duration
}

func NewWatcher(dims DimsFunc, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{dims: dims, interval: interval}
}

// Run blocks until ctx is cancelled, invoking onChange with the new
// dimensions whenever they differ from the last observed pair. Zero
// dimensions (source not ready) are ignored.
func (w *Watcher) Run(ctx context.Context, onChange func(width, height int)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	lastW, lastH := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cw, ch := w.dims()
			if cw < 1 || ch < 1 {
				continue
			}
			if cw != lastW || ch != lastH {
				lastW, lastH = cw, ch
				onChange(cw, ch)
			}
		}
	}
}
