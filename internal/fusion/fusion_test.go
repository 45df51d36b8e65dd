package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-vision-go/internal/types"
)

func box(x, y, w, h float64) types.Box {
	return types.Box{X: x, Y: y, W: w, H: h}
}

func TestIoUProperties(t *testing.T) {
	a := box(10, 10, 50, 50)
	b := box(40, 40, 50, 50)
	c := box(200, 200, 10, 10)

	assert.InDelta(t, 1.0, IoU(a, a), 1e-12, "identical boxes")
	assert.Equal(t, 0.0, IoU(a, c), "disjoint boxes")
	assert.InDelta(t, IoU(a, b), IoU(b, a), 1e-12, "symmetry")

	overlap := IoU(a, b)
	assert.Greater(t, overlap, 0.0)
	assert.Less(t, overlap, 1.0)

	assert.Equal(t, 0.0, IoU(box(0, 0, 0, 0), a), "degenerate box")
}

func TestResolveAcceptsFreshMatch(t *testing.T) {
	e := New(0, 0)
	e.Store(types.ResultBatch{
		Timestamp: time.Now(),
		Results: []types.DetectionResult{
			{Box: box(10, 10, 50, 50), Label: "Alice", Score: 0.9},
		},
	})

	m := e.Resolve(box(12, 11, 48, 49))
	require.True(t, m.Resolved)
	assert.Equal(t, "Alice", m.Label)
	assert.GreaterOrEqual(t, m.IoU, 0.25)
}

func TestResolveThresholdIsInclusive(t *testing.T) {
	e := New(0, 0)
	now := time.Now()
	e.now = func() time.Time { return now }

	// IoU of these boxes is exactly 0.25: intersection 25, union 100.
	e.Store(types.ResultBatch{
		Timestamp: now,
		Results:   []types.DetectionResult{{Box: box(0, 0, 10, 10), Label: "Edge"}},
	})
	m := e.Resolve(box(5, 0, 5, 5))
	if !assert.InDelta(t, 0.25, IoU(box(0, 0, 10, 10), box(5, 0, 5, 5)), 1e-12) {
		t.FailNow()
	}
	assert.True(t, m.Resolved, "IoU exactly at threshold is accepted")

	// Just below the threshold is rejected.
	e.Store(types.ResultBatch{
		Timestamp: now,
		Results:   []types.DetectionResult{{Box: box(0, 0, 100, 100), Label: "Low"}},
	})
	m = e.Resolve(box(90, 90, 100, 100))
	assert.False(t, m.Resolved)
	assert.Empty(t, m.Label)
}

func TestResolveStaleBatchIsIgnored(t *testing.T) {
	e := New(0, 0)
	now := time.Now()
	e.now = func() time.Time { return now }
	e.Store(types.ResultBatch{
		Timestamp: now.Add(-1801 * time.Millisecond),
		Results:   []types.DetectionResult{{Box: box(10, 10, 50, 50), Label: "Alice"}},
	})

	m := e.Resolve(box(10, 10, 50, 50))
	assert.False(t, m.Resolved, "batch older than the window is never used")
}

func TestResolveWindowBoundary(t *testing.T) {
	e := New(0, 0)
	now := time.Now()
	e.now = func() time.Time { return now }
	e.Store(types.ResultBatch{
		Timestamp: now.Add(-1800 * time.Millisecond),
		Results:   []types.DetectionResult{{Box: box(10, 10, 50, 50), Label: "Alice"}},
	})

	m := e.Resolve(box(10, 10, 50, 50))
	assert.True(t, m.Resolved, "batch exactly at the window edge is usable")
}

func TestResolveTieKeepsFirstSeen(t *testing.T) {
	e := New(0, 0)
	e.Store(types.ResultBatch{
		Timestamp: time.Now(),
		Results: []types.DetectionResult{
			{Box: box(10, 10, 50, 50), Label: "First"},
			{Box: box(10, 10, 50, 50), Label: "Second"},
		},
	})

	m := e.Resolve(box(10, 10, 50, 50))
	require.True(t, m.Resolved)
	assert.Equal(t, "First", m.Label)
}

func TestResolveEmptyOrMissingReference(t *testing.T) {
	e := New(0, 0)
	assert.False(t, e.Resolve(box(0, 0, 10, 10)).Resolved)

	e.Store(types.ResultBatch{Timestamp: time.Now()})
	assert.False(t, e.Resolve(box(0, 0, 10, 10)).Resolved)

	e.Store(types.ResultBatch{
		Timestamp: time.Now(),
		Results:   []types.DetectionResult{{Box: box(0, 0, 10, 10), Label: "X"}},
	})
	e.Clear()
	assert.False(t, e.Resolve(box(0, 0, 10, 10)).Resolved)
}
