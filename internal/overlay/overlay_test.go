package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-vision-go/internal/types"
)

func TestDrawClearsPreviousBatch(t *testing.T) {
	r := New(200, 200)
	r.Draw([]Detection{{
		Box:        types.Box{X: 50, Y: 50, W: 80, H: 80},
		Identity:   "Alice",
		Expression: "happy",
	}})

	// The box stroke leaves opaque pixels on its top edge.
	_, _, _, a := r.Image().At(60, 50).RGBA()
	require.NotZero(t, a)

	r.Draw(nil)
	_, _, _, a = r.Image().At(60, 50).RGBA()
	assert.Zero(t, a, "canvas must be fully cleared between batches")
}

func TestPillHorizontalClamp(t *testing.T) {
	r := New(100, 100)

	rect := r.PillRect("a-rather-long-name", 90, 10)
	assert.LessOrEqual(t, rect.Max.X, 100, "pill clamped to right edge")
	assert.GreaterOrEqual(t, rect.Min.X, 0)

	rect = r.PillRect("x", -20, 10)
	assert.Equal(t, 0, rect.Min.X, "pill clamped to left edge")
}

func TestTopPillFlipsBelowEdge(t *testing.T) {
	r := New(200, 200)
	// Box at the very top: identity pill cannot fit above, so it flips
	// below the top edge of the box.
	box := types.Box{X: 20, Y: 4, W: 60, H: 60}
	wantY := int(box.Y) + labelGap

	defaultY := int(box.Y) - labelHeight - labelGap
	require.Negative(t, defaultY)

	rect := r.PillRect("Alice", int(box.X), wantY)
	assert.Equal(t, wantY, rect.Min.Y)

	r.Draw([]Detection{{Box: box, Identity: "Alice"}})
	_, _, _, a := r.Image().At(rect.Min.X+2, rect.Min.Y+2).RGBA()
	assert.NotZero(t, a, "flipped pill drawn inside the canvas")
}

func TestBottomPillFlipsAboveEdge(t *testing.T) {
	r := New(200, 200)
	box := types.Box{X: 20, Y: 130, W: 60, H: 66}
	r.Draw([]Detection{{Box: box, Expression: "happy"}})

	// Default position 130+66+3 = 199 would overflow 199+17 > 200, so
	// the pill sits above the bottom edge of the box.
	flippedY := int(box.Y) + int(box.H) - labelHeight - labelGap
	rect := r.PillRect("happy", int(box.X), flippedY)
	_, _, _, a := r.Image().At(rect.Min.X+2, rect.Min.Y+2).RGBA()
	assert.NotZero(t, a)
}

func TestResizeReallocatesOnlyOnChange(t *testing.T) {
	r := New(100, 100)
	before := r.Image()
	r.Resize(100, 100)
	assert.Same(t, before, r.Image(), "same dimensions keep the canvas")

	r.Resize(120, 100)
	assert.NotSame(t, before, r.Image())
	assert.Equal(t, image.Rect(0, 0, 120, 100), r.Image().Bounds())
}

func TestCompositeKeepsBase(t *testing.T) {
	r := New(10, 10)
	base := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range base.Pix {
		base.Pix[i] = 0xff
	}
	out := r.Composite(base)
	_, _, _, a := out.At(5, 5).RGBA()
	assert.NotZero(t, a)
}
