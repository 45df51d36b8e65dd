// Package mapper converts bounding boxes from encoded-frame pixel space
// into display pixel space, accounting for the letterbox or crop the
// display applies when its aspect ratio differs from the source video.
package mapper

import (
	"math"

	"kiosk-vision-go/internal/types"
)

// FitMode mirrors the CSS object-fit modes the kiosk display uses.
type FitMode string

const (
	FitCover   FitMode = "cover"
	FitFill    FitMode = "fill"
	FitContain FitMode = "contain"
)

// MinBoxExtent is the smallest mapped box extent worth drawing. Boxes
// clamped below this on either axis are dropped, never drawn with zero
// or negative size.
const MinBoxExtent = 2.0

// Transform is the affine map from encoded-frame space to display space:
// x' = Ox + x*Sx, y' = Oy + y*Sy.
type Transform struct {
	Sx float64
	Sy float64
	Ox float64
	Oy float64
}

// Compute builds the transform for an encoded frame of (snapW, snapH)
// taken from a video of native (videoW, videoH), shown in a display box
// of (dispW, dispH) with the given fit mode.
//
// The encoded frame and the native video share an aspect ratio (the
// encoder scales uniformly), so the chain is snap → video → display.
// Degenerate dimensions anywhere in the chain fall back to a direct
// snap → display ratio with zero offsets.
func Compute(snapW, snapH, videoW, videoH, dispW, dispH float64, fit FitMode) Transform {
	if snapW <= 0 || snapH <= 0 || videoW <= 0 || videoH <= 0 || dispW <= 0 || dispH <= 0 {
		t := Transform{Sx: 1, Sy: 1}
		if snapW > 0 && dispW > 0 {
			t.Sx = dispW / snapW
		}
		if snapH > 0 && dispH > 0 {
			t.Sy = dispH / snapH
		}
		return t
	}

	// Scale from encoded-frame pixels up to native video pixels.
	snapToVideoX := videoW / snapW
	snapToVideoY := videoH / snapH

	switch fit {
	case FitFill:
		return Transform{
			Sx: snapToVideoX * (dispW / videoW),
			Sy: snapToVideoY * (dispH / videoH),
		}
	case FitCover:
		scale := math.Max(dispW/videoW, dispH/videoH)
		return Transform{
			Sx: snapToVideoX * scale,
			Sy: snapToVideoY * scale,
			Ox: (dispW - videoW*scale) / 2,
			Oy: (dispH - videoH*scale) / 2,
		}
	default: // contain
		scale := math.Min(dispW/videoW, dispH/videoH)
		return Transform{
			Sx: snapToVideoX * scale,
			Sy: snapToVideoY * scale,
			Ox: (dispW - videoW*scale) / 2,
			Oy: (dispH - videoH*scale) / 2,
		}
	}
}

// Apply maps a point from encoded-frame space to display space.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.Ox + x*t.Sx, t.Oy + y*t.Sy
}

// Invert maps a display-space point back to encoded-frame space.
func (t Transform) Invert(x, y float64) (float64, float64) {
	ix, iy := x, y
	if t.Sx != 0 {
		ix = (x - t.Ox) / t.Sx
	}
	if t.Sy != 0 {
		iy = (y - t.Oy) / t.Sy
	}
	return ix, iy
}

// MapBox maps a box into display space without clamping.
func (t Transform) MapBox(b types.Box) types.Box {
	x, y := t.Apply(b.X, b.Y)
	return types.Box{X: x, Y: y, W: b.W * t.Sx, H: b.H * t.Sy}
}

// ClampToDisplay maps a box into display space, clamps it against the
// display rectangle and reports whether the result is still worth
// drawing. Boxes reduced below MinBoxExtent on either axis are dropped.
func (t Transform) ClampToDisplay(b types.Box, dispW, dispH float64) (types.Box, bool) {
	mapped := t.MapBox(b)

	x1 := math.Max(mapped.X, 0)
	y1 := math.Max(mapped.Y, 0)
	x2 := math.Min(mapped.X+mapped.W, dispW)
	y2 := math.Min(mapped.Y+mapped.H, dispH)

	clamped := types.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
	if clamped.W < MinBoxExtent || clamped.H < MinBoxExtent {
		return types.Box{}, false
	}
	return clamped, true
}
