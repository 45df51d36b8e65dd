// Package overlay draws labeled detection boxes onto a transparent RGBA
// canvas. The canvas is fully cleared and redrawn on every result batch;
// batches are small (a handful of faces) so incremental diffing is not
// worth the bookkeeping.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"kiosk-vision-go/internal/types"
)

const (
	strokeWidth = 2
	labelHeight = 17
	labelPadX   = 4
	labelGap    = 3
	glyphWidth  = 7 // basicfont.Face7x13 advance
)

// Detection is one fused, display-space detection ready to draw.
type Detection struct {
	Box        types.Box `json:"box"`        // display space, already clamped
	Identity   string    `json:"identity"`   // resolved name or "Unknown"
	Expression string    `json:"expression"` // normalized expression category
}

var expressionColors = map[string]color.RGBA{
	"happy":    {46, 204, 113, 255},
	"sad":      {52, 152, 219, 255},
	"angry":    {231, 76, 60, 255},
	"surprise": {243, 156, 18, 255},
	"fear":     {155, 89, 182, 255},
	"disgust":  {128, 128, 0, 255},
	"neutral":  {170, 170, 170, 255},
}

var (
	pillBackground = color.RGBA{0, 0, 0, 190}
	labelText      = color.RGBA{255, 255, 255, 255}
)

// Renderer owns the overlay canvas exclusively. Not safe for concurrent
// use; the session serializes draws.
type Renderer struct {
	canvas *image.RGBA
	w, h   int
}

func New(w, h int) *Renderer {
	r := &Renderer{}
	r.Resize(w, h)
	return r
}

// Resize reallocates the canvas only when the host dimensions actually
// change, mirroring the encoder's scratch-buffer guard.
func (r *Renderer) Resize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if r.canvas != nil && r.w == w && r.h == h {
		return
	}
	r.w, r.h = w, h
	r.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
}

// Clear wipes the canvas fully transparent.
func (r *Renderer) Clear() {
	for i := range r.canvas.Pix {
		r.canvas.Pix[i] = 0
	}
}

// Draw clears the canvas and renders every detection: a stroked box in a
// color keyed by expression, an identity pill above the box and an
// expression pill below it. Pills are clamped into the host rect
// horizontally and flip to the opposite side of the box edge when the
// default position would run off-canvas.
func (r *Renderer) Draw(detections []Detection) {
	r.Clear()
	for _, det := range detections {
		r.drawOne(det)
	}
}

// Image returns the overlay canvas. The caller must not mutate it.
func (r *Renderer) Image() *image.RGBA {
	return r.canvas
}

// Composite draws the overlay on top of base scaled 1:1 into a new
// image, for the operator preview endpoint.
func (r *Renderer) Composite(base image.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	if base != nil {
		draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)
	}
	draw.Draw(out, out.Bounds(), r.canvas, image.Point{}, draw.Over)
	return out
}

func (r *Renderer) drawOne(det Detection) {
	col, ok := expressionColors[det.Expression]
	if !ok {
		col = expressionColors["neutral"]
	}

	x := int(det.Box.X)
	y := int(det.Box.Y)
	w := int(det.Box.W)
	h := int(det.Box.H)
	r.strokeRect(x, y, w, h, col)

	if det.Identity != "" {
		ly := y - labelHeight - labelGap
		if ly < 0 {
			// Top pill would run off-canvas: flip below the box top edge.
			ly = y + labelGap
		}
		r.drawPill(det.Identity, x, ly)
	}

	if det.Expression != "" {
		ly := y + h + labelGap
		if ly+labelHeight > r.h {
			// Bottom pill would run off-canvas: flip above the box bottom edge.
			ly = y + h - labelHeight - labelGap
		}
		r.drawPill(det.Expression, x, ly)
	}
}

// PillRect returns the clamped on-canvas rectangle a pill for text at
// the requested position would occupy. Exposed for layout tests.
func (r *Renderer) PillRect(text string, x, y int) image.Rectangle {
	w := glyphWidth*len(text) + 2*labelPadX
	if x+w > r.w {
		x = r.w - w
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if y+labelHeight > r.h {
		y = r.h - labelHeight
	}
	return image.Rect(x, y, x+w, y+labelHeight)
}

func (r *Renderer) drawPill(text string, x, y int) {
	rect := r.PillRect(text, x, y)
	draw.Draw(r.canvas, rect, image.NewUniform(pillBackground), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  r.canvas,
		Src:  image.NewUniform(labelText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(rect.Min.X+labelPadX, rect.Min.Y+labelHeight-labelPadX),
	}
	d.DrawString(text)
}

func (r *Renderer) strokeRect(x, y, w, h int, col color.RGBA) {
	if w < 1 || h < 1 {
		return
	}
	src := image.NewUniform(col)
	top := image.Rect(x, y, x+w, y+strokeWidth)
	bottom := image.Rect(x, y+h-strokeWidth, x+w, y+h)
	left := image.Rect(x, y, x+strokeWidth, y+h)
	right := image.Rect(x+w-strokeWidth, y, x+w, y+h)
	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(r.canvas, edge.Intersect(r.canvas.Bounds()), src, image.Point{}, draw.Over)
	}
}
