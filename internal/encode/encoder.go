// Package encode rasterizes camera frames into a fixed-width snapshot
// buffer and compresses them to JPEG payloads for the wire.
package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"kiosk-vision-go/internal/cache"
	"kiosk-vision-go/internal/types"
)

const (
	MinTargetWidth = 160
	MaxTargetWidth = 1920

	// Encoded payloads are cached briefly so rapid polling of the same
	// video state does not re-encode identical frames.
	encodeCacheTTL  = 5 * time.Second
	encodeCacheSize = 32

	// Frames inside the same bucket are considered identical video state.
	timestampBucket = 200 * time.Millisecond
)

// ClampWidth bounds a target encode width to the supported range.
func ClampWidth(w int) int {
	if w < MinTargetWidth {
		return MinTargetWidth
	}
	if w > MaxTargetWidth {
		return MaxTargetWidth
	}
	return w
}

// ClampQuality bounds a 0..1 quality setting.
func ClampQuality(q float64) float64 {
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// Encoded is a compressed snapshot plus the dimensions it was encoded
// at, which downstream coordinate mapping needs.
type Encoded struct {
	Data   []byte
	Width  int
	Height int
}

// Encoder owns a persistent scratch buffer that is resized only when
// the target dimensions actually change. Not safe for concurrent use;
// the per-stream in-flight guard upstream serializes calls.
type Encoder struct {
	scratch *image.RGBA
	cache   *cache.Cache[Encoded]
}

func New() *Encoder {
	return &Encoder{
		cache: cache.New[Encoded](encodeCacheSize, encodeCacheTTL),
	}
}

// Encode decodes frame, scales it to the clamped target width keeping
// aspect ratio, and compresses it at the clamped quality. Returns nil
// when the frame cannot be used (empty, undecodable, degenerate dims);
// that is a silent skip, not an error, since it is expected while the
// camera warms up.
func (e *Encoder) Encode(frame types.Frame, targetWidth int, quality float64) *Encoded {
	if len(frame.Data) == 0 || frame.Width < 1 || frame.Height < 1 {
		return nil
	}

	tw := ClampWidth(targetWidth)
	th := int(float64(tw)*float64(frame.Height)/float64(frame.Width) + 0.5)
	if th < 1 {
		return nil
	}

	key := fmt.Sprintf("%dx%d@%d", tw, th, frame.Timestamp.UnixNano()/int64(timestampBucket))
	if cached, ok := e.cache.Get(key); ok {
		return &cached
	}

	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil
	}

	e.ensureScratch(tw, th)
	Scale(e.scratch, src)

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: jpegQuality(ClampQuality(quality))}
	if err := jpeg.Encode(&buf, e.scratch, opts); err != nil {
		return nil
	}

	out := Encoded{Data: buf.Bytes(), Width: tw, Height: th}
	e.cache.Set(key, out, 0)
	return &out
}

// Scratch returns the most recently rasterized snapshot. The encoder
// keeps ownership; callers must copy before holding on to it.
func (e *Encoder) Scratch() *image.RGBA {
	return e.scratch
}

func (e *Encoder) ensureScratch(w, h int) {
	if e.scratch != nil {
		b := e.scratch.Bounds()
		if b.Dx() == w && b.Dy() == h {
			return
		}
	}
	e.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
}

// Scale draws src into dst with nearest-neighbor sampling. Good enough
// for recognition snapshots; the backend does its own preprocessing.
func Scale(dst *image.RGBA, src image.Image) {
	db := dst.Bounds()
	sb := src.Bounds()
	dw, dh := db.Dx(), db.Dy()
	sw, sh := sb.Dx(), sb.Dy()
	if dw < 1 || dh < 1 || sw < 1 || sh < 1 {
		return
	}
	for y := 0; y < dh; y++ {
		sy := sb.Min.Y + y*sh/dh
		for x := 0; x < dw; x++ {
			sx := sb.Min.X + x*sw/dw
			dst.Set(db.Min.X+x, db.Min.Y+y, src.At(sx, sy))
		}
	}
}

func jpegQuality(q float64) int {
	quality := int(q * 100)
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return quality
}
