package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync/atomic"
	"time"

	"kiosk-vision-go/internal/types"
)

// Simulator generates synthetic camera frames: a gradient background
// with a face-sized block orbiting the center, so the full pipeline can
// run end to end without hardware or a backend that detects anything
// meaningful.
type Simulator struct {
	out    chan types.Frame
	width  atomic.Int64
	height atomic.Int64
}

func NewSimulator(ctx context.Context, width, height int, fps float64) *Simulator {
	if width < 16 {
		width = 640
	}
	if height < 16 {
		height = 480
	}
	if fps <= 0 {
		fps = 15
	}

	s := &Simulator{out: make(chan types.Frame, 4)}
	s.width.Store(int64(width))
	s.height.Store(int64(height))

	go func() {
		defer close(s.out)
		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()

		img := image.NewRGBA(image.Rect(0, 0, width, height))
		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				drawSimFrame(img, time.Since(start).Seconds())
				var buf bytes.Buffer
				if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
					continue
				}
				frame := types.Frame{
					Data:      buf.Bytes(),
					Width:     width,
					Height:    height,
					Timestamp: time.Now(),
				}
				select {
				case <-ctx.Done():
					return
				case s.out <- frame:
				default:
				}
			}
		}
	}()

	return s
}

func (s *Simulator) Frames() <-chan types.Frame {
	return s.out
}

func (s *Simulator) Dims() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func drawSimFrame(img *image.RGBA, t float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(64 + x*128/w), uint8(64 + y*128/h), 90, 255})
		}
	}

	// Orbiting block roughly where a face would be.
	size := h / 4
	cx := w/2 + int(float64(w)/4*math.Cos(t))
	cy := h/2 + int(float64(h)/6*math.Sin(t*1.3))
	for y := cy - size/2; y < cy+size/2; y++ {
		for x := cx - size/2; x < cx+size/2; x++ {
			if x >= 0 && x < w && y >= 0 && y < h {
				img.SetRGBA(x, y, color.RGBA{220, 190, 160, 255})
			}
		}
	}
}
