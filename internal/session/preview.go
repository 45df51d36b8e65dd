package session

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"

	"kiosk-vision-go/internal/encode"
	"kiosk-vision-go/internal/overlay"
)

// Preview renders the operator preview: the last outbound snapshot
// scaled into the display rect under the current fit transform, with
// the live overlay composited on top. Returns nil before the first
// successful encode.
func (s *Session) Preview() []byte {
	s.previewMu.Lock()
	snap := s.lastSnap
	var over *image.RGBA
	if s.renderer != nil {
		over = s.renderer.Image()
	}
	s.previewMu.Unlock()

	if snap == nil {
		return nil
	}

	out := image.NewRGBA(image.Rect(0, 0, s.display.Width, s.display.Height))

	t := s.currentTransform()
	b := snap.Bounds()
	x0, y0 := t.Apply(0, 0)
	x1, y1 := t.Apply(float64(b.Dx()), float64(b.Dy()))
	dst := image.Rect(int(x0), int(y0), int(x1), int(y1)).Intersect(out.Bounds())
	if !dst.Empty() {
		if sub, ok := out.SubImage(dst).(*image.RGBA); ok {
			encode.Scale(sub, snap)
		}
	}

	if over != nil {
		draw.Draw(out, out.Bounds(), over, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Detections returns the most recently drawn display-space detections.
func (s *Session) Detections() []overlay.Detection {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	out := make([]overlay.Detection, len(s.detections))
	copy(out, s.detections)
	return out
}
