package session

import (
	"context"
	"image"
	"time"

	"kiosk-vision-go/internal/transport"
)

// funLoop paces the emotion stream on its configured interval. The
// interval is re-read every cycle so a settings reload applies without
// rebuilding the timer.
func (s *Session) funLoop(ctx context.Context) {
	timer := time.NewTimer(s.currentSettings().FunInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RequestSend(transport.StreamFun)
			timer.Reset(s.currentSettings().FunInterval)
		}
	}
}

// attLoop evaluates the dual attendance trigger: an eager re-query
// shortly after a fusion miss, or the base interval elapsing. Whichever
// fires first wins; bandwidth goes to identity exactly when the emotion
// stream cannot label a face.
func (s *Session) attLoop(ctx context.Context) {
	ticker := time.NewTicker(attCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sinceLast := s.sinceLastAttSend()
			if sinceLast > attRetryWindow && s.missingName.Load() {
				s.RequestSend(transport.StreamAttendance)
				continue
			}
			if sinceLast > s.currentSettings().BaseInterval {
				s.RequestSend(transport.StreamAttendance)
			}
		}
	}
}

func (s *Session) sinceLastAttSend() time.Duration {
	last := s.lastAttSend.Load()
	if last == 0 {
		// Never sent: treat as infinitely long ago so the base trigger
		// fires immediately once a frame exists.
		return time.Duration(1<<62 - 1)
	}
	return s.now().Sub(time.Unix(0, last))
}

// RequestSend attempts one frame send on the given stream. If the
// previous send for that stream has not completed the request is
// dropped entirely, not queued; that guard is the only backpressure
// mechanism and keeps at most one frame per stream in flight. Returns
// whether a send was started.
func (s *Session) RequestSend(stream transport.Stream) bool {
	guard := &s.funInFlight
	if stream == transport.StreamAttendance {
		guard = &s.attInFlight
	}
	if !guard.CompareAndSwap(false, true) {
		s.counters.skipFor(stream).Add(1)
		s.metrics.SendSkipped(stream)
		return false
	}

	if stream == transport.StreamAttendance {
		s.lastAttSend.Store(s.now().UnixNano())
	}

	go func() {
		defer guard.Store(false)
		s.sendFrame(stream)
	}()
	return true
}

// sendFrame encodes the latest frame and emits it. Any failure here is
// a silent per-frame skip: the next scheduled send simply tries again.
func (s *Session) sendFrame(stream transport.Stream) {
	frame, ok := s.latestFrame()
	if !ok {
		return
	}

	settings := s.currentSettings()

	s.encodeMu.Lock()
	encoded := s.encoder.Encode(frame, settings.TargetWidth, settings.Quality)
	var snap *image.RGBA
	if encoded != nil {
		if scratch := s.encoder.Scratch(); scratch != nil {
			snap = image.NewRGBA(scratch.Bounds())
			copy(snap.Pix, scratch.Pix)
		}
	}
	s.encodeMu.Unlock()

	if encoded == nil {
		s.counters.encodeSkips.Add(1)
		s.metrics.EncodeSkipped()
		return
	}

	s.setSnapDims(encoded.Width, encoded.Height)
	if snap != nil {
		s.previewMu.Lock()
		s.lastSnap = snap
		s.previewMu.Unlock()
	}

	if err := s.bus.SendFrame(stream, encoded.Data); err != nil {
		// Disconnected or mid-reconnect; sending resumes on its own
		// with the next scheduled frame.
		s.counters.sendErrors.Add(1)
		s.metrics.SendFailed(stream)
		return
	}
	s.counters.sentFor(stream).Add(1)
	s.metrics.FrameSent(stream)
}
