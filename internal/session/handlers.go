package session

import (
	"context"
	"encoding/json"

	"kiosk-vision-go/internal/overlay"
	"kiosk-vision-go/internal/transport"
	"kiosk-vision-go/internal/types"
)

const unknownIdentity = "Unknown"

// eventLoop consumes inbound backend events. No panic may escape a
// handler: a dead event loop would silently stall the whole view.
func (s *Session) eventLoop(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("event", string(ev.Kind)).Msg("recovered in event handler")
		}
	}()

	switch ev.Kind {
	case transport.EventConnect:
		s.counters.setConnected(true)
		s.metrics.SetConnected(true)
		s.send(uiMessage{Type: "status", Status: "connected"})
	case transport.EventDisconnect:
		s.counters.setConnected(false)
		s.metrics.SetConnected(false)
		s.send(uiMessage{Type: "status", Status: "disconnected"})
	case transport.EventConnectError:
		s.counters.setConnected(false)
		s.metrics.SetConnected(false)
		s.send(uiMessage{Type: "status", Status: "unreachable"})
	case transport.EventAttResult:
		s.record(ev)
		s.handleAttResult(ev.Payload)
	case transport.EventFunResult:
		s.record(ev)
		s.handleFunResult(ev.Payload)
	}
}

func (s *Session) record(ev transport.Event) {
	if s.recorder == nil || ev.Payload == nil {
		return
	}
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return
	}
	if err := s.recorder.Record(string(ev.Kind), raw); err != nil {
		s.logger.Warn().Err(err).Msg("event record failed")
	}
}

// handleAttResult stores a fresh attendance batch as the fusion
// reference window and surfaces one-shot check-in notifications.
func (s *Session) handleAttResult(payload map[string]any) {
	if payload == nil {
		return
	}
	batch := types.NormalizeBatch(payload, s.now())
	s.counters.attResults.Add(1)
	s.metrics.ResultReceived(transport.StreamAttendance)

	s.fusion.Store(batch)
	s.attCache.Set("latest", batch, 0)

	for _, marked := range batch.MarkedInfo {
		s.logger.Info().Str("label", marked.Label).Float64("score", marked.Score).Msg("attendance marked")
		s.send(uiMessage{Type: "marked", Marked: &marked})
	}

	s.drawBatch(attendanceDetections(batch))
}

// handleFunResult fuses each emotion detection with the retained
// attendance batch and redraws the overlay.
func (s *Session) handleFunResult(payload map[string]any) {
	if payload == nil {
		return
	}
	batch := types.NormalizeBatch(payload, s.now())
	s.counters.funResults.Add(1)
	s.metrics.ResultReceived(transport.StreamFun)

	s.funCache.Set("latest", batch, 0)

	missing := false
	fused := make([]overlay.Detection, 0, len(batch.Results))
	for _, det := range batch.Results {
		match := s.fusion.Resolve(det.Box)
		identity := match.Label
		if !match.Resolved {
			missing = true
			s.metrics.FusionUnresolved()
			s.counters.fusionMisses.Add(1)
			// Fall back to whatever the emotion stream reported itself.
			identity = det.Label
			if identity == "" {
				identity = unknownIdentity
			}
		} else {
			s.metrics.FusionResolved()
			s.counters.fusionHits.Add(1)
		}
		fused = append(fused, overlay.Detection{
			Box:        det.Box,
			Identity:   identity,
			Expression: types.NormalizeExpression(det.Expression),
		})
	}
	s.missingName.Store(missing)

	s.drawBatch(fused)
}

// attendanceDetections converts an attendance batch for drawing:
// identity pill only, the box colored neutral until an expression comes
// in from the emotion stream.
func attendanceDetections(batch types.ResultBatch) []overlay.Detection {
	out := make([]overlay.Detection, 0, len(batch.Results))
	for _, det := range batch.Results {
		identity := det.Label
		if identity == "" {
			identity = unknownIdentity
		}
		out = append(out, overlay.Detection{Box: det.Box, Identity: identity})
	}
	return out
}

// drawBatch maps encoded-frame boxes into display space, drops the ones
// too small to draw, and fully redraws the overlay.
func (s *Session) drawBatch(detections []overlay.Detection) {
	transform := s.currentTransform()

	mapped := make([]overlay.Detection, 0, len(detections))
	for _, det := range detections {
		box, ok := transform.ClampToDisplay(det.Box, float64(s.display.Width), float64(s.display.Height))
		if !ok {
			continue
		}
		det.Box = box
		mapped = append(mapped, det)
	}

	s.previewMu.Lock()
	s.renderer.Draw(mapped)
	s.detections = mapped
	s.previewMu.Unlock()

	s.send(uiMessage{Type: "detections", Detections: mapped})
}

func (s *Session) send(msg uiMessage) {
	if s.broadcast != nil {
		s.broadcast(msg)
	}
}

// uiMessage is the JSON shape broadcast to operator UI viewers.
type uiMessage struct {
	Type       string              `json:"type"`
	Status     string              `json:"status,omitempty"`
	Marked     *types.MarkedEvent  `json:"marked,omitempty"`
	Detections []overlay.Detection `json:"detections,omitempty"`
}
