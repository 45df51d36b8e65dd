package session

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-vision-go/internal/mapper"
	"kiosk-vision-go/internal/transport"
	"kiosk-vision-go/internal/types"
)

type fakeSource struct {
	frames chan types.Frame
	w, h   int
}

func (f *fakeSource) Frames() <-chan types.Frame { return f.frames }
func (f *fakeSource) Dims() (int, int)           { return f.w, f.h }

type sentFrame struct {
	stream transport.Stream
	size   int
}

type fakeBus struct {
	mu       sync.Mutex
	subs     []chan transport.Event
	sent     chan sentFrame
	release  chan struct{} // when non-nil, SendFrame blocks until closed
	unsubbed atomic.Int32
}

func (b *fakeBus) Subscribe() (<-chan transport.Event, func()) {
	ch := make(chan transport.Event, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, func() { b.unsubbed.Add(1) }
}

func (b *fakeBus) SendFrame(stream transport.Stream, data []byte) error {
	if b.release != nil {
		<-b.release
	}
	b.sent <- sentFrame{stream: stream, size: len(data)}
	return nil
}

func (b *fakeBus) Connected() bool { return true }

func jpegFrame(t *testing.T, w, h int) types.Frame {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return types.Frame{Data: buf.Bytes(), Width: w, Height: h, Timestamp: time.Now()}
}

func testDisplay() DisplayGeometry {
	return DisplayGeometry{Width: 640, Height: 480, Fit: mapper.FitFill}
}

func TestRequestSendGuardDropsWhileInFlight(t *testing.T) {
	bus := &fakeBus{sent: make(chan sentFrame, 8), release: make(chan struct{})}
	s := New(Options{
		Source:  &fakeSource{w: 64, h: 48},
		Bus:     bus,
		Display: testDisplay(),
	})
	s.frameMu.Lock()
	s.lastFrame = jpegFrame(t, 64, 48)
	s.hasFrame = true
	s.frameMu.Unlock()

	require.True(t, s.RequestSend(transport.StreamFun))
	assert.False(t, s.RequestSend(transport.StreamFun), "second request must be dropped, not queued")
	assert.Equal(t, uint64(1), s.counters.funSkipped.Load())

	// The guards are per stream: a parked fun send must not block attendance.
	require.True(t, s.RequestSend(transport.StreamAttendance))

	close(bus.release)
	streams := map[transport.Stream]int{}
	for i := 0; i < 2; i++ {
		got := <-bus.sent
		streams[got.stream]++
		assert.Greater(t, got.size, 0)
	}
	assert.Equal(t, map[transport.Stream]int{transport.StreamFun: 1, transport.StreamAttendance: 1}, streams)

	require.Eventually(t, func() bool {
		return s.RequestSend(transport.StreamFun)
	}, time.Second, 5*time.Millisecond, "guard must release after the send completes")
	<-bus.sent
}

func TestFusionResolvesIdentityAcrossStreams(t *testing.T) {
	s := New(Options{
		Source:  &fakeSource{w: 640, h: 480},
		Bus:     &fakeBus{sent: make(chan sentFrame, 1)},
		Display: testDisplay(),
	})
	s.onDimsChange(640, 480)
	s.setSnapDims(640, 480)

	attPayload := map[string]any{
		"results": []any{
			map[string]any{"bbox": []any{100.0, 100.0, 80.0, 80.0}, "label": "Alice", "score": 0.98},
		},
	}
	funPayload := map[string]any{
		"results": []any{
			map[string]any{"bbox": []any{104.0, 102.0, 80.0, 80.0}, "emotion": "happiness", "score": 0.9},
		},
	}

	s.handleAttResult(attPayload)
	s.handleFunResult(funPayload)

	dets := s.Detections()
	require.Len(t, dets, 1)
	assert.Equal(t, "Alice", dets[0].Identity)
	assert.Equal(t, "happy", dets[0].Expression)
	assert.False(t, s.missingName.Load())
	assert.Equal(t, uint64(1), s.counters.fusionHits.Load())
}

func TestStaleReferenceLeavesIdentityUnknown(t *testing.T) {
	s := New(Options{
		Source:  &fakeSource{w: 640, h: 480},
		Bus:     &fakeBus{sent: make(chan sentFrame, 1)},
		Display: testDisplay(),
	})
	s.onDimsChange(640, 480)
	s.setSnapDims(640, 480)

	// Stamp the attendance batch two seconds in the past so it ages out
	// of the fusion window before the emotion result arrives.
	s.now = func() time.Time { return time.Now().Add(-2 * time.Second) }
	s.handleAttResult(map[string]any{
		"results": []any{
			map[string]any{"bbox": []any{100.0, 100.0, 80.0, 80.0}, "label": "Alice", "score": 0.98},
		},
	})
	s.now = time.Now

	s.handleFunResult(map[string]any{
		"results": []any{
			map[string]any{"bbox": []any{104.0, 102.0, 80.0, 80.0}, "emotion": "sad", "score": 0.9},
		},
	})

	dets := s.Detections()
	require.Len(t, dets, 1)
	assert.Equal(t, "Unknown", dets[0].Identity)
	assert.True(t, s.missingName.Load(), "an unresolved face must arm the eager attendance trigger")
	assert.Equal(t, uint64(1), s.counters.fusionMisses.Load())
}

func TestAttendanceEagerTriggerAfterFusionMiss(t *testing.T) {
	bus := &fakeBus{sent: make(chan sentFrame, 16)}
	src := &fakeSource{frames: make(chan types.Frame, 1), w: 64, h: 48}
	s := New(Options{
		Source:  src,
		Bus:     bus,
		Display: testDisplay(),
		Settings: Settings{
			TargetWidth:  64,
			Quality:      0.7,
			FunInterval:  time.Hour,
			BaseInterval: time.Hour,
		},
	})
	// Pretend an attendance frame just went out so neither trigger fires.
	s.lastAttSend.Store(time.Now().UnixNano())

	s.Start(context.Background())
	defer s.Stop()

	src.frames <- jpegFrame(t, 64, 48)
	require.Eventually(t, func() bool {
		return s.counters.framesIn.Load() == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case got := <-bus.sent:
		t.Fatalf("unexpected %s send while within the retry window", got.stream)
	case <-time.After(150 * time.Millisecond):
	}

	// A fusion miss outside the retry window must produce an attendance
	// send well before the base interval.
	s.lastAttSend.Store(time.Now().Add(-time.Second).UnixNano())
	s.missingName.Store(true)

	select {
	case got := <-bus.sent:
		assert.Equal(t, transport.StreamAttendance, got.stream)
	case <-time.After(time.Second):
		t.Fatal("eager attendance send never fired")
	}
}

func TestStopReleasesTransportOnce(t *testing.T) {
	bus := &fakeBus{sent: make(chan sentFrame, 8)}
	src := &fakeSource{frames: make(chan types.Frame), w: 64, h: 48}
	var released atomic.Int32
	s := New(Options{
		Source:           src,
		Bus:              bus,
		ReleaseTransport: func() { released.Add(1) },
		Display:          testDisplay(),
		Settings:         Settings{FunInterval: time.Hour, BaseInterval: time.Hour},
	})
	s.lastAttSend.Store(time.Now().UnixNano())

	s.Start(context.Background())
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, int32(1), bus.unsubbed.Load())
}

func TestConnectionEventsUpdateStatus(t *testing.T) {
	var mu sync.Mutex
	var msgs []uiMessage
	s := New(Options{
		Source:  &fakeSource{w: 64, h: 48},
		Bus:     &fakeBus{sent: make(chan sentFrame, 1)},
		Display: testDisplay(),
		Broadcast: func(m any) {
			mu.Lock()
			msgs = append(msgs, m.(uiMessage))
			mu.Unlock()
		},
	})

	s.handleEvent(transport.Event{Kind: transport.EventConnect})
	assert.True(t, s.counters.connected.Load())

	s.handleEvent(transport.Event{Kind: transport.EventDisconnect})
	assert.False(t, s.counters.connected.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, msgs, 2)
	assert.Equal(t, "connected", msgs[0].Status)
	assert.Equal(t, "disconnected", msgs[1].Status)
}

func TestStatusSnapshot(t *testing.T) {
	s := New(Options{
		Source:  &fakeSource{w: 640, h: 480},
		Bus:     &fakeBus{sent: make(chan sentFrame, 1)},
		Display: testDisplay(),
	})
	s.counters.framesIn.Add(3)
	s.counters.attSent.Add(2)

	status := s.Status()
	assert.Equal(t, s.ID(), status["session"])
	assert.Equal(t, "disconnected", status["backend"])
	assert.Equal(t, uint64(3), status["frames_in"])
	assert.Equal(t, uint64(2), status["att_sent"])
	assert.Equal(t, 640, status["video_width"])
}

func TestUpdateSettingsSwapsLive(t *testing.T) {
	s := New(Options{
		Source:  &fakeSource{w: 64, h: 48},
		Bus:     &fakeBus{sent: make(chan sentFrame, 1)},
		Display: testDisplay(),
	})
	assert.Equal(t, 350*time.Millisecond, s.currentSettings().FunInterval)

	s.UpdateSettings(Settings{
		TargetWidth:  320,
		Quality:      0.5,
		FunInterval:  100 * time.Millisecond,
		BaseInterval: 2 * time.Second,
	})
	got := s.currentSettings()
	assert.Equal(t, 320, got.TargetWidth)
	assert.Equal(t, 100*time.Millisecond, got.FunInterval)
}
