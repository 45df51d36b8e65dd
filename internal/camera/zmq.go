package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog"

	"kiosk-vision-go/internal/types"
)

// ZMQSource pulls CBOR-framed JPEG frames from a camera daemon.
// Expected message shape:
//
//	{ "type": "frame", "width": <int>, "height": <int>,
//	  "data": <bytes>, "ts": <unix nanos> }
type ZMQSource struct {
	out    chan types.Frame
	width  atomic.Int64
	height atomic.Int64
}

// OpenZMQ connects to the camera daemon. A failed connect is reported
// as ErrCameraAccess; the caller shows it once and does not retry.
func OpenZMQ(ctx context.Context, endpoint string, logger zerolog.Logger) (*ZMQSource, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraAccess, err)
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", ErrCameraAccess, endpoint, err)
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("%w: %v", ErrCameraAccess, err)
	}

	s := &ZMQSource{out: make(chan types.Frame, 8)}
	log := logger.With().Str("component", "camera").Str("endpoint", endpoint).Logger()

	go func() {
		defer close(s.out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				// Receive timeout keeps the ctx check responsive.
				continue
			}

			frame, ok := decodeFrame(msg)
			if !ok {
				log.Debug().Int("bytes", len(msg)).Msg("skipping undecodable camera message")
				continue
			}

			s.width.Store(int64(frame.Width))
			s.height.Store(int64(frame.Height))

			select {
			case <-ctx.Done():
				return
			case s.out <- frame:
			default:
				// Consumer is behind; drop rather than queue. The next
				// frame supersedes this one anyway.
			}
		}
	}()

	return s, nil
}

func (s *ZMQSource) Frames() <-chan types.Frame {
	return s.out
}

func (s *ZMQSource) Dims() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func decodeFrame(msg []byte) (types.Frame, bool) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.Frame{}, false
	}

	msgType, _ := payload["type"].(string)
	if msgType != "frame" {
		return types.Frame{}, false
	}

	data, _ := payload["data"].([]byte)
	width := toInt(payload["width"])
	height := toInt(payload["height"])
	if len(data) == 0 || width < 1 || height < 1 {
		return types.Frame{}, false
	}

	ts := time.Now()
	if nanos := toInt64(payload["ts"]); nanos > 0 {
		ts = time.Unix(0, nanos)
	}

	return types.Frame{Data: data, Width: width, Height: height, Timestamp: ts}, true
}

func toInt(v any) int {
	return int(toInt64(v))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
