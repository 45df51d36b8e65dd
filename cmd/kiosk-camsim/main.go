// kiosk-camsim publishes simulated camera frames over ZMQ in the same
// message shape the kiosk agent pulls from a real camera daemon, for
// running the full pipeline without hardware.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog"

	"kiosk-vision-go/internal/camera"
)

func main() {
	var (
		bind   = flag.String("bind", "tcp://*:5555", "ZMQ bind address for the frame stream")
		width  = flag.Int("width", 640, "Frame width in pixels")
		height = flag.Int("height", 480, "Frame height in pixels")
		fps    = flag.Float64("fps", 15, "Frames per second")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		logger.Fatal().Err(err).Msg("create socket")
	}
	defer socket.Close()
	if err := socket.Bind(*bind); err != nil {
		logger.Fatal().Err(err).Str("bind", *bind).Msg("bind socket")
	}

	sim := camera.NewSimulator(ctx, *width, *height, *fps)
	logger.Info().Str("bind", *bind).Int("width", *width).Int("height", *height).
		Float64("fps", *fps).Msg("publishing simulated frames")

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("frames", sent).Msg("stopping")
			return
		case frame, ok := <-sim.Frames():
			if !ok {
				return
			}
			payload, err := cbor.Marshal(map[string]any{
				"type":   "frame",
				"width":  frame.Width,
				"height": frame.Height,
				"data":   frame.Data,
				"ts":     frame.Timestamp.UnixNano(),
			})
			if err != nil {
				continue
			}
			if _, err := socket.SendBytes(payload, 0); err != nil {
				logger.Warn().Err(err).Msg("send frame")
				continue
			}
			sent++
			if sent%500 == 0 {
				logger.Info().Uint64("frames", sent).Msg("still publishing")
			}
		}
	}
}
