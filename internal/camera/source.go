// Package camera supplies live frames to the pipeline, either from a
// local camera daemon over ZMQ or from a built-in simulator. It also
// provides the dimension watcher that detects camera hot-swap and
// display geometry changes.
package camera

import (
	"errors"

	"kiosk-vision-go/internal/types"
)

// ErrCameraAccess means the camera endpoint could not be opened at all.
// Fatal to capture but not to the process: surfaced once to the
// operator, never retried automatically.
var ErrCameraAccess = errors.New("camera unavailable")

// Source is a live frame supplier. Frames carry the source's native
// dimensions; Dims reports the most recently seen ones so consumers can
// detect a hot-swapped camera between frames.
type Source interface {
	Frames() <-chan types.Frame
	Dims() (int, int)
}
