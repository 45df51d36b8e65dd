package types

import "time"

// Box is an axis-aligned bounding box in encoded-frame pixels.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the box area, treating negative extents as zero.
func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Empty reports whether the box has no usable extent.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// DetectionResult is one detection from either recognition stream,
// already normalized from the wire shape. Immutable once built.
type DetectionResult struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Expression string  `json:"expression,omitempty"`
}

// MarkedEvent is a successful check-in reported alongside an attendance
// batch. One-shot: surfaced to the operator and not retained.
type MarkedEvent struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Message string  `json:"message"`
}

// ResultBatch is the full result set from one stream. Each new batch
// fully replaces the previous one for its stream.
type ResultBatch struct {
	Timestamp  time.Time         `json:"timestamp"`
	Results    []DetectionResult `json:"results"`
	Marked     []string          `json:"marked,omitempty"`
	MarkedInfo []MarkedEvent     `json:"marked_info,omitempty"`
}

// Age returns how old the batch is relative to now.
func (b ResultBatch) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// Frame is one camera frame as delivered by the frame source: the
// compressed image plus the source's native dimensions.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}
