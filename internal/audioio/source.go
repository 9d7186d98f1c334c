// Package audioio provides the abstract audio capture boundary.
// Concrete implementations wrap github.com/gordonklaus/portaudio (and,
// on Linux, github.com/jochenvg/go-udev for device auto-detection); the
// rest of the system only ever depends on the Source interface, so the
// capture backend stays swappable without touching the scanner logic.
package audioio

import "context"

// Chunk is one batch of mono float32 samples read from a capture
// device, tagged with the rate it was captured at.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Source streams audio chunks until Close or ctx is canceled. Start
// must be called exactly once before Chunks is read.
type Source interface {
	Start(ctx context.Context) error
	Chunks() <-chan Chunk
	Capturing() bool
	Close() error
}
