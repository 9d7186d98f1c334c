// Package asr provides the abstract offline-recognizer boundary:
// a capability the scanner coordinator depends on without knowing the
// concrete model runtime. asr/wav.go and asr/exec_recognizer.go are the
// one concrete adapter this repo ships; the model itself (and
// fetching/caching it) stays outside the coordinator's contract.
package asr

import (
	"context"
	"time"
)

// Result is what a recognizer returns for one transcription call.
type Result struct {
	Text       string
	Confidence float64
	Duration   time.Duration
}

// Recognizer is explicitly not assumed reentrant: an implementation
// serializes its own calls behind a single mutual-exclusion guard
// (ExecRecognizer does), so callers need no locking of their own.
type Recognizer interface {
	IsReady() bool
	Initialize(ctx context.Context) error
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
	TranscribeFile(ctx context.Context, path string) (Result, error)
}
