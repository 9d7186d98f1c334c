package asr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// ExecRecognizer shells out to an offline recognizer CLI - the
// documented contract is a whisper.cpp-compatible binary that reads a
// WAV path and writes transcript text to stdout. This is the one
// concrete Recognizer this repo ships; the model runtime itself is kept
// out of the coordinator's contract entirely, and since no pure-Go
// offline ASR engine was available to vendor, os/exec against an
// external CLI is the adapter.
type ExecRecognizer struct {
	binary string
	args   []string

	mu    sync.Mutex // serializes transcribe() - the recognizer is not reentrant
	ready bool
}

// NewExecRecognizer builds an adapter that invokes binary with args plus
// a trailing WAV file path for each transcription.
func NewExecRecognizer(binary string, args []string) *ExecRecognizer {
	return &ExecRecognizer{binary: binary, args: args}
}

// Initialize verifies the recognizer binary is reachable. A missing
// binary leaves IsReady false rather than returning an error: a missing
// recognizer is recoverable, not a fatal configuration problem.
func (e *ExecRecognizer) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := exec.LookPath(e.binary); err != nil {
		obs.For("asr").Warnf("recognizer binary %q not found: %v", e.binary, err)
		e.ready = false
		return nil
	}
	e.ready = true
	return nil
}

// IsReady reports whether Initialize found a usable binary.
func (e *ExecRecognizer) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Transcribe writes samples to a temporary WAV file and delegates to
// TranscribeFile.
func (e *ExecRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	tmp, err := os.CreateTemp("", "ic705scanner-*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("asr: create temp wav: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := EncodeWAV(path, samples, sampleRate); err != nil {
		return Result{}, err
	}
	return e.TranscribeFile(ctx, path)
}

// TranscribeFile invokes the recognizer binary against an existing WAV
// path, serialized by the single mutex since the recognizer is not
// reentrant.
func (e *ExecRecognizer) TranscribeFile(ctx context.Context, path string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		// Recognizer unavailable: transmissions are still recorded, but
		// transcription returns empty text.
		return Result{}, nil
	}

	start := time.Now()
	args := append(append([]string(nil), e.args...), path)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("asr: %s %v: %w (stderr: %s)", e.binary, args, err, stderr.String())
	}

	text := strings.TrimSpace(stdout.String())
	return Result{
		Text:       text,
		Confidence: 1.0,
		Duration:   time.Since(start),
	}, nil
}
