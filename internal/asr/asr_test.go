package asr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAVRoundTrips(t *testing.T) {
	samples := make([]float32, 0, 1000)
	for i := 0; i < 1000; i++ {
		samples = append(samples, float32(i%200-100)/100.0)
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, EncodeWAV(path, samples, 16000))

	got, rate, err := DecodeWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	require.Len(t, got, len(samples))

	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 1.0/32768.0*2)
	}
}

func TestDecodeWAVRejectsNonRIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))

	_, _, err := DecodeWAV(path)
	assert.Error(t, err)
}

func TestExecRecognizerNotReadyReturnsEmptyResult(t *testing.T) {
	r := NewExecRecognizer("definitely-not-a-real-binary-xyz", nil)
	require.NoError(t, r.Initialize(context.Background()))
	assert.False(t, r.IsReady())

	res, err := r.Transcribe(context.Background(), []float32{0, 0.1, -0.1}, 16000)
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
}

func TestExecRecognizerTranscribeFileRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	// A fake "recognizer" that ignores its argument and just echoes a
	// fixed transcript, standing in for a real whisper.cpp-style CLI.
	script := filepath.Join(t.TempDir(), "fake-recognizer.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'W1AW this is F4JZW'\n"), 0o755))

	r := NewExecRecognizer(script, nil)
	require.NoError(t, r.Initialize(context.Background()))
	require.True(t, r.IsReady())

	wavPath := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, EncodeWAV(wavPath, []float32{0, 0.1, -0.1}, 16000))

	res, err := r.TranscribeFile(context.Background(), wavPath)
	require.NoError(t, err)
	assert.Equal(t, "W1AW this is F4JZW", res.Text)
}
