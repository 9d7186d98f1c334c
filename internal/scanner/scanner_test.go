package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kb1sig/ic705scanner/internal/asr"
	"github.com/kb1sig/ic705scanner/internal/notify"
	"github.com/kb1sig/ic705scanner/internal/segmenter"
)

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type fakeRadio struct {
	mu         sync.Mutex
	open       bool
	freq       uint64
	freqErr    error
	squelchErr error
}

func (f *fakeRadio) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

func (f *fakeRadio) IsSquelchOpen() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.squelchErr != nil {
		return false, f.squelchErr
	}
	return f.open, nil
}

func (f *fakeRadio) ReadFrequency() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freq, f.freqErr
}

type fakeRecognizer struct {
	text string
}

func (f *fakeRecognizer) IsReady() bool                         { return true }
func (f *fakeRecognizer) Initialize(context.Context) error      { return nil }
func (f *fakeRecognizer) TranscribeFile(context.Context, string) (asr.Result, error) {
	return asr.Result{Text: f.text}, nil
}
func (f *fakeRecognizer) Transcribe(context.Context, []float32, int) (asr.Result, error) {
	return asr.Result{Text: f.text}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.DetectedActivity
}

func (f *fakeNotifier) SendActivity(a notify.DetectedActivity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
}

func (f *fakeNotifier) activities() []notify.DetectedActivity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.DetectedActivity, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestCoordinatorDetectsCallsignEndToEnd(t *testing.T) {
	const sampleRate = 8000

	segCfg := segmenter.Config{
		PreRoll:     10 * time.Millisecond,
		SilenceTail: 20 * time.Millisecond,
		MinDuration: 30 * time.Millisecond,
		MaxDuration: time.Second,
	}
	seg := segmenter.New(segCfg, sampleRate)

	radio := &fakeRadio{freq: 146_520_000}
	recognizer := &fakeRecognizer{text: "this is W1AW portable"}
	notifier := &fakeNotifier{}

	cfg := Config{PollInterval: 5 * time.Millisecond, MinCallsignConfidence: 0.5}
	coord := New(radio, seg, recognizer, notifier, noopLogger{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		coord.Run(ctx)
	}()

	radio.setOpen(true)

	chunk := AudioChunk{Samples: make([]float32, 40), SampleRate: sampleRate} // 5ms at 8kHz
	stopProducer := make(chan struct{})
	var producerDone sync.WaitGroup
	producerDone.Add(1)
	go func() {
		defer producerDone.Done()
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopProducer:
				return
			case <-ticker.C:
				coord.EnqueueAudio(chunk)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	radio.setOpen(false)
	time.Sleep(80 * time.Millisecond)

	close(stopProducer)
	producerDone.Wait()
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not shut down")
	}

	activities := notifier.activities()
	require.NotEmpty(t, activities)
	assert.Equal(t, "W1AW", activities[0].Callsign)
	assert.Equal(t, uint64(146_520_000), activities[0].FrequencyHz)
}

func TestCoordinatorShutsDownDuringSquelchErrorBackoff(t *testing.T) {
	seg := segmenter.New(segmenter.DefaultConfig(), 8000)
	radio := &fakeRadio{squelchErr: assertErr{}}
	recognizer := &fakeRecognizer{text: ""}
	notifier := &fakeNotifier{}

	cfg := Config{PollInterval: time.Millisecond, MinCallsignConfidence: 0.5}
	coord := New(radio, seg, recognizer, notifier, noopLogger{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not shut down after a sustained squelch-poll error")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated I/O error" }
