// Package scanner implements the top-level control loop and recognition
// loop: squelch gate-edge detection against the radio client, feeding
// the transmission segmenter, bounded drop-oldest queues, and dispatch
// through an injected asr.Recognizer and notify.Notifier.
package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kb1sig/ic705scanner/internal/asr"
	"github.com/kb1sig/ic705scanner/internal/callsign"
	"github.com/kb1sig/ic705scanner/internal/notify"
	"github.com/kb1sig/ic705scanner/internal/segmenter"
)

const (
	// audioQueueCap and recogQueueCap are the bounded, drop-oldest queue
	// capacities for the audio batches awaiting segmentation and the
	// transmissions awaiting transcription.
	audioQueueCap = 100
	recogQueueCap = 10

	// targetSampleRate is the rate the recognition loop resamples every
	// transmission to before invoking the recognizer.
	targetSampleRate = 16000

	defaultMinConfidence = 0.5
	defaultPollInterval  = 50 * time.Millisecond

	errBackoff = 1 * time.Second
)

// Radio is the narrow slice of internal/radio.Client's surface the
// control loop actually polls - a local interface (idiomatic Go: accept
// interfaces) that *radio.Client satisfies structurally, letting tests
// drive the coordinator against a fake without touching a serial port.
type Radio interface {
	IsSquelchOpen() (bool, error)
	ReadFrequency() (uint64, error)
}

// AudioChunk is the coordinator's own audio-batch shape. The coordinator
// never imports internal/audioio directly; whatever adapts a concrete
// capture backend is responsible for translating into AudioChunk and
// calling EnqueueAudio.
type AudioChunk struct {
	Samples    []float32
	SampleRate int
}

type logger interface {
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

// Config holds the control-loop timing and acceptance threshold.
type Config struct {
	PollInterval          time.Duration
	MinCallsignConfidence float64
}

// DefaultConfig returns the stock scanner defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:          defaultPollInterval,
		MinCallsignConfidence: defaultMinConfidence,
	}
}

// Coordinator owns the control loop, the audio queue, and the
// recognition queue.
type Coordinator struct {
	radio      Radio
	seg        *segmenter.Segmenter
	recognizer asr.Recognizer
	notifier   notify.Notifier
	log        logger
	cfg        Config

	audioQueue chan AudioChunk
	recogQueue chan segmenter.Transmission

	audioMu sync.Mutex

	prevGateOpen bool
	currentFreq  *uint64
}

// New wires a Coordinator. seg must already be configured for the
// capture sample rate the caller will feed it.
func New(radio Radio, seg *segmenter.Segmenter, recognizer asr.Recognizer, notifier notify.Notifier, log logger, cfg Config) *Coordinator {
	return &Coordinator{
		radio:      radio,
		seg:        seg,
		recognizer: recognizer,
		notifier:   notifier,
		log:        log,
		cfg:        cfg,
		audioQueue: make(chan AudioChunk, audioQueueCap),
		recogQueue: make(chan segmenter.Transmission, recogQueueCap),
	}
}

// EnqueueAudio is called by the audio producer (never the control loop
// itself) for each captured batch. It never blocks: on overflow the
// oldest queued chunk is dropped to preserve recency.
func (c *Coordinator) EnqueueAudio(chunk AudioChunk) {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	enqueueDropOldest(c.audioQueue, chunk)
}

// Run drives both cooperative tasks until ctx is canceled: the control
// loop in the calling goroutine, and the recognition loop in a second
// goroutine. On cancellation the control loop stops, the recognition
// queue's writer side is closed, and Run blocks until the recognition
// loop has drained; the caller is responsible for stopping the capture
// source and releasing the radio/recognizer afterward.
func (c *Coordinator) Run(ctx context.Context) {
	recogDone := make(chan struct{})
	go func() {
		defer close(recogDone)
		c.recognitionLoop(ctx)
	}()

	c.controlLoop(ctx)

	close(c.recogQueue)
	<-recogDone
}

func (c *Coordinator) controlLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		open, err := c.radio.IsSquelchOpen()
		if err != nil {
			c.log.Warnf("squelch poll failed, backing off: %v", err)
			if !sleepOrDone(ctx, errBackoff) {
				return
			}
			continue
		}

		if open && !c.prevGateOpen {
			c.onGateOpen()
		}

		c.drainOneAudioChunk(open)
		c.prevGateOpen = open

		if !sleepOrDone(ctx, c.cfg.PollInterval) {
			return
		}
	}
}

// onGateOpen handles a rising squelch edge: tag the upcoming
// transmission with the tuned frequency and reset the segmenter so
// pre-roll from a previous channel never leaks in.
func (c *Coordinator) onGateOpen() {
	freq, err := c.radio.ReadFrequency()
	if err != nil {
		c.log.Warnf("read_frequency failed on gate-open edge: %v", err)
	} else {
		f := freq
		c.currentFreq = &f
	}
	c.seg.Reset()
}

// drainOneAudioChunk pulls at most one queued audio batch (non-blocking)
// and feeds it to the segmenter, enqueuing any completed transmission.
func (c *Coordinator) drainOneAudioChunk(gateOpen bool) {
	var chunk AudioChunk
	var ok bool
	select {
	case chunk, ok = <-c.audioQueue:
	default:
		return
	}
	if !ok {
		return
	}

	tx, emitted := c.seg.Feed(chunk.Samples, gateOpen, time.Now())
	if !emitted {
		return
	}
	tx.FrequencyHz = c.currentFreq
	enqueueDropOldest(c.recogQueue, tx)
}

func (c *Coordinator) recognitionLoop(ctx context.Context) {
	for tx := range c.recogQueue {
		if ctx.Err() != nil {
			// Cooperative cancellation between decodes, never mid-decode:
			// stop starting new work but keep draining the channel so
			// Run's close/drain handshake completes.
			continue
		}
		c.processTransmission(ctx, tx)
	}
}

func (c *Coordinator) processTransmission(ctx context.Context, tx segmenter.Transmission) {
	samples := tx.Samples
	rate := tx.SampleRate
	if rate != targetSampleRate {
		samples = segmenter.Resample(samples, rate, targetSampleRate)
		rate = targetSampleRate
	}

	result, err := c.recognizer.Transcribe(context.WithoutCancel(ctx), samples, rate)
	if err != nil {
		c.log.Warnf("transcribe failed: %v", err)
		return
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		c.log.Debugf("empty transcript, discarding transmission")
		return
	}

	for _, extracted := range callsign.Extract(text) {
		if extracted.Confidence < c.cfg.MinCallsignConfidence {
			c.log.Debugf("callsign %s below confidence threshold (%.2f < %.2f)",
				extracted.Text, extracted.Confidence, c.cfg.MinCallsignConfidence)
			continue
		}

		c.notifier.SendActivity(notify.DetectedActivity{
			Callsign:    extracted.Text,
			FrequencyHz: freqOrZero(tx.FrequencyHz),
			Timestamp:   tx.Start,
			Duration:    tx.Duration,
			Text:        text,
			Confidence:  extracted.Confidence,
		})
	}
}

func freqOrZero(f *uint64) uint64 {
	if f == nil {
		return 0
	}
	return *f
}

// sleepOrDone sleeps for d unless ctx is canceled first; it reports
// whether the sleep completed normally (false means the caller should
// stop).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// enqueueDropOldest pushes v onto ch, dropping the oldest queued item on
// overflow rather than blocking the caller.
func enqueueDropOldest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
