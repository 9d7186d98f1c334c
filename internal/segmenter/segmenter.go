// Package segmenter implements the squelch-gated transmission
// segmenter: a pre-roll ring buffer, silence-tail hang, and
// bounded-duration trimming over a continuously streaming mono audio
// source. It is agnostic to sample rate - emitted transmissions carry
// the capture rate verbatim, and Resample converts to a target rate
// downstream.
package segmenter

import "time"

// State is the segmenter's two-state machine.
type State int

const (
	Idle State = iota
	Recording
)

// Config holds the four duration knobs governing pre-roll, silence
// trailing, and min/max transmission length.
type Config struct {
	PreRoll     time.Duration
	SilenceTail time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// DefaultConfig returns the stock timing defaults.
func DefaultConfig() Config {
	return Config{
		PreRoll:     500 * time.Millisecond,
		SilenceTail: 1 * time.Second,
		MinDuration: 1 * time.Second,
		MaxDuration: 60 * time.Second,
	}
}

// Transmission is a completed, owned recording.
type Transmission struct {
	Samples     []float32
	SampleRate  int
	Duration    time.Duration
	Start       time.Time
	FrequencyHz *uint64
}

// Segmenter is stateful; it must be driven with a single sample rate for
// its lifetime (or across an explicit Reset).
type Segmenter struct {
	cfg        Config
	sampleRate int

	state State

	preRoll    []float32 // ring buffer, logically ordered oldest-first
	preRollCap int

	recording      []float32
	recordingStart time.Time
	silence        time.Duration
}

// New creates a segmenter for the given capture sample rate.
func New(cfg Config, sampleRate int) *Segmenter {
	return &Segmenter{
		cfg:        cfg,
		sampleRate: sampleRate,
		state:      Idle,
		preRollCap: durationSamples(cfg.PreRoll, sampleRate),
	}
}

// Reset returns the segmenter to Idle with empty buffers. Invoked by the
// coordinator whenever a fresh squelch-open edge is observed, so pre-roll
// from a previous channel never leaks into a new transmission.
func (s *Segmenter) Reset() {
	s.state = Idle
	s.preRoll = nil
	s.recording = nil
	s.silence = 0
}

// Feed drives the state machine with one batch of samples and the current
// gate (squelch) state, observed at wall-clock time `now`. It returns a
// completed Transmission when an open-to-quiet cycle finishes (either by
// silence-tail hang or a forced max-duration cutoff); min-duration
// rejects are silently dropped (ok == false).
func (s *Segmenter) Feed(samples []float32, gateOpen bool, now time.Time) (Transmission, bool) {
	switch s.state {
	case Idle:
		if gateOpen {
			s.state = Recording
			s.recordingStart = now
			s.recording = append(s.recording, s.preRoll...)
			s.preRoll = nil
			s.recording = append(s.recording, samples...)
			s.silence = 0
			return s.checkMaxDuration()
		}
		s.appendPreRoll(samples)
		return Transmission{}, false

	case Recording:
		s.recording = append(s.recording, samples...)
		if gateOpen {
			s.silence = 0
		} else {
			s.silence += batchDuration(len(samples), s.sampleRate)
		}

		if s.silence >= s.cfg.SilenceTail {
			return s.finish(false)
		}
		return s.checkMaxDuration()
	}
	return Transmission{}, false
}

func (s *Segmenter) checkMaxDuration() (Transmission, bool) {
	if batchDuration(len(s.recording), s.sampleRate) >= s.cfg.MaxDuration {
		return s.finish(true)
	}
	return Transmission{}, false
}

// finish emits the current recording (if long enough, or unconditionally
// when forced by max-duration) and resets to Idle.
func (s *Segmenter) finish(forced bool) (Transmission, bool) {
	samples := s.recording
	start := s.recordingStart
	rate := s.sampleRate

	s.state = Idle
	s.recording = nil
	s.silence = 0

	dur := batchDuration(len(samples), rate)
	if !forced && dur < s.cfg.MinDuration {
		return Transmission{}, false
	}
	if forced && dur > s.cfg.MaxDuration {
		dur = s.cfg.MaxDuration
	}

	return Transmission{
		Samples:    samples,
		SampleRate: rate,
		Duration:   dur,
		Start:      start,
	}, true
}

// appendPreRoll retains exactly the last PreRoll*sampleRate samples.
func (s *Segmenter) appendPreRoll(samples []float32) {
	s.preRoll = append(s.preRoll, samples...)
	if excess := len(s.preRoll) - s.preRollCap; excess > 0 {
		s.preRoll = s.preRoll[excess:]
	}
}

func durationSamples(d time.Duration, sampleRate int) int {
	return int(d.Seconds() * float64(sampleRate))
}

func batchDuration(numSamples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(numSamples) / float64(sampleRate) * float64(time.Second))
}

// Resample performs linear interpolation between adjacent samples to
// convert from srcRate to dstRate: for each output index i, source
// position i/ratio is split into integer and fractional parts; boundary
// samples clamp to the last source sample.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		a, b := samples[idx], samples[idx+1]
		out[i] = a + float32(frac)*(b-a)
	}
	return out
}
