package segmenter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testSampleRate = 1000 // 1 sample == 1 ms, keeps test arithmetic exact

func batch(n int) []float32 {
	return make([]float32, n)
}

// For gate-open span T with min_duration <= T <= max_duration, exactly
// one transmission is emitted whose length lies in
// [T+pre_roll, T+pre_roll+silence_tail] samples (within a one-batch
// tolerance).
func TestGateOpenSpanEmitsOneBoundedTransmission(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := Config{
			PreRoll:     200 * time.Millisecond,
			SilenceTail: 300 * time.Millisecond,
			MinDuration: 500 * time.Millisecond,
			MaxDuration: 5 * time.Second,
		}
		seg := New(cfg, testSampleRate)

		openMs := rapid.IntRange(500, 4000).Draw(t, "openMs")
		batchMs := rapid.IntRange(1, 50).Draw(t, "batchMs")

		now := time.Now()
		var got Transmission
		found := false

		emit := func(samples []float32, open bool) {
			tx, ok := seg.Feed(samples, open, now)
			now = now.Add(time.Duration(len(samples)) * time.Millisecond)
			if ok {
				require.False(t, found, "segmenter emitted more than one transmission for a single cycle")
				got = tx
				found = true
			}
		}

		// Idle long enough that the pre-roll ring buffer is completely
		// full before the gate opens.
		preRollMs := int(cfg.PreRoll.Milliseconds())
		for idled := 0; idled < preRollMs+batchMs; idled += batchMs {
			emit(batch(batchMs), false)
		}

		remaining := openMs
		for remaining > 0 {
			n := batchMs
			if n > remaining {
				n = remaining
			}
			emit(batch(n), true)
			remaining -= n
		}

		// Gate closes; feed silence until the tail expires (or max forces
		// emission first).
		for i := 0; i < 2000 && !found; i++ {
			emit(batch(batchMs), false)
		}

		require.True(t, found, "expected exactly one transmission to be emitted")

		preRollSamples := int(cfg.PreRoll.Seconds() * testSampleRate)
		silenceTailSamples := int(cfg.SilenceTail.Seconds() * testSampleRate)
		lowerBound := preRollSamples + openMs
		upperBound := preRollSamples + openMs + silenceTailSamples

		tolerance := batchMs
		assert.GreaterOrEqual(t, len(got.Samples), lowerBound-tolerance)
		assert.LessOrEqual(t, len(got.Samples), upperBound+tolerance)
	})
}

func TestMinDurationBoundary(t *testing.T) {
	cfg := Config{
		PreRoll:     0,
		SilenceTail: 100 * time.Millisecond,
		MinDuration: 300 * time.Millisecond,
		MaxDuration: 10 * time.Second,
	}

	// The emitted recording includes the silence tail, so 200ms of open
	// gate plus the 100ms tail lands exactly at min_duration: emitted.
	seg := New(cfg, testSampleRate)
	now := time.Now()
	_, ok := seg.Feed(batch(200), true, now)
	require.False(t, ok)
	now = now.Add(200 * time.Millisecond)
	tx, ok := seg.Feed(batch(100), false, now)
	require.True(t, ok)
	assert.GreaterOrEqual(t, tx.Duration, cfg.MinDuration)

	// One sample shorter: dropped.
	seg = New(cfg, testSampleRate)
	now = time.Now()
	_, ok = seg.Feed(batch(199), true, now)
	require.False(t, ok)
	now = now.Add(199 * time.Millisecond)
	_, ok = seg.Feed(batch(100), false, now)
	require.False(t, ok, "transmission one sample shorter than min_duration must be dropped")
}

func TestMaxDurationForceTerminates(t *testing.T) {
	cfg := Config{
		PreRoll:     0,
		SilenceTail: 5 * time.Second,
		MinDuration: 100 * time.Millisecond,
		MaxDuration: 300 * time.Millisecond,
	}
	seg := New(cfg, testSampleRate)
	now := time.Now()

	tx, ok := seg.Feed(batch(500), true, now)
	require.True(t, ok, "exceeding max_duration must force-emit")
	assert.Equal(t, cfg.MaxDuration, tx.Duration)
}

func TestGateFlickerWithinSilenceTailIsOneTransmission(t *testing.T) {
	cfg := Config{
		PreRoll:     0,
		SilenceTail: 200 * time.Millisecond,
		MinDuration: 50 * time.Millisecond,
		MaxDuration: 10 * time.Second,
	}
	seg := New(cfg, testSampleRate)
	now := time.Now()

	_, ok := seg.Feed(batch(100), true, now)
	require.False(t, ok)
	now = now.Add(100 * time.Millisecond)

	// Gate closes and reopens within silence_tail: should not end the
	// transmission.
	_, ok = seg.Feed(batch(50), false, now)
	require.False(t, ok)
	now = now.Add(50 * time.Millisecond)

	_, ok = seg.Feed(batch(100), true, now)
	require.False(t, ok)
	now = now.Add(100 * time.Millisecond)

	_, ok = seg.Feed(batch(250), false, now)
	require.True(t, ok, "should have completed after the second silence tail expired")
}

func TestPreRollRetainsOnlyLastWindow(t *testing.T) {
	cfg := Config{
		PreRoll:     100 * time.Millisecond,
		SilenceTail: 100 * time.Millisecond,
		MinDuration: 1 * time.Millisecond,
		MaxDuration: 10 * time.Second,
	}
	seg := New(cfg, testSampleRate)
	now := time.Now()

	// Idle for much longer than pre_roll.
	for i := 0; i < 50; i++ {
		_, ok := seg.Feed(batch(10), false, now)
		require.False(t, ok)
		now = now.Add(10 * time.Millisecond)
	}

	tx, ok := seg.Feed(batch(10), true, now)
	require.False(t, ok)
	now = now.Add(10 * time.Millisecond)
	tx, ok = seg.Feed(batch(110), false, now)
	require.True(t, ok)

	// Expect pre-roll (100 samples) + 10 open + the full closed batch that
	// pushed the silence counter past silence_tail (batch granularity
	// means the cutoff is not trimmed mid-batch).
	assert.Equal(t, 100+10+110, len(tx.Samples))
}

func TestResampleIsIdentityWhenRatesMatch(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	assert.Equal(t, in, out)
}

func TestResampleUpsampleInterpolatesLinearly(t *testing.T) {
	in := []float32{0, 1}
	out := Resample(in, 1, 2)
	require.Len(t, out, 4)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[1], 1e-6)
}

func TestResampleBoundaryClampsToLastSample(t *testing.T) {
	in := []float32{0, 0.5, 1.0}
	out := Resample(in, 3, 6)
	last := out[len(out)-1]
	assert.InDelta(t, 1.0, float64(last), 0.2)
}
