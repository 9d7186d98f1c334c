package notify

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingLogger struct{ errs int32 }

func (c *countingLogger) Debugf(string, ...any) {}
func (c *countingLogger) Infof(string, ...any)  {}
func (c *countingLogger) Warnf(string, ...any)  {}
func (c *countingLogger) Errorf(string, ...any) { atomic.AddInt32(&c.errs, 1) }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []DetectedActivity
}

func (r *recordingNotifier) SendActivity(a DetectedActivity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
}

type panickingNotifier struct{}

func (panickingNotifier) SendActivity(DetectedActivity) { panic("boom") }

func TestCompositeFansOutToEveryTransport(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	c := NewComposite(&countingLogger{}, a, b)

	activity := DetectedActivity{Callsign: "W1AW", FrequencyHz: 146_520_000}
	c.SendActivity(activity)

	assert.Equal(t, []DetectedActivity{activity}, a.sent)
	assert.Equal(t, []DetectedActivity{activity}, b.sent)
}

func TestCompositeIsolatesAPanickingTransport(t *testing.T) {
	good := &recordingNotifier{}
	log := &countingLogger{}
	c := NewComposite(log, panickingNotifier{}, good)

	assert.NotPanics(t, func() {
		c.SendActivity(DetectedActivity{Callsign: "F4JZW"})
	})
	assert.Len(t, good.sent, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&log.errs))
}

func TestCSVLogWritesHeaderOnceAndAppendsRows(t *testing.T) {
	dir := t.TempDir()
	csvLog := NewCSVLog(dir)
	defer csvLog.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	csvLog.SendActivity(DetectedActivity{Callsign: "W1AW", FrequencyHz: 146_520_000, Timestamp: now, Confidence: 0.9})
	csvLog.SendActivity(DetectedActivity{Callsign: "F4JZW", FrequencyHz: 146_520_000, Timestamp: now, Confidence: 0.7})
	csvLog.Close()

	b, err := os.ReadFile(filepath.Join(dir, "2026-01-02.csv"))
	assert.NoError(t, err)
	data := string(b)
	assert.Contains(t, data, "callsign")
	assert.Equal(t, 1, strings.Count(data, "callsign"))
	assert.Contains(t, data, "W1AW")
	assert.Contains(t, data, "F4JZW")
}
