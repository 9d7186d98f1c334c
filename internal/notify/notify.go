// Package notify implements the abstract notification boundary:
// DetectedActivity is the payload dispatched once per accepted callsign,
// Notifier is a single-method capability that never throws across the
// boundary, and Composite fans a detection out to N transports
// concurrently, isolating each one.
package notify

import (
	"sync"
	"time"
)

// DetectedActivity is the notification payload built by the scanner
// coordinator once per accepted callsign.
type DetectedActivity struct {
	Callsign    string
	FrequencyHz uint64
	Timestamp   time.Time
	Duration    time.Duration
	Text        string
	Confidence  float64
}

// Notifier delivers a DetectedActivity best-effort. Implementations must
// never panic or return an error across this boundary - transport
// failures are the implementation's own concern to log and swallow.
type Notifier interface {
	SendActivity(DetectedActivity)
}

// Composite fans a detection out to every configured transport
// concurrently. Each transport is isolated: a panic inside one is
// recovered and logged, never propagated, and never blocks or fails the
// others.
type Composite struct {
	transports []Notifier
	log        logger
}

type logger interface {
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

// NewComposite builds a fan-out notifier over the given transports.
func NewComposite(log logger, transports ...Notifier) *Composite {
	return &Composite{transports: transports, log: log}
}

// SendActivity dispatches to every transport concurrently and waits for
// all of them to finish (or fail) before returning.
func (c *Composite) SendActivity(a DetectedActivity) {
	var wg sync.WaitGroup
	wg.Add(len(c.transports))
	for _, t := range c.transports {
		t := t
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorf("notify: transport panicked: %v", r)
				}
			}()
			t.SendActivity(a)
		}()
	}
	wg.Wait()
}
