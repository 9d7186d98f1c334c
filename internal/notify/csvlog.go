package notify

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// csvHeader is written only on first creation of a given day's file, so
// each file imports cleanly into a spreadsheet.
var csvHeader = []string{"utime", "isotime", "callsign", "frequency_hz", "duration_ms", "confidence", "text"}

// CSVLog is the always-on local notification transport: an append-only
// record distinct from any queryable persistence store. Files rotate
// daily under a directory; a single file handle is kept open across
// writes.
type CSVLog struct {
	dir string
	log logger

	mu       sync.Mutex
	fp       *os.File
	writer   *csv.Writer
	openName string
}

// NewCSVLog creates a transport that writes daily-named CSV files under
// dir, creating the directory if it does not exist.
func NewCSVLog(dir string) *CSVLog {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		obs.For("notify").Warnf("csvlog: could not create %s, using current directory: %v", dir, err)
		dir = "."
	}
	return &CSVLog{dir: dir, log: obs.For("notify")}
}

// SendActivity appends one row to today's CSV file, opening (and
// header-stamping) it on first use or on a UTC day rollover.
func (c *CSVLog) SendActivity(a DetectedActivity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := a.Timestamp.UTC()
	fname := now.Format("2006-01-02") + ".csv"

	if c.fp != nil && fname != c.openName {
		c.closeLocked()
	}

	if c.fp == nil {
		fullPath := filepath.Join(c.dir, fname)
		_, statErr := os.Stat(fullPath)
		alreadyThere := statErr == nil

		f, err := os.OpenFile(fullPath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			c.log.Errorf("csvlog: open %s: %v", fullPath, err)
			return
		}
		c.fp = f
		c.openName = fname
		c.writer = csv.NewWriter(f)
		if !alreadyThere {
			_ = c.writer.Write(csvHeader)
		}
	}

	row := []string{
		strconv.FormatInt(now.Unix(), 10),
		now.Format(time.RFC3339),
		a.Callsign,
		strconv.FormatUint(a.FrequencyHz, 10),
		strconv.FormatInt(a.Duration.Milliseconds(), 10),
		strconv.FormatFloat(a.Confidence, 'f', 2, 64),
		a.Text,
	}
	if err := c.writer.Write(row); err != nil {
		c.log.Errorf("csvlog: write row: %v", err)
		return
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.log.Errorf("csvlog: flush: %v", err)
	}
}

// Close releases the currently open file, if any.
func (c *CSVLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *CSVLog) closeLocked() error {
	if c.fp == nil {
		return nil
	}
	c.writer.Flush()
	err := c.fp.Close()
	c.fp = nil
	c.writer = nil
	c.openName = ""
	if err != nil {
		return fmt.Errorf("csvlog: close: %w", err)
	}
	return nil
}
