// Package radio implements the serialized CI-V request/response client:
// a small surface over a single serial port (github.com/pkg/term) where
// the port and the mutual exclusion discipline live together in one
// type, so at most one command is ever in flight on the half-duplex bus.
package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/term"

	"github.com/kb1sig/ic705scanner/internal/civ"
	"github.com/kb1sig/ic705scanner/internal/obs"
)

// IoUnavailable is returned by Connect when the serial port cannot be
// opened at all. Callers treat it as fatal; nothing works without the
// control link.
type IoUnavailable struct {
	Port string
	Err  error
}

func (e *IoUnavailable) Error() string {
	return fmt.Sprintf("radio: serial port %s unavailable: %v", e.Port, e.Err)
}

func (e *IoUnavailable) Unwrap() error { return e.Err }

// Mode mirrors the IC-705's CI-V operating-mode byte for command 0x06.
type Mode byte

const (
	ModeLSB Mode = 0x00
	ModeUSB Mode = 0x01
	ModeAM  Mode = 0x02
	ModeCW  Mode = 0x03
	ModeFM  Mode = 0x05
)

const (
	cmdReadFrequency  = 0x03
	cmdReadMode       = 0x04
	cmdSetFrequency   = 0x05
	cmdSetMode        = 0x06
	cmdSetLevel       = 0x14
	cmdReadMeter      = 0x15
	subSquelchLevel   = 0x03
	subSquelchStatus  = 0x01
	subSMeter         = 0x02
	defaultModeFilter = 0x01

	readTimeout    = 1 * time.Second
	turnaroundWait = 50 * time.Millisecond
	stagingBufSize = 256
	pumpChunkSize  = 64
)

type logger interface {
	Debugf(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

// Client is a fully serialized CI-V request/response surface over one
// serial port. At most one command is ever in flight: the mutex is held
// for the full write + read exchange, matching the half-duplex bus's
// requirement that frames never interleave.
type Client struct {
	portName  string
	baud      int
	radioAddr byte
	log       logger

	mu     sync.Mutex
	port   *term.Term
	pumpCh chan []byte
}

// New creates a client for the given serial device name (e.g. /dev/ttyUSB0
// or COM5), baud rate, and radio CI-V address.
func New(portName string, baud int, radioAddr byte) *Client {
	return &Client{
		portName:  portName,
		baud:      baud,
		radioAddr: radioAddr,
		log:       obs.For("radio"),
	}
}

// Connect opens the serial port at 8-N-1 with no handshake, then issues
// ReadFrequency once as a liveness probe. Returns *IoUnavailable if the
// port itself cannot be opened; a failed liveness probe is logged but not
// fatal (the radio may simply be powered off).
func (c *Client) Connect() error {
	c.mu.Lock()
	port, err := term.Open(c.portName, term.RawMode)
	if err != nil {
		c.mu.Unlock()
		return &IoUnavailable{Port: c.portName, Err: err}
	}
	if sErr := port.SetSpeed(c.baud); sErr != nil {
		c.log.Warnf("could not set speed on %s: %v", c.portName, sErr)
	}
	c.port = port
	c.pumpCh = make(chan []byte, 32)
	go c.pump(port, c.pumpCh)
	c.mu.Unlock()

	if _, err := c.ReadFrequency(); err != nil {
		c.log.Warnf("liveness probe (read_frequency) failed after connect: %v", err)
	}
	return nil
}

// Close releases the serial port. The pump goroutine observes the ensuing
// read error and exits on its own.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// pump continuously reads from the serial port and forwards byte chunks
// to ch, translating pkg/term's blocking Read into something exchange can
// consume with a select-based deadline. It exits when Read errors (the
// port was closed) and closes ch.
func (c *Client) pump(port *term.Term, ch chan<- []byte) {
	defer close(ch)
	buf := make([]byte, pumpChunkSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case ch <- chunk:
			default:
				// Pump outruns a stalled consumer; drop the chunk just
				// read rather than block the read loop.
			}
		}
		if err != nil {
			return
		}
	}
}

// ReadFrequency sends command 0x03 and decodes a 5-byte BCD payload.
func (c *Client) ReadFrequency() (uint64, error) {
	resp, ok, err := c.exchange(cmdReadFrequency, 0x00, nil)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil // timeout: non-fatal, caller treats as "unknown"
	}
	return civ.DecodeBCD(resp.Data), nil
}

// ReadMode sends command 0x04 and returns the radio's operating mode and
// filter byte.
func (c *Client) ReadMode() (Mode, byte, error) {
	resp, ok, err := c.exchange(cmdReadMode, 0x00, nil)
	if err != nil {
		return 0, 0, err
	}
	if !ok || len(resp.Data) < 2 {
		return 0, 0, nil
	}
	return Mode(resp.Data[0]), resp.Data[1], nil
}

// SetSquelchLevel sends command 0x14/0x03 with a two-byte BCD level in
// [0, 255] and returns whether the radio acknowledged it.
func (c *Client) SetSquelchLevel(level uint8) (bool, error) {
	hi := byte(level / 100)
	lo := byte(level%100/10)<<4 | byte(level%10)
	resp, ok, err := c.exchange(cmdSetLevel, subSquelchLevel, []byte{hi, lo})
	if err != nil {
		return false, err
	}
	return ok && resp.Cmd == civ.CmdAck, nil
}

// SetFrequency sends command 0x05 with a BCD payload and expects an ACK.
func (c *Client) SetFrequency(hz uint64) (uint64, error) {
	payload := civ.EncodeBCD(hz)
	resp, ok, err := c.exchange(cmdSetFrequency, 0x00, payload[:])
	if err != nil {
		return 0, err
	}
	if !ok || resp.Cmd != civ.CmdAck {
		return 0, nil
	}
	return hz, nil
}

// SetMode sends command 0x06 with {mode, filter} and returns whether the
// radio acknowledged it.
func (c *Client) SetMode(mode Mode) (bool, error) {
	resp, ok, err := c.exchange(cmdSetMode, 0x00, []byte{byte(mode), defaultModeFilter})
	if err != nil {
		return false, err
	}
	return ok && resp.Cmd == civ.CmdAck, nil
}

// ReadSMeter sends command 0x15/0x02 and decodes the big-endian BCD
// high/low composition into a raw S-meter reading.
func (c *Client) ReadSMeter() (uint, error) {
	resp, ok, err := c.exchange(cmdReadMeter, subSMeter, nil)
	if err != nil {
		return 0, err
	}
	if !ok || len(resp.Data) < 3 {
		return 0, nil
	}
	// data[0] is the echoed sub-command; data[1:3] are two BCD bytes,
	// high byte first.
	hi := resp.Data[1]
	lo := resp.Data[2]
	value := uint(hi>>4)*1000 + uint(hi&0x0F)*100 + uint(lo>>4)*10 + uint(lo&0x0F)
	return value, nil
}

// IsSquelchOpen sends command 0x15/0x01; data[1]==0x01 means open.
func (c *Client) IsSquelchOpen() (bool, error) {
	resp, ok, err := c.exchange(cmdReadMeter, subSquelchStatus, nil)
	if err != nil {
		return false, err
	}
	if !ok || len(resp.Data) < 2 {
		return false, nil
	}
	return resp.Data[1] == 0x01, nil
}

// exchange writes one command frame and reads the response, holding the
// port mutex for the whole round trip. The bool result is false for a
// timeout, which is non-fatal; err is non-nil only for genuine I/O
// failure on the port.
func (c *Client) exchange(cmd, subcmd byte, data []byte) (civ.Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return civ.Response{}, false, errors.New("radio: not connected")
	}
	pumpCh := c.pumpCh

	// Discard anything left over from a previous exchange (a late reply
	// after a timeout, stray bus traffic) so the staging buffer starts
	// clean for this command.
	drainPending(pumpCh)

	frame := civ.Build(cmd, subcmd, data, c.radioAddr)
	if _, err := c.port.Write(frame); err != nil {
		return civ.Response{}, false, fmt.Errorf("radio: write: %w", err)
	}

	time.Sleep(turnaroundWait)

	resp, ok := readFrame(pumpCh, readTimeout)
	if ok {
		return resp, true, nil
	}

	// Retry the turnaround wait exactly once before declaring a timeout.
	// USB contention can push the radio's reply past the first window.
	time.Sleep(turnaroundWait)
	resp, ok = readFrame(pumpCh, readTimeout)
	return resp, ok, nil
}

// readFrame accumulates chunks from ch until a complete CI-V frame is
// parseable or deadline elapses, then prefers the last complete frame in
// the accumulated buffer (the radio's actual reply, after any echoed
// command frame on a half-duplex bus).
func readFrame(ch <-chan []byte, timeout time.Duration) (civ.Response, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	buf := make([]byte, 0, stagingBufSize)
	for len(buf) < stagingBufSize {
		select {
		case chunk, open := <-ch:
			if !open {
				return lastCompleteFrame(buf)
			}
			buf = append(buf, chunk...)
			// Pull in whatever else already arrived before checking for
			// EOM, so an echoed command frame and the radio's reply that
			// follows it are considered together and the reply wins.
			buf = appendPending(buf, ch)
			if containsByte(buf, civ.EOM) {
				return lastCompleteFrame(buf)
			}
		case <-deadline.C:
			return lastCompleteFrame(buf)
		}
	}
	return lastCompleteFrame(buf)
}

// appendPending appends every chunk already queued on ch without blocking.
func appendPending(buf []byte, ch <-chan []byte) []byte {
	for {
		select {
		case chunk, open := <-ch:
			if !open {
				return buf
			}
			buf = append(buf, chunk...)
		default:
			return buf
		}
	}
}

// drainPending discards every chunk already queued on ch without blocking.
func drainPending(ch <-chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func containsByte(buf []byte, b byte) bool {
	for _, v := range buf {
		if v == b {
			return true
		}
	}
	return false
}

// lastCompleteFrame parses repeatedly, preferring the last complete frame
// in buf (the radio's actual reply, after any echoed command frame).
func lastCompleteFrame(buf []byte) (civ.Response, bool) {
	var last civ.Response
	found := false
	rest := buf

	for {
		resp, ok := civ.Parse(rest)
		if !ok {
			break
		}
		last = resp
		found = true

		idx := indexOfNextSearch(rest)
		if idx < 0 || idx >= len(rest) {
			break
		}
		rest = rest[idx:]
	}

	return last, found
}

// indexOfNextSearch returns the offset just past the first 0xFD in buf,
// so the caller can continue searching for a subsequent frame.
func indexOfNextSearch(buf []byte) int {
	for i, b := range buf {
		if b == civ.EOM {
			return i + 1
		}
	}
	return -1
}
