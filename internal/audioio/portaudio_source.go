package audioio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// frameSize is the capture buffer the portaudio stream is opened with:
// a 20ms frame at 48kHz.
const frameSize = 960

// PortAudioSource is a Source backed by a single portaudio input stream.
type PortAudioSource struct {
	deviceSubstring string
	sampleRate      int

	mu        sync.Mutex
	stream    *portaudio.Stream
	buf       []float32
	ch        chan Chunk
	stopCh    chan struct{}
	wg        sync.WaitGroup
	capturing bool
}

// NewPortAudioSource creates a source that opens the first input device
// whose name contains deviceSubstring (case-insensitive). An empty
// substring selects portaudio's default input device.
func NewPortAudioSource(deviceSubstring string, sampleRate int) *PortAudioSource {
	return &PortAudioSource{
		deviceSubstring: deviceSubstring,
		sampleRate:      sampleRate,
		ch:              make(chan Chunk, 64),
	}
}

// Start initializes the portaudio library, resolves the device, and
// begins the capture loop. The device failing to open at all is treated
// as a fatal configuration error rather than something to retry.
func (s *PortAudioSource) Start(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audioio: portaudio init: %w", err)
	}

	dev, err := s.resolveDevice()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("audioio: resolve input device: %w", err)
	}

	s.buf = make([]float32, frameSize)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: frameSize,
	}

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("audioio: open stream on %s: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("audioio: start stream on %s: %w", dev.Name, err)
	}

	s.stream = stream
	s.stopCh = make(chan struct{})
	s.mu.Lock()
	s.capturing = true
	s.mu.Unlock()
	s.wg.Add(1)
	go s.captureLoop(ctx)

	obs.For("audioio").Infof("capture started device=%s rate=%d", dev.Name, s.sampleRate)
	return nil
}

func (s *PortAudioSource) resolveDevice() (*portaudio.DeviceInfo, error) {
	if s.deviceSubstring == "" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(s.deviceSubstring)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", s.deviceSubstring)
}

func (s *PortAudioSource) captureLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.capturing = false
		s.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			obs.For("audioio").Warnf("capture read: %v", err)
			return
		}

		chunk := Chunk{Samples: append([]float32(nil), s.buf...), SampleRate: s.sampleRate}
		select {
		case s.ch <- chunk:
		default:
			// Drop-oldest backpressure: make room for the freshest chunk
			// rather than blocking the capture loop.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- chunk:
			default:
			}
		}
	}
}

// Chunks returns the channel of captured audio chunks.
func (s *PortAudioSource) Chunks() <-chan Chunk { return s.ch }

// Capturing reports whether the capture loop is currently running.
func (s *PortAudioSource) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Close stops the stream and releases the portaudio library.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.capturing = false
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	portaudio.Terminate()
	return err
}
