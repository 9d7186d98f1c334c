// Package config loads and validates the scanner's configuration: a
// YAML file for the bulk of the surface, with command-line flags
// (github.com/spf13/pflag) able to override individual fields.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Radio holds the CI-V serial connection parameters.
type Radio struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Address byte   `yaml:"address"`
}

// Audio holds capture device selection.
type Audio struct {
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
}

// Segmenter holds the four duration knobs.
type Segmenter struct {
	PreRoll     time.Duration `yaml:"pre_roll"`
	SilenceTail time.Duration `yaml:"silence_tail"`
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// ASR holds the offline recognizer adapter configuration. Model,
// ModelsDirectory, UseGPU, and Threads describe the concrete model
// runtime's own knobs; Command/Args are passed through to
// the recognizer binary so its own model-selection flags can reference
// them (e.g. "--model {models_directory}/{model}.bin").
type ASR struct {
	Command         string   `yaml:"command"`
	Args            []string `yaml:"args"`
	Model           string   `yaml:"model"`
	ModelsDirectory string   `yaml:"models_directory"`
	UseGPU          bool     `yaml:"use_gpu"`
	Threads         int      `yaml:"threads"`
}

// Scanner holds the control-loop timing and acceptance threshold.
type Scanner struct {
	PollIntervalMs        int     `yaml:"poll_interval_ms"`
	MinCallsignConfidence float64 `yaml:"min_callsign_confidence"`
}

// Notify holds the enabled notification transports.
type Notify struct {
	CSVPath       string `yaml:"csv_path"`
	MQTTBroker    string `yaml:"mqtt_broker"`
	MQTTTopic     string `yaml:"mqtt_topic"`
	MQTTUsername  string `yaml:"mqtt_username"`
	MQTTPassword  string `yaml:"mqtt_password"`
	WebhookURL    string `yaml:"webhook_url"`
	WebSocketBind string `yaml:"websocket_bind"`
}

// Config is the scanner's complete configuration surface.
type Config struct {
	Radio     Radio     `yaml:"radio"`
	Audio     Audio     `yaml:"audio"`
	Segmenter Segmenter `yaml:"segmenter"`
	ASR       ASR       `yaml:"asr"`
	Scanner   Scanner   `yaml:"scanner"`
	Notify    Notify    `yaml:"notify"`
	LogLevel  string    `yaml:"log_level"`
}

// Default returns the stock configuration: a conservative radio address
// and sample rate plus the stock segmenter/scanner timing defaults.
func Default() Config {
	return Config{
		Radio: Radio{
			Port:    "/dev/ttyUSB0",
			Baud:    19200,
			Address: 0xA4,
		},
		Audio: Audio{
			Device:     "",
			SampleRate: 48000,
		},
		Segmenter: Segmenter{
			PreRoll:     500 * time.Millisecond,
			SilenceTail: 1 * time.Second,
			MinDuration: 1 * time.Second,
			MaxDuration: 60 * time.Second,
		},
		Scanner: Scanner{
			PollIntervalMs:        50,
			MinCallsignConfidence: 0.5,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file, starting from Default() so
// unspecified fields retain their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags registers command-line overrides for the most commonly tweaked
// fields onto fs and applies them onto cfg when Parse has been called.
type Flags struct {
	fs       *pflag.FlagSet
	port     *string
	baud     *int
	audioDev *string
	logLevel *string
}

// RegisterFlags defines the override flags on fs without parsing it.
func RegisterFlags(fs *pflag.FlagSet, cfg Config) *Flags {
	return &Flags{
		fs:       fs,
		port:     fs.StringP("radio-port", "p", cfg.Radio.Port, "CI-V serial port device"),
		baud:     fs.IntP("radio-baud", "b", cfg.Radio.Baud, "CI-V serial baud rate"),
		audioDev: fs.StringP("audio-device", "d", cfg.Audio.Device, "audio capture device name (substring match)"),
		logLevel: fs.StringP("log-level", "l", cfg.LogLevel, "log level: debug, info, warn, error"),
	}
}

// Apply copies the values of flags set on the command line onto cfg;
// flags left unset keep cfg's existing values.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("radio-port") {
		cfg.Radio.Port = *f.port
	}
	if f.fs.Changed("radio-baud") {
		cfg.Radio.Baud = *f.baud
	}
	if f.fs.Changed("audio-device") {
		cfg.Audio.Device = *f.audioDev
	}
	if f.fs.Changed("log-level") {
		cfg.LogLevel = *f.logLevel
	}
}

// Validate rejects fatal misconfiguration: missing radio port,
// non-positive baud rate, sample rate or poll interval, a negative
// pre_roll or non-positive other segmenter durations, a max_duration
// shorter than min_duration, or a min_callsign_confidence outside [0,1].
func (c Config) Validate() error {
	if c.Radio.Port == "" {
		return fmt.Errorf("config: radio.port must be set")
	}
	if c.Radio.Baud <= 0 {
		return fmt.Errorf("config: radio.baud must be positive")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive")
	}
	s := c.Segmenter
	if s.PreRoll < 0 || s.SilenceTail <= 0 || s.MinDuration <= 0 || s.MaxDuration <= 0 {
		return fmt.Errorf("config: segmenter durations must be positive")
	}
	if s.MaxDuration < s.MinDuration {
		return fmt.Errorf("config: segmenter.max_duration must be >= min_duration")
	}
	if c.Scanner.PollIntervalMs <= 0 {
		return fmt.Errorf("config: scanner.poll_interval_ms must be positive")
	}
	if c.Scanner.MinCallsignConfidence < 0 || c.Scanner.MinCallsignConfidence > 1 {
		return fmt.Errorf("config: scanner.min_callsign_confidence must be in [0,1]")
	}
	return nil
}
