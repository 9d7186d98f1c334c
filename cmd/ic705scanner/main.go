// Command ic705scanner is the CLI entry point: it loads configuration,
// wires the concrete audio/ASR/notification adapters into the scanner
// coordinator, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/kb1sig/ic705scanner/internal/asr"
	"github.com/kb1sig/ic705scanner/internal/audioio"
	"github.com/kb1sig/ic705scanner/internal/config"
	"github.com/kb1sig/ic705scanner/internal/notify"
	"github.com/kb1sig/ic705scanner/internal/obs"
	"github.com/kb1sig/ic705scanner/internal/radio"
	"github.com/kb1sig/ic705scanner/internal/scanner"
	"github.com/kb1sig/ic705scanner/internal/segmenter"
)

func main() {
	if err := run(); err != nil {
		obs.For("main").Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "scanner.yaml", "path to the YAML configuration file")
	help := pflag.BoolP("help", "h", false, "display help text")

	defaults := config.Default()
	flags := config.RegisterFlags(pflag.CommandLine, defaults)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ic705scanner: passive IC-705 squelch-carrier monitor\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	setLogLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := wire(cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.shutdown()

	return app.runUntilCanceled(ctx)
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		obs.SetLevel(log.DebugLevel)
	case "warn":
		obs.SetLevel(log.WarnLevel)
	case "error":
		obs.SetLevel(log.ErrorLevel)
	default:
		obs.SetLevel(log.InfoLevel)
	}
}

// app holds every wired component so shutdown can release them in the
// right order: stop capture, drain recognition, then release serial and
// recognizer resources.
type app struct {
	radioClient *radio.Client
	audioSource audioio.Source
	recognizer  *asr.ExecRecognizer
	coordinator *scanner.Coordinator

	csvLog  *notify.CSVLog
	mqtt    *notify.MQTT
	wsHub   *notify.WebSocketHub
	httpSrv *http.Server
}

// wire builds every component in dependency order (radio and audio
// capture first, segmenter and recognizer independent, the coordinator
// composing all of them last) and connects/initializes the ones that
// need it before the coordinator is allowed to start.
func wire(cfg config.Config) (*app, error) {
	radioClient := radio.New(cfg.Radio.Port, cfg.Radio.Baud, cfg.Radio.Address)
	if err := radioClient.Connect(); err != nil {
		return nil, fmt.Errorf("radio: %w", err)
	}

	device := cfg.Audio.Device
	if device == "" {
		if detected, err := audioio.AutoDetectDevice(); err == nil && detected != "" {
			device = detected
		}
	}
	audioSource := audioio.NewPortAudioSource(device, cfg.Audio.SampleRate)

	recognizer := asr.NewExecRecognizer(cfg.ASR.Command, expandASRArgs(cfg.ASR))
	if err := recognizer.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("asr: %w", err)
	}
	if !recognizer.IsReady() {
		obs.For("main").Warnf("recognizer unavailable; transmissions will be recorded but not transcribed")
	}

	notifier, wsHub, mqttClient, httpSrv, csvLog := wireNotifications(cfg.Notify)

	seg := segmenter.New(segmenter.Config{
		PreRoll:     cfg.Segmenter.PreRoll,
		SilenceTail: cfg.Segmenter.SilenceTail,
		MinDuration: cfg.Segmenter.MinDuration,
		MaxDuration: cfg.Segmenter.MaxDuration,
	}, cfg.Audio.SampleRate)

	coordinator := scanner.New(radioClient, seg, recognizer, notifier, obs.For("scanner"), toScannerConfig(cfg.Scanner))

	return &app{
		radioClient: radioClient,
		audioSource: audioSource,
		recognizer:  recognizer,
		coordinator: coordinator,
		csvLog:      csvLog,
		mqtt:        mqttClient,
		wsHub:       wsHub,
		httpSrv:     httpSrv,
	}, nil
}

// expandASRArgs substitutes the {model}, {models_directory}, {threads},
// and {use_gpu} placeholders in the configured recognizer arguments, so
// a whisper.cpp-style CLI can be pointed at the configured model, e.g.
// args: ["-m", "{models_directory}/{model}.bin", "-t", "{threads}"].
func expandASRArgs(cfg config.ASR) []string {
	repl := strings.NewReplacer(
		"{model}", cfg.Model,
		"{models_directory}", cfg.ModelsDirectory,
		"{threads}", strconv.Itoa(cfg.Threads),
		"{use_gpu}", strconv.FormatBool(cfg.UseGPU),
	)
	out := make([]string, len(cfg.Args))
	for i, a := range cfg.Args {
		out[i] = repl.Replace(a)
	}
	return out
}

func toScannerConfig(s config.Scanner) scanner.Config {
	return scanner.Config{
		PollInterval:          time.Duration(s.PollIntervalMs) * time.Millisecond,
		MinCallsignConfidence: s.MinCallsignConfidence,
	}
}

// wireNotifications builds the composite notifier from every configured
// transport. CSVLog is always enabled as the local record of record; the
// rest are enabled only when their config fields are set.
func wireNotifications(cfg config.Notify) (notify.Notifier, *notify.WebSocketHub, *notify.MQTT, *http.Server, *notify.CSVLog) {
	log := obs.For("notify")

	csvDir := cfg.CSVPath
	if csvDir == "" {
		csvDir = "detections"
	}
	csvLog := notify.NewCSVLog(csvDir)

	transports := []notify.Notifier{csvLog}

	var mqttClient *notify.MQTT
	if cfg.MQTTBroker != "" {
		client, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			QoS:      0,
			Retain:   false,
		})
		if err != nil {
			log.Warnf("mqtt: %v (disabling transport)", err)
		} else {
			mqttClient = client
			transports = append(transports, client)
		}
	}

	if cfg.WebhookURL != "" {
		transports = append(transports, notify.NewWebhook(cfg.WebhookURL))
	}

	var wsHub *notify.WebSocketHub
	var httpSrv *http.Server
	if cfg.WebSocketBind != "" {
		wsHub = notify.NewWebSocketHub()
		transports = append(transports, wsHub)

		mux := http.NewServeMux()
		mux.Handle("/activity", wsHub)
		httpSrv = &http.Server{Addr: cfg.WebSocketBind, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("websocket listener: %v", err)
			}
		}()
	}

	return notify.NewComposite(log, transports...), wsHub, mqttClient, httpSrv, csvLog
}

// runUntilCanceled starts the audio source, bridges its chunks into the
// coordinator, and blocks on the control/recognition loops until ctx is
// canceled.
func (a *app) runUntilCanceled(ctx context.Context) error {
	if err := a.audioSource.Start(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	go a.bridgeAudio(ctx)

	a.coordinator.Run(ctx)
	return nil
}

// bridgeAudio adapts audioio.Chunk into scanner.AudioChunk, since the
// coordinator never imports internal/audioio directly.
func (a *app) bridgeAudio(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-a.audioSource.Chunks():
			if !ok {
				return
			}
			a.coordinator.EnqueueAudio(scanner.AudioChunk{
				Samples:    chunk.Samples,
				SampleRate: chunk.SampleRate,
			})
		}
	}
}

// shutdown releases resources in order: the capture source first, then
// the serial and recognizer/notifier resources the coordinator no
// longer needs once Run has returned.
func (a *app) shutdown() {
	log := obs.For("main")

	if err := a.audioSource.Close(); err != nil {
		log.Warnf("audio source close: %v", err)
	}
	if err := a.radioClient.Close(); err != nil {
		log.Warnf("radio close: %v", err)
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.wsHub != nil {
		a.wsHub.Close()
	}
	if a.httpSrv != nil {
		_ = a.httpSrv.Close()
	}
	if a.csvLog != nil {
		if err := a.csvLog.Close(); err != nil {
			log.Warnf("csv log close: %v", err)
		}
	}
}
