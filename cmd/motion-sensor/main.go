// Command motion-sensor samples an IMU, classifies motion intensity and
// publishes stable activity events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/motion-sensor/internal/classify"
	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/gpio"
	"github.com/sweeney/motion-sensor/internal/history"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/metrics"
	"github.com/sweeney/motion-sensor/internal/mqtt"
	"github.com/sweeney/motion-sensor/internal/pipeline"
	"github.com/sweeney/motion-sensor/internal/sensor"
	"github.com/sweeney/motion-sensor/internal/status"
	"github.com/sweeney/motion-sensor/internal/web"
)

const (
	statusRefresh   = time.Second
	eventQueueSize  = 32
	shutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	device := flag.String("device", "", "IMU serial device (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	wsBroker := flag.String("ws-broker", "", `MQTT websocket URL for live UI ("=broker" derives from broker, "off" disables)`)
	heartbeat := flag.Duration("heartbeat", -1, "Heartbeat interval, 0 disables (overrides config)")
	historyPath := flag.String("history", "", `SQLite history file (overrides config, "off" disables)`)
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	printReading := flag.Bool("print-reading", false, "Print one sensor reading and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, flagOverrides{
		broker:    *broker,
		device:    *device,
		httpAddr:  *httpAddr,
		wsBroker:  *wsBroker,
		heartbeat: *heartbeat,
		history:   *historyPath,
		logLevel:  *logLevel,
	})

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, *printReading, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

type flagOverrides struct {
	broker, device, httpAddr, wsBroker string
	heartbeat                          time.Duration
	history, logLevel                  string
}

// applyFlags overrides config values with flags that were given.
func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.broker != "" {
		cfg.MQTT.Broker = f.broker
	}
	if f.device != "" {
		cfg.Sensor.Device = f.device
	}
	switch f.httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.wsBroker != "" {
		cfg.HTTP.WSBroker = f.wsBroker
	}
	if f.heartbeat >= 0 {
		cfg.Heartbeat = f.heartbeat
	}
	switch f.history {
	case "":
	case "off":
		cfg.History.Path = ""
	default:
		cfg.History.Path = f.history
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	})), nil
}

func run(cfg config.Config, printReading bool, logger *slog.Logger) error {
	reader, err := sensor.OpenSerial(cfg.Sensor.Device, cfg.Sensor.Baud, sensor.SerialOptions{
		StaleAfter: cfg.Sensor.StaleAfter,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer func() {
		ok, bad := reader.Frames()
		logger.Info("sensor closed", "frames", ok, "bad_frames", bad)
		reader.Close()
	}()

	if printReading {
		return printOneReading(reader, 2*time.Second)
	}

	classifier, err := classify.NewIntensity(cfg.IntensityConfig())
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}
	store, err := config.NewStore(cfg.Debounce.Thresholds())
	if err != nil {
		return fmt.Errorf("init thresholds: %w", err)
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var events *history.Store
	if cfg.History.Path != "" {
		events, err = history.Open(cfg.History.Path, runID)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer events.Close()
		pruneHistory(context.Background(), events, cfg.History.Keep, logger)
		if counts, err := events.Counts(context.Background()); err == nil {
			logger.Info("history opened", "path", cfg.History.Path, "events", counts.Total())
		}
	}

	var pulser *gpio.Pulser
	if len(cfg.Indicator.Pins) > 0 {
		ind, err := gpio.NewRealIndicator(cfg.Indicator.Chip, cfg.Indicator.Pins)
		if err != nil {
			// LEDs are cosmetic; run without them.
			logger.Warn("indicator disabled", "err", err)
		} else {
			pulser = gpio.NewPulser(ind, cfg.Indicator.Pulse, logger)
			defer pulser.Close()
			logger.Info("indicator enabled", "chip", cfg.Indicator.Chip, "labels", cfg.IndicatorLabels())
		}
	}

	wsURL := resolveWSBroker(cfg.HTTP.WSBroker, cfg.MQTT.Broker, logger)
	tracker := status.NewTracker(time.Now(), status.Config{
		SampleMs:     cfg.Sampling.Period.Milliseconds(),
		ScoreMs:      cfg.Scoring.Period.Milliseconds(),
		WindowCycles: cfg.Sampling.WindowCycles,
		Channels:     cfg.Sampling.Channels,
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     cfg.HTTP.Addr,
		WSBroker:     wsURL,
		Names:        cfg.Labels.Names,
	})
	tracker.SetThresholds(store.Thresholds())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	queue := make(chan logic.Event, eventQueueSize)
	pipe, err := pipeline.New(pipeline.Options{
		Reader:       reader,
		Classifier:   classifier,
		Thresholds:   store,
		Labels:       cfg.Labels.Set(),
		Name:         cfg.Labels.Name,
		WindowCycles: cfg.Sampling.WindowCycles,
		Channels:     cfg.Sampling.Channels,
		SamplePeriod: cfg.Sampling.Period,
		ScorePeriod:  cfg.Scoring.Period,
		Handler:      enqueue(queue, logger),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	collector := metrics.New(pipe.Stats, publisher.IsConnected)

	d := &daemon{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		thresholds: store,
		stats:      pipe.Stats,
		metrics:    collector,
		heartbeat:  cfg.Heartbeat,
		keep:       cfg.History.Keep,
		logger:     logger,
		now:        time.Now,
	}
	if events != nil {
		d.history = events
	}
	if pulser != nil {
		d.indicator = pulser
	}

	d.publishStartup()

	logger.Info("started",
		"device", cfg.Sensor.Device,
		"sample", cfg.Sampling.Period,
		"score", cfg.Scoring.Period,
		"window_cycles", cfg.Sampling.WindowCycles,
		"channels", cfg.Sampling.Channels,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	pipeCtx, stopPipe := context.WithCancel(gCtx)
	pipeDone := make(chan struct{})
	g.Go(func() error {
		defer close(pipeDone)
		return pipe.Run(pipeCtx)
	})
	d.stopSampling = func() {
		stopPipe()
		<-pipeDone
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Addr:       cfg.HTTP.Addr,
			Tracker:    tracker,
			Thresholds: store,
			History:    historyLister(events),
			Metrics:    collector.Handler(),
			Logger:     logger,
		})
		g.Go(func() error {
			serveHTTP(srv, cfg.HTTP.Addr, logger)
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	g.Go(func() error {
		defer cancel()
		return d.runLoop(gCtx, queue, ticker.C, sigCh)
	})

	return g.Wait()
}

// serveHTTP runs srv until it is shut down. A failed listener is logged and
// sensing carries on without the status page.
func serveHTTP(srv interface{ ListenAndServe() error }, addr string, logger *slog.Logger) {
	logger.Info("http status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "addr", addr, "err", err)
	}
}

// historyLister avoids handing web a typed nil.
func historyLister(s *history.Store) web.EventLister {
	if s == nil {
		return nil
	}
	return s
}

// enqueue hands events from the scoring loop to the daemon loop without
// blocking scoring. Events are rare, so a full queue means the daemon loop is
// stuck; dropping is better than stalling classification.
func enqueue(queue chan<- logic.Event, logger *slog.Logger) pipeline.EventHandler {
	return func(e logic.Event) {
		select {
		case queue <- e:
		default:
			logger.Warn("event queue full, dropping event", "label", e.Label)
		}
	}
}

func printOneReading(r sensor.Reader, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		reading, err := sensor.Read(r)
		if err == nil {
			fmt.Printf("accel: %.4f %.4f %.4f  gyro: %.4f %.4f %.4f\n",
				reading.Accel.X, reading.Accel.Y, reading.Accel.Z,
				reading.Gyro.X, reading.Gyro.Y, reading.Gyro.Z)
			return nil
		}
		if !errors.Is(err, sensor.ErrNoFrame) || time.Now().After(deadline) {
			return fmt.Errorf("read sensor: %w", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or
// empty disables.
func resolveWSBroker(ws, broker string, logger *slog.Logger) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		logger.Warn("ws-broker: cannot derive from broker", "broker", broker, "err", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
