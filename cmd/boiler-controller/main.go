// Command boiler-controller runs the steam-boiler control program: one
// controller cycle per tick, exchanging message batches with the physical
// units over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/boiler-controller/internal/config"
	"github.com/sweeney/boiler-controller/internal/gpio"
	"github.com/sweeney/boiler-controller/internal/journal"
	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/logic"
	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/mqtt"
	"github.com/sweeney/boiler-controller/internal/status"
	"github.com/sweeney/boiler-controller/internal/web"
)

func main() {
	fs := pflag.NewFlagSet("boiler-controller", pflag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file (defaults apply when empty)")
	printConfig := fs.Bool("print-config", false, "Print the effective configuration and exit")
	overrides := config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	log := logger.Sugar()
	runID := uuid.NewString()

	ctrl, err := logic.NewController(cfg.Characteristics())
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "boiler-controller-" + runID[:8]
	}
	client, err := mqtt.NewRealClient(mqtt.ClientOptions{
		Broker:     cfg.MQTT.Broker,
		ClientID:   clientID,
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger.Named("mqtt"),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	alarm, err := openAlarm(cfg.Alarm)
	if err != nil {
		return fmt.Errorf("init alarm: %w", err)
	}
	defer alarm.Close()

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer jrnl.Close()
	}

	m := metrics.New()

	// Tracker exists before STARTUP so the event carries a snapshot.
	tracker := status.NewTracker(time.Now(), runID, statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	d := &daemon{
		ctrl:      ctrl,
		transport: client,
		tracker:   tracker,
		metrics:   m,
		alarm:     gpio.NewFollower(alarm),
		log:       log,
		runID:     runID,
		now:       time.Now,
	}
	if jrnl != nil {
		d.journal = jrnl
	}
	d.publishSystem("STARTUP", "", true)

	g, ctx := errgroup.WithContext(context.Background())

	var srv *web.Server
	if cfg.Daemon.HTTPAddr != "" {
		var history web.History
		if jrnl != nil {
			history = jrnl
		}
		srv = web.New(cfg.Daemon.HTTPAddr, tracker, history, m.Handler())
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		log.Infof("http status server listening on %s", cfg.Daemon.HTTPAddr)
	}

	log.Infow("started",
		"run_id", runID,
		"cycle", cfg.Daemon.Cycle,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Daemon.Heartbeat,
		"pumps", cfg.Boiler.Pumps,
	)

	ticker := time.NewTicker(cfg.Daemon.Cycle)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if cfg.Daemon.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Daemon.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
		return d.runLoop(ctx, ticker.C, heartbeat, sigCh)
	})
	return g.Wait()
}

func openAlarm(cfg config.Alarm) (gpio.Alarm, error) {
	if cfg.Pin < 0 {
		return gpio.NopAlarm{}, nil
	}
	return gpio.NewRealAlarm(cfg.Chip, cfg.Pin, cfg.ActiveLow)
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		CycleMs:     cfg.Daemon.Cycle.Milliseconds(),
		HeartbeatMs: cfg.Daemon.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.Daemon.HTTPAddr,
		AlarmPin:    cfg.Alarm.Pin,
		Journal:     cfg.Journal.Path,
		Boiler:      cfg.Characteristics(),
	}
}

// cycleJournal persists one record per cycle.
type cycleJournal interface {
	Record(ctx context.Context, r journal.Record) error
}

// transportStats is implemented by transports that buffer while offline.
type transportStats interface {
	Buffered() int
	Rejected() int
}

// daemon owns the controller and everything a cycle touches. Only the
// runLoop goroutine uses it.
type daemon struct {
	ctrl      *logic.Controller
	transport mqtt.Transport
	tracker   *status.Tracker
	metrics   *metrics.Metrics // nil disables
	journal   cycleJournal     // nil disables
	alarm     *gpio.Follower   // nil disables
	log       *zap.SugaredLogger
	runID     string
	now       func() time.Time
}

func (d *daemon) runLoop(ctx context.Context, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			d.log.Infof("received %v, shutting down", s)
			d.publishSystem("SHUTDOWN", reason, true)
			return nil

		case <-ctx.Done():
			d.publishSystem("SHUTDOWN", "CONTEXT_DONE", true)
			return ctx.Err()

		case <-heartbeat:
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			d.publishSystem("HEARTBEAT", "", false)

		case <-tick:
			d.cycle(ctx)
		}
	}
}

// cycle runs one controller cycle and fans the result out.
func (d *daemon) cycle(ctx context.Context) {
	start := d.now()
	before := d.ctrl.Snapshot()

	in := d.transport.Drain()
	out := d.ctrl.Clock(in)
	snap := d.ctrl.Snapshot()

	batch := mqtt.Batch{Cycle: snap.Counts.Cycles, Timestamp: start, Messages: out}
	if err := d.transport.Publish(batch); err != nil {
		d.log.Errorw("mqtt: publish failed", "cycle", batch.Cycle, "error", err)
		if d.metrics != nil {
			d.metrics.PublishError()
		}
	}

	d.logCycle(before, snap, in, out)

	if d.alarm != nil {
		if err := d.alarm.Update(snap.Mode == logic.ModeEmergencyStop); err != nil {
			d.log.Errorw("gpio: alarm write failed", "error", err)
		}
		d.tracker.SetAlarm(d.alarm.On())
	}

	d.tracker.Update(snap, start)
	d.refreshMQTT()

	if d.journal != nil {
		if err := d.journal.Record(ctx, journal.FromCycle(d.runID, start, snap, in, out)); err != nil {
			d.log.Errorw("journal: write failed", "cycle", batch.Cycle, "error", err)
			if d.metrics != nil {
				d.metrics.JournalError()
			}
		}
	}

	if d.metrics != nil {
		d.metrics.ObserveCycle(snap, in, out, d.now().Sub(start))
	}
}

func (d *daemon) logCycle(before, after logic.Snapshot, in, out []logic.Message) {
	if after.Counts.TransmissionFailures > before.Counts.TransmissionFailures {
		d.log.Warnw("transmission failure", "cycle", after.Counts.Cycles, "inbound", len(in))
	}
	for _, m := range out {
		if strings.HasSuffix(string(m.Kind), "_FAILURE_DETECTION") {
			d.log.Warnw("failure detected", "cycle", after.Counts.Cycles, "message", m.String())
		}
	}
	if after.Mode == before.Mode {
		d.log.Debugw("cycle", "cycle", after.Counts.Cycles, "mode", after.Mode.String(), "inbound", len(in), "outbound", len(out))
		return
	}
	if after.Mode == logic.ModeEmergencyStop {
		d.log.Errorw("mode change", "from", before.Mode.String(), "to", after.Mode.String(), "cycle", after.Counts.Cycles)
		return
	}
	d.log.Infow("mode change", "from", before.Mode.String(), "to", after.Mode.String(), "cycle", after.Counts.Cycles)
}

func (d *daemon) refreshMQTT() {
	var connected bool
	if c, ok := d.transport.(mqtt.ConnectionStatus); ok {
		connected = c.IsConnected()
	}
	var buffered, rejected int
	if s, ok := d.transport.(transportStats); ok {
		buffered, rejected = s.Buffered(), s.Rejected()
	}
	d.tracker.SetMQTT(connected, buffered, rejected)
}

// publishSystem publishes a lifecycle event carrying the current status document.
func (d *daemon) publishSystem(event, reason string, retained bool) {
	d.refreshMQTT()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.transport.PublishSystem(ev); err != nil {
		d.log.Errorw("mqtt: system event publish failed", "event", event, "error", err)
		return
	}
	d.log.Infow("published system event", "event", event, "reason", reason)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
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
