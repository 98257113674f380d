package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/washer-notify/internal/config"
	"github.com/sweeney/washer-notify/internal/line"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/logic"
	"github.com/sweeney/washer-notify/internal/monitor"
	"github.com/sweeney/washer-notify/internal/mqtt"
	"github.com/sweeney/washer-notify/internal/power"
	"github.com/sweeney/washer-notify/internal/registration"
	"github.com/sweeney/washer-notify/internal/status"
	"github.com/sweeney/washer-notify/internal/web"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "washer-notify",
		Short: "Message a LINE user when the washing machine finishes",
		Long: `washer-notify watches the power draw of a washing machine and sends one
LINE message to whoever asked to be told when the current cycle ends.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level)
			defer log.Sync()
			return runDaemon(cmd.Context(), cfg, log)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+")")
	root.AddCommand(newPowerCmd(&configPath))
	return root
}

func newPowerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "power",
		Short: "Read the configured meter once and print the draw",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDevice(); err != nil {
				return err
			}

			reader, err := newReader(cfg)
			if err != nil {
				return err
			}
			defer reader.Close()

			wait := cfg.Device.MaxAge
			if wait <= 0 {
				wait = time.Minute
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			watts, err := readOnce(ctx, reader)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.1f W\n", watts)
			return nil
		},
	}
}

// readOnce returns the first reading, waiting for push-based meters to
// report.
func readOnce(ctx context.Context, r power.Reader) (float64, error) {
	for {
		watts, err := r.ReadPower(ctx)
		if !errors.Is(err, power.ErrNoReading) {
			return watts, err
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for meter: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func runDaemon(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	reader, err := newReader(cfg)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer reader.Close()

	messenger := newMessenger(cfg, log)
	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	start := time.Now()
	cycle := logic.NewCycle(logic.Thresholds{
		OnWatts:  cfg.Thresholds.OnWatts,
		OffWatts: cfg.Thresholds.OffWatts,
		Debounce: cfg.Timing.Debounce,
	}, start)
	tracker := status.NewTracker(start, statusConfig(cfg))

	handler := registration.New(cycle, messenger, publisher, tracker, registration.Config{
		Trigger: cfg.Messages.Trigger,
		Ack:     cfg.Messages.Ack,
	}, log)
	mon := monitor.New(reader, cycle, messenger, publisher, tracker, monitor.Config{
		PollInterval:     cfg.Timing.PollInterval,
		IdlePollInterval: cfg.Timing.IdlePollInterval,
		ReadTimeout:      cfg.Device.Timeout,
		Heartbeat:        cfg.Timing.Heartbeat,
		DoneText:         cfg.Messages.Done,
	}, log)
	srv := web.New(cfg.HTTP.Addr, tracker, handler, cfg.LINE.ChannelSecret, log)

	log.Infow("started",
		"device", cfg.Device.Kind,
		"on_watts", cfg.Thresholds.OnWatts,
		"off_watts", cfg.Thresholds.OffWatts,
		"debounce", cfg.Timing.Debounce,
		"broker", cfg.MQTT.Broker,
		"http", cfg.HTTP.Addr,
		"dry_run", cfg.DryRun())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serve(ctx, mon, srv, sigCh, log)
}

// serve runs the monitor and the HTTP server until a signal arrives or either
// fails, then publishes SHUTDOWN.
func serve(ctx context.Context, mon *monitor.Monitor, srv *web.Server, sig <-chan os.Signal, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon.PublishSystem("STARTUP", "")

	reason := "ERROR"
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mon.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case s := <-sig:
			reason = signalName(s)
			log.Infow("shutting_down", "signal", reason)
			cancel()
		case <-gctx.Done():
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	mon.PublishSystem("SHUTDOWN", reason)
	return err
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

func newReader(cfg config.Config) (power.Reader, error) {
	d := cfg.Device
	switch d.Kind {
	case power.KindTasmota:
		username, password := cfg.TasmotaCredentials()
		return power.NewTasmotaReader(power.TasmotaConfig{
			Broker:   cfg.TasmotaBroker(),
			ClientID: cfg.MQTT.ClientID + "-meter",
			Username: username,
			Password: password,
			Device:   d.ID,
			MaxAge:   d.MaxAge,
		})
	case power.KindShelly:
		return power.NewShellyReader(power.ShellyConfig{
			Host:     d.ID,
			Username: d.Username,
			Password: d.Password,
			Channel:  d.Channel,
			Timeout:  d.Timeout,
		})
	case power.KindPulse:
		return power.NewPulseReader(power.PulseConfig{
			Chip:      d.GPIOChip,
			Line:      d.GPIOLine,
			ImpPerKWh: d.ImpPerKWh,
			MaxAge:    d.MaxAge,
		})
	case power.KindFake:
		samples := d.Samples
		if len(samples) == 0 {
			samples = []float64{0}
		}
		return power.NewFakeReader(samples), nil
	}
	return nil, fmt.Errorf("unknown device kind %q", d.Kind)
}

func newMessenger(cfg config.Config, log *logger.Logger) line.Messenger {
	if cfg.DryRun() {
		log.Warnw("dry_run", "reason", "fake meter without a LINE token; messages are only logged")
		return line.LogMessenger{Log: log}
	}
	return line.NewClient(cfg.LINE.APIBase, cfg.LINE.ChannelToken)
}

func newPublisher(cfg config.Config, log *logger.Logger) mqtt.Publisher {
	if cfg.MQTT.Broker == "" {
		log.Infow("mqtt_disabled")
		return mqtt.NopPublisher{}
	}
	return mqtt.NewRealPublisher(mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, log)
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		OnWatts:     cfg.Thresholds.OnWatts,
		OffWatts:    cfg.Thresholds.OffWatts,
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		PollMs:      cfg.Timing.PollInterval.Milliseconds(),
		IdlePollMs:  cfg.Timing.IdlePollInterval.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		DeviceKind:  cfg.Device.Kind,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}
}
