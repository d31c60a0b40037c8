package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/SentientTimeline/internal/api"
	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/driver"
	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/logging"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
	"github.com/AaronLay10/SentientTimeline/internal/orchestrator"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
	"github.com/AaronLay10/SentientTimeline/internal/storage/sqlite"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

const (
	heartbeatTolerance  = 2.0
	healthCheckInterval = time.Second
)

var (
	configPath string

	runFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path to sequencer.yaml",
			EnvVar:      "SENTIENT_CONFIG",
			Value:       "sequencer.yaml",
			Destination: &configPath,
		},
	}
)

// eventStore is what both store backends provide.
type eventStore interface {
	events.Store
	api.EventHistory
	Close() error
}

func runDaemon(_ *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel(), cfg.LogFormat())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	defer events.Flush()

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "orchestrator starting", map[string]interface{}{
		"service":  "orchestrator",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"room":     cfg.Room.ID,
		"store":    cfg.EventStore(),
	})
	log.Info().Str("version", version.Version).Str("room", cfg.Room.ID).Msg("orchestrator starting")

	err = serve(ctx, cfg, store, log)
	if err != nil {
		events.Emit("error", "system.error", "orchestrator failed", map[string]interface{}{
			"error": err.Error(),
		})
		log.Error().Err(err).Msg("orchestrator failed")
	}
	events.Emit("info", "system.shutdown", "orchestrator stopped", nil)
	log.Info().Msg("orchestrator stopped")
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (eventStore, error) {
	switch cfg.EventStore() {
	case config.StorePostgres:
		password, err := config.ResolveSecret("PGPASSWORD")
		if err != nil {
			return nil, err
		}
		client, err := postgres.New(ctx, postgres.Options{
			Host:     config.Env("PGHOST", "localhost"),
			Port:     config.Env("PGPORT", "5432"),
			User:     config.Env("PGUSER", "sentient"),
			Password: password,
			Database: config.Env("PGDATABASE", "sentient"),
			RoomID:   cfg.Room.ID,
		})
		if err != nil {
			return nil, err
		}
		events.SetStore(client)
		return client, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath(), cfg.Room.ID)
		if err != nil {
			return nil, err
		}
		events.SetStore(s)
		return s, nil
	}
	return nil, nil
}

func serve(ctx context.Context, cfg *config.Config, store eventStore, log zerolog.Logger) error {
	password, err := config.ResolveSecret("MQTT_PASSWORD")
	if err != nil {
		return err
	}
	registry := mqtt.NewDeviceRegistry()
	monitor := mqtt.NewMonitor(registry, heartbeatTolerance)

	var listener *mqtt.Listener
	client := mqtt.NewClient(mqtt.Options{
		BrokerURL: config.Env("MQTT_URL", "tcp://localhost:1883"),
		ClientID:  "sentient-timeline-" + cfg.Room.ID,
		Username:  os.Getenv("MQTT_USERNAME"),
		Password:  password,
		Logger:    log.With().Str("component", "mqtt").Logger(),
		OnConnect: func() {
			if err := listener.Subscribe(); err != nil {
				log.Warn().Err(err).Msg("mqtt subscribe failed")
			}
		},
	})
	listener = mqtt.NewListener(client, monitor)
	if err := client.Connect(); err != nil {
		log.Warn().Err(err).Msg("mqtt unavailable, retrying in background")
	}
	defer client.Disconnect()
	monitor.Start(healthCheckInterval)
	defer monitor.Stop()

	stats := &orchestrator.Stats{}
	sched := timeline.NewScheduler()
	sched.SetHooks(stats.Hooks())
	loop := driver.New(sched, driver.Options{
		TickRate: float64(cfg.TickRate()),
		MaxDelta: cfg.MaxDelta(),
		Logger:   log.With().Str("component", "driver").Logger(),
	})

	actions := orchestrator.NewActions(log.With().Str("component", "actions").Logger())
	catalog := orchestrator.NewCatalog(actions, log.With().Str("component", "catalog").Logger())
	actions.RegisterTimelineActions(sched, catalog)
	commands := mqtt.NewCommandExecutor(client, registry)
	defer commands.Close()
	actions.RegisterDeviceActions(commands)
	n, err := catalog.LoadDir(cfg.TimelineDir())
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.TimelineDir()).Msg("some timelines failed to load")
	}
	log.Info().Int("timelines", n).Str("dir", cfg.TimelineDir()).Msg("catalog loaded")

	runtime := orchestrator.NewRuntime(loop, catalog, deviceResolver(registry))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	schedules := orchestrator.NewSchedules(runtime, loc, log.With().Str("component", "schedules").Logger())
	for _, s := range cfg.Schedules {
		if err := schedules.Add(orchestrator.ScheduleSpec{Timeline: s.Timeline, Cron: s.Cron, Subject: s.Subject}); err != nil {
			return err
		}
	}

	auth, err := api.LoadCredentials()
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		log.Warn().Msg("no operator credentials configured, control endpoints are open")
	}
	server := api.NewServer(api.Options{
		Port:     cfg.UIPort(),
		RoomName: cfg.Room.Name,
		Control:  runtime,
		Devices:  registry,
		History:  store,
		Metrics: api.MetricsSource{
			Stats:         stats.Snapshot,
			Ticks:         loop.Ticks,
			Live:          loop.Live,
			MQTTConnected: client.IsConnected,
		},
		Auth:   auth,
		TLS:    api.LoadTLSFiles(),
		Logger: log.With().Str("component", "api").Logger(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })
	if cfg.Timelines.Watch {
		g.Go(func() error { return catalog.Watch(gctx, cfg.TimelineDir()) })
	}

	schedules.Start()
	defer schedules.Stop()
	if schedules.Len() > 0 {
		log.Info().Int("schedules", schedules.Len()).Str("tz", loc.String()).Msg("schedules armed")
	}

	return g.Wait()
}

// deviceResolver binds subject names to live device handles. The handle goes
// dead when the device unregisters or re-registers.
func deviceResolver(registry *mqtt.DeviceRegistry) orchestrator.SubjectResolver {
	return func(name string) (timeline.Subject, error) {
		h, err := registry.Subject(name)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}
