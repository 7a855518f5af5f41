package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-lifx/internal/api"
	"github.com/nerrad567/gray-logic-lifx/internal/bridges/lifx"
	"github.com/nerrad567/gray-logic-lifx/internal/extensions/locationgroup"
	"github.com/nerrad567/gray-logic-lifx/internal/extensions/tile"
	"github.com/nerrad567/gray-logic-lifx/internal/history"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mdns"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lifx/internal/metrics"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
	"github.com/nerrad567/gray-logic-lifx/migrations"
)

// run is the serve logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - configPath: YAML file; "" uses defaults plus environment overrides
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting lifxd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// UDP sockets
	udp, legacy, err := openSockets(ctx, cfg, log.Component("transport"))
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing UDP sockets")
		if closeErr := udp.Close(); closeErr != nil {
			log.Error("error closing UDP socket", "error", closeErr)
		}
		if legacy != nil {
			if closeErr := legacy.Close(); closeErr != nil {
				log.Error("error closing legacy UDP socket", "error", closeErr)
			}
		}
	}()

	svcOpts := service.Options{
		Transport:           udp,
		SourceID:            cfg.LIFX.SourceID,
		TickInterval:        cfg.GetTickInterval(),
		BroadcastAddr:       cfg.GetBroadcastIP(),
		CorrelationTimeout:  cfg.GetCorrelationTimeout(),
		CorrelationAttempts: cfg.LIFX.Attempts,
		Logger:              log.Component("service"),
	}
	if legacy != nil {
		svcOpts.LegacyTransport = legacy
	}

	locations := locationgroup.New(log.Component("locationgroup"))
	tiles := tile.New(log.Component("tile"))
	svcOpts.Extensions = []service.Extension{locations, tiles}

	svc, err := service.New(svcOpts)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	// Prometheus
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector, collectorErr := metrics.NewCollector(svc,
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(reg),
			metrics.WithTransport(udp),
		)
		if collectorErr != nil {
			return fmt.Errorf("registering metrics: %w", collectorErr)
		}
		svc.AddChangeListener(collector)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		log.Info("prometheus metrics enabled", "namespace", cfg.Metrics.Namespace)
	}

	// Database and change history
	var db *database.DB
	var historyRepo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = openHistoryDB(cfg)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if cpErr := db.Checkpoint(context.Background()); cpErr != nil {
				log.Warn("database checkpoint failed", "error", cpErr)
			}
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		historyRepo = history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(history.RecorderOptions{
			Repository: historyRepo,
			Retention:  cfg.GetRetention(),
			Logger:     log.Component("history"),
		})
		if useErr := svc.Use(recorder); useErr != nil {
			return fmt.Errorf("enabling history: %w", useErr)
		}
	} else {
		log.Info("database disabled, change history off")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points_written", st.Written, "write_errors", st.WriteErrors)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if useErr := svc.Use(metrics.NewInfluxRecorder(influxClient, svc)); useErr != nil {
			return fmt.Errorf("enabling InfluxDB recorder: %w", useErr)
		}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Bridge.TopicPrefix))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, bridgeErr := lifx.New(lifx.Options{
			MQTT:           mqttClient,
			Topics:         mqttClient.Topics(),
			Socket:         udp,
			BridgeID:       cfg.Site.ID,
			Version:        version,
			HealthInterval: cfg.GetHealthInterval(),
			CommandTimeout: cfg.GetCommandTimeout(),
			Logger:         log.Component("bridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if useErr := svc.Use(bridge); useErr != nil {
			return fmt.Errorf("enabling MQTT bridge: %w", useErr)
		}
	} else {
		log.Info("MQTT bridge disabled")
	}

	// WebSocket hub sees every light and tree event.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	svc.AddChangeListener(hub)
	svc.AddLightAddedListener(hub)
	locations.AddListener(hub)

	if startErr := svc.Start(ctx); startErr != nil {
		svc.Stop()
		return fmt.Errorf("starting service: %w", startErr)
	}
	defer func() {
		log.Info("stopping service")
		svc.Stop()
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Logger:         log.Component("api"),
			Lights:         svc,
			Locations:      locations,
			Tiles:          tiles,
			Transport:      udp,
			Metrics:        metricsHandler,
			Hub:            hub,
			CommandTimeout: cfg.GetCommandTimeout(),
			Version:        version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
			deps.DB = db.DB
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()

		if cfg.MDNS.Enabled {
			adv, mdnsErr := mdns.Advertise(mdns.Config{
				Instance: cfg.MDNS.Instance,
				Port:     cfg.API.Port,
				Info:     []string{"version=" + version, "site=" + cfg.Site.ID},
			})
			if mdnsErr != nil {
				log.Warn("mDNS advertisement failed", "error", mdnsErr)
			} else {
				defer func() {
					log.Info("withdrawing mDNS advertisement")
					if shutdownErr := adv.Shutdown(); shutdownErr != nil {
						log.Error("error stopping mDNS", "error", shutdownErr)
					}
				}()
				log.Info("mDNS advertisement started", "service", mdns.ServiceType)
			}
		}
	} else {
		log.Info("HTTP API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"source_id", svc.SourceID(),
		"udp_port", udp.LocalPort(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openSockets binds the primary socket and, when enabled, the receive-only
// legacy socket on the device port.
func openSockets(ctx context.Context, cfg *config.Config, log *logging.Logger) (*transport.UDPTransport, *transport.UDPTransport, error) {
	udp, err := transport.Listen(ctx, transport.Config{
		Name:            "primary",
		Port:            cfg.LIFX.BindPort,
		DestinationPort: cfg.LIFX.DevicePort,
		ReconnectDelay:  cfg.GetReconnectDelay(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("binding UDP socket: %w", err)
	}
	udp.SetLogger(log)
	log.Info("UDP socket bound", "port", udp.LocalPort())

	if !cfg.LIFX.EnableLegacy {
		return udp, nil, nil
	}

	legacy, err := transport.Listen(ctx, transport.Config{
		Name:            "legacy",
		Port:            cfg.LIFX.DevicePort,
		DestinationPort: cfg.LIFX.DevicePort,
		ReuseAddress:    true,
		ReconnectDelay:  cfg.GetReconnectDelay(),
	})
	if err != nil {
		udp.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("binding legacy UDP socket: %w", err)
	}
	legacy.SetLogger(log)
	log.Info("legacy UDP socket bound", "port", cfg.LIFX.DevicePort)
	return udp, legacy, nil
}
