// Rover Core - robot control and orchestration
//
// This is the main entry point for the robot brain. It talks to the motor
// controller over a serial link, runs the user's scripts, accepts remote
// control input and uploads over MQTT, and serves a diagnostics API.
//
// The process exit code tells the launcher what to do next:
//
//	0  clean shutdown
//	1  error
//	2  stored package failed its integrity check
//	3  firmware or framework update requested
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/rover-core/migrations"

	"github.com/nerrad567/rover-core/internal/api"
	"github.com/nerrad567/rover-core/internal/infrastructure/config"
	"github.com/nerrad567/rover-core/internal/infrastructure/database"
	"github.com/nerrad567/rover-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/rover-core/internal/infrastructure/logging"
	"github.com/nerrad567/rover-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rover-core/internal/link"
	"github.com/nerrad567/rover-core/internal/longmessage"
	"github.com/nerrad567/rover-core/internal/mcu"
	"github.com/nerrad567/rover-core/internal/robot"
	"github.com/nerrad567/rover-core/internal/storage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// eventQueueSize bounds the events waiting for the outbound sinks.
const eventQueueSize = 256

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code, err := run(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == robot.ExitOK {
			code = robot.ExitError
		}
	}
	os.Exit(int(code))
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - robot.ExitCode: The exit code requested by the robot
//   - error: Startup failure, or nil
func run(ctx context.Context) (robot.ExitCode, error) {
	log := logging.Default()
	log.Info("starting Rover Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return robot.ExitError, fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best-effort close of the log file on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"robot", cfg.Robot.Name,
	)

	// Long-message storage
	durable, closeDurable, err := openDurableStorage(ctx, cfg, log)
	if err != nil {
		return robot.ExitError, err
	}
	defer closeDurable()

	lmHandler := longmessage.NewHandler(longmessage.NewStore(durable, storage.NewMemoryStorage()))
	lmHandler.SetLogger(log.Component("longmessage"))
	protocol := longmessage.NewProtocol(lmHandler)

	// Motor controller
	port, err := mcu.OpenSerial(mcu.SerialConfig{
		Device:      cfg.MCU.Port,
		BaudRate:    cfg.MCU.Baud,
		ReadTimeout: time.Duration(cfg.MCU.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return robot.ExitError, fmt.Errorf("opening mcu link: %w", err)
	}
	defer func() {
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing mcu link", "error", closeErr)
		}
	}()
	log.Info("mcu link open", "port", cfg.MCU.Port, "baud", cfg.MCU.Baud)

	control := mcu.NewControl(mcu.NewTransport(port, time.Duration(cfg.MCU.BusyTimeout)*time.Second))
	control.SetLogger(log.Component("mcu"))

	defaultConfig, err := loadDefaultConfig(cfg.Robot.DefaultConfigFile)
	if err != nil {
		return robot.ExitError, err
	}

	sound := robot.NewSound(robot.SoundConfig{
		Player:        cfg.Sound.Player,
		Mixer:         cfg.Sound.Mixer,
		Tunes:         robot.DefaultTunes(cfg.Sound.AssetsDir),
		MaxParallel:   cfg.Sound.MaxParallel,
		DefaultVolume: cfg.Sound.DefaultVolume,
	})
	sound.SetLogger(log.Component("sound"))

	manager := robot.NewManager(robot.Options{
		Hardware:          control,
		Sound:             sound,
		SoftwareVersion:   version,
		DefaultConfig:     defaultConfig,
		UpdateInterval:    cfg.UpdateInterval(),
		PingRetry:         cfg.PingRetryDelay(),
		FirstFrameTimeout: cfg.FirstFrameTimeout(),
		HeartbeatTimeout:  cfg.HeartbeatTimeout(),
		Logger:            log.Component("robot"),
	})
	manager.BindLongMessages(lmHandler)

	// Outbound sinks
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	events := newDispatcher(eventQueueSize, log)
	go events.run(ctx)
	fan := &fanout{hub: hub, log: log}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Robot.Name)
		if err != nil {
			// The robot stays usable without the link; only remote control
			// and uploads are unavailable.
			log.Error("MQTT unavailable, running without link", "error", err)
			mqttClient = nil
		} else {
			mqttClient.SetLogger(log.Component("mqtt"))
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
	} else {
		log.Info("MQTT disabled")
	}

	var bridge *link.Bridge
	if mqttClient != nil {
		bridge = link.NewBridge(mqttClient, mqttClient.Topics(), manager, protocol)
		bridge.SetLogger(log.Component("link"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
			bridge.LinkLost()
		})
		fan.link = bridge
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, cfg.Robot.Name)
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, telemetry disabled", "error", influxErr)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			fan.recorder = influxClient
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	fan.subscribe(manager, events)

	// Diagnostics API
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log.Component("api"),
			Robot:        manager,
			LongMessages: protocol,
			ExternalHub:  hub,
			Version:      version,
		}
		if mqttClient != nil {
			deps.Link = mqttClient
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return robot.ExitError, fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = server.Start(ctx); apiErr != nil {
			return robot.ExitError, fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Robot
	log.Info("waiting for mcu")
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown before the robot started")
			return robot.ExitOK, nil
		}
		return robot.ExitError, fmt.Errorf("starting robot: %w", err)
	}
	defer manager.Stop()

	if bridge != nil {
		if err := bridge.Start(ctx); err != nil {
			log.Error("starting link failed", "error", err)
		} else {
			defer bridge.Stop()
		}
	}
	fan.publishStatus(manager)

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		manager.Stop()
	case <-manager.Done():
	}

	code := manager.ExitCode()
	log.Info("Rover Core stopped", "exit_code", int(code))
	return code, nil
}

// getConfigPath returns the configuration file path.
// Uses ROVER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROVER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDurableStorage opens the backend for firmware and framework packages.
//
// Returns:
//   - storage.Storage: The backend selected by storage.durable_backend
//   - func(): Releases the backend
//   - error: If the backend cannot be opened
func openDurableStorage(ctx context.Context, cfg *config.Config, log *logging.Logger) (storage.Storage, func(), error) {
	switch cfg.Storage.DurableBackend {
	case "sqlite":
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort on the error path
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("durable storage on database", "path", cfg.Database.Path)
		return storage.NewSQLiteStorage(db), func() {
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}, nil

	default:
		fs, err := storage.NewFileStorage(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage directory: %w", err)
		}
		log.Info("durable storage on disk", "dir", cfg.Storage.Dir)
		return fs, func() {}, nil
	}
}

// loadDefaultConfig reads the robot configuration applied when no user
// configuration is active. An empty path selects the built-in default.
func loadDefaultConfig(path string) (*robot.Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("reading default robot config: %w", err)
	}
	cfg, err := robot.ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing default robot config: %w", err)
	}
	return cfg, nil
}
