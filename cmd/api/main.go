package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/spotcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/spotcharge2mqtt/internal/adapter/battery"
	"github.com/berfenger/spotcharge2mqtt/internal/adapter/homeassistant"
	"github.com/berfenger/spotcharge2mqtt/internal/adapter/pricefile"
	"github.com/berfenger/spotcharge2mqtt/internal/adapter/scheduler"
	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/actor"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/internal/core/service"
	"github.com/berfenger/spotcharge2mqtt/internal/server"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"
	"github.com/berfenger/spotcharge2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// storage backend and price source
	actuator, telemetry, err := storageBackend(cfg, logger)
	if err != nil {
		logger.Fatal("storage backend", zap.Error(err))
	}
	prices, err := priceProvider(cfg, logger)
	if err != nil {
		logger.Fatal("price source", zap.Error(err))
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	store := service.NewPlanStore()
	planner := service.NewGreedyPlanner(logger).WithProfitGuard(cfg.Planner.ProfitabilityGuard)

	storageProv := func() *adactor.StorageActor {
		return adactor.NewStorageActor(actuator, telemetry, millis(cfg.Storage.CommandTimeoutMillis), logger)
	}
	mqttProv := func(stream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, stream, logger)
	}
	executorProv := func(storageActor *pactor.PID, stream *eventstream.EventStream) *actor.PlanExecutorActor {
		return actor.NewPlanExecutorActor(cfg, storageActor, store, planner, prices, stream, logger, nil).
			WithExpiringCommands(port.OverridesExpire(actuator))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, as.EventStream, storageProv, mqttProv, executorProv, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Fatal("spawn master", zap.Error(err))
	}

	trigger := actor.NewActorOptimizationTrigger(ctx, pid, logger)

	// cron and price watch triggers
	sched := scheduler.NewTriggerScheduler(trigger, prices, cfg.Planner.PricePublicationCron,
		time.Duration(cfg.Planner.PriceWatchIntervalMinutes)*time.Minute, logger)
	if err := sched.Start(context.Background()); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	hub := server.NewHub(store, logger)
	hub.Subscribe(as.EventStream)

	apiServer := server.NewServer(*cfg, ctx, pid, store, trigger, hub, logger)
	done := make(chan bool, 1)

	go gracefulShutdown(apiServer, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	<-done
	log.Println("Graceful shutdown complete.")

	sched.Stop()
	hub.Close()
	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SPOTCHARGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SPOTCHARGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("spotcharge")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Battery.Validate(); err != nil {
		return nil, fmt.Errorf("config param battery: %w", err)
	}
	if cfg.Storage.CommandTimeoutMillis < 500 {
		return nil, errors.New("config param storage.command_timeout_millis should be >= 500")
	}
	if cfg.Planner.OptimizationTimeoutMillis < 1000 {
		return nil, errors.New("config param planner.optimization_timeout_millis should be >= 1000")
	}
	switch cfg.Storage.Backend {
	case config.STORAGE_BACKEND_SUNSPEC:
		if cfg.SunSpecModbusTcp.Host == "" {
			return nil, errors.New("config param sunspec_modbus_tcp.host is required")
		}
		// commands are renewed at each hour boundary
		if cfg.SunSpecModbusTcp.RevertTimeoutSecs != 0 && cfg.SunSpecModbusTcp.RevertTimeoutSecs < 3600 {
			return nil, errors.New("config param sunspec_modbus_tcp.revert_timeout_secs should be 0 or >= 3600")
		}
	case config.STORAGE_BACKEND_HOMEASSISTANT:
		if cfg.HomeAssistant.BatteryDeviceId == "" || cfg.HomeAssistant.SocEntity == "" {
			return nil, errors.New("config params homeassistant.battery_device_id and homeassistant.soc_entity are required")
		}
		if cfg.HomeAssistant.ForcibleDurationMins < 60 {
			return nil, errors.New("config param homeassistant.forcible_duration_mins should be >= 60")
		}
	default:
		return nil, fmt.Errorf("config param storage.backend: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.Prices.Source {
	case config.PRICE_SOURCE_HOMEASSISTANT:
		if cfg.HomeAssistant.PriceEntity == "" {
			return nil, errors.New("config param homeassistant.price_entity is required")
		}
	case config.PRICE_SOURCE_FILE:
		if cfg.Prices.File == "" {
			return nil, errors.New("config param prices.file is required")
		}
	default:
		return nil, fmt.Errorf("config param prices.source: unknown source %q", cfg.Prices.Source)
	}

	return &cfg, nil
}

func storageBackend(cfg *config.Config, logger *zap.Logger) (port.Actuator, port.BatteryTelemetry, error) {
	switch cfg.Storage.Backend {
	case config.STORAGE_BACKEND_HOMEASSISTANT:
		client, err := homeassistant.NewClient(cfg.HomeAssistant, logger)
		if err != nil {
			return nil, nil, err
		}
		b, err := homeassistant.NewHuaweiBattery(client, cfg.HomeAssistant.BatteryDeviceId, cfg.HomeAssistant.SocEntity,
			cfg.HomeAssistant.ForcibleDurationMins, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	default:
		client, err := sunspec_modbus.NewStorageClient(cfg.SunSpecModbusTcp.Host, cfg.SunSpecModbusTcp.Port,
			uint8(cfg.SunSpecModbusTcp.UnitId), 1*time.Second, cfg.SunSpecModbusTcp.IgnoreFronius, logger)
		if err != nil {
			return nil, nil, err
		}
		b := battery.NewSunSpecBattery(client, cfg.SunSpecModbusTcp.RevertTimeoutSecs, cfg.Storage.ActuatorRetries, logger)
		return b, b, nil
	}
}

func priceProvider(cfg *config.Config, logger *zap.Logger) (port.PriceProvider, error) {
	switch cfg.Prices.Source {
	case config.PRICE_SOURCE_HOMEASSISTANT:
		client, err := homeassistant.NewClient(cfg.HomeAssistant, logger)
		if err != nil {
			return nil, err
		}
		return homeassistant.NewPriceSensor(client, cfg.HomeAssistant.PriceEntity, time.Now, logger), nil
	default:
		return pricefile.NewProvider(cfg.Prices.File, time.Now, logger), nil
	}
}

func millis(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "spotcharge")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")

	defaults := domain.DefaultBatteryModel()
	viper.SetDefault("battery.capacity_kwh", defaults.CapacityKWh)
	viper.SetDefault("battery.charge_power_w", defaults.ChargePowerW)
	viper.SetDefault("battery.max_discharge_power_w", defaults.MaxDischargePowerW)
	viper.SetDefault("battery.round_trip_efficiency_pct", defaults.RoundTripEfficiencyPct)
	viper.SetDefault("battery.min_soc_pct", defaults.MinSocPct)
	viper.SetDefault("battery.max_soc_pct", defaults.MaxSocPct)
	viper.SetDefault("battery.charge_hours_target", defaults.ChargeHoursTarget)
	viper.SetDefault("battery.discharge_hours_target", defaults.DischargeHoursTarget)

	viper.SetDefault("storage.backend", config.STORAGE_BACKEND_SUNSPEC)
	viper.SetDefault("storage.actuator_retries", 3)
	viper.SetDefault("storage.command_timeout_millis", 5000)
	viper.SetDefault("sunspec_modbus_tcp.port", 502)
	viper.SetDefault("sunspec_modbus_tcp.unit_id", 1)
	viper.SetDefault("sunspec_modbus_tcp.revert_timeout_secs", 0)

	viper.SetDefault("homeassistant.url", "http://homeassistant.local:8123")
	viper.SetDefault("homeassistant.forcible_duration_mins", 60)
	viper.SetDefault("homeassistant.request_timeout_millis", 5000)

	viper.SetDefault("prices.source", config.PRICE_SOURCE_HOMEASSISTANT)

	viper.SetDefault("planner.automatic_control", true)
	viper.SetDefault("planner.price_publication_cron", scheduler.DEFAULT_PRICE_PUBLICATION_CRON)
	viper.SetDefault("planner.price_watch_interval_minutes", 15)
	viper.SetDefault("planner.optimization_timeout_millis", 30000)
	viper.SetDefault("planner.currency", "DKK")
	viper.SetDefault("planner.profitability_guard", true)

	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.HomeAssistant.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
