package util

import (
	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "spotcharge",
			HADiscoveryTopic: "homeassistant",
		},
		Battery: domain.DefaultBatteryModel(),
		Storage: config.StorageConfig{
			Backend:              config.STORAGE_BACKEND_SUNSPEC,
			ActuatorRetries:      2,
			CommandTimeoutMillis: 1000,
		},
		SunSpecModbusTcp: config.SunSpecModbusTCPConfig{
			Host:   "-.-.-.-",
			Port:   502,
			UnitId: 1,
		},
		HomeAssistant: config.HomeAssistantConfig{
			URL:                  "http://localhost:8123",
			PriceEntity:          "sensor.stromligning_current_price_vat",
			SocEntity:            "sensor.battery_state_of_capacity",
			ForcibleDurationMins: 60,
			RequestTimeoutMillis: 1000,
		},
		Prices: config.PriceConfig{
			Source: config.PRICE_SOURCE_FILE,
		},
		Planner: config.PlannerConfig{
			AutomaticControl:          true,
			PricePublicationCron:      "0 15 13 * * *",
			OptimizationTimeoutMillis: 2000,
			Currency:                  "DKK",
		},
		Port: 8080,
	}
}
