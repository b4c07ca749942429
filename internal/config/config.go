package config

import (
	"errors"
	"regexp"
	"strings"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

const (
	STORAGE_BACKEND_SUNSPEC       = "sunspec"
	STORAGE_BACKEND_HOMEASSISTANT = "homeassistant"
	PRICE_SOURCE_HOMEASSISTANT    = "homeassistant"
	PRICE_SOURCE_FILE             = "file"
)

type Config struct {
	LogLevel         zapcore.Level
	MQTT             MQTTConfig             `mapstructure:"mqtt"`
	Battery          domain.BatteryModel    `mapstructure:"battery"`
	Storage          StorageConfig          `mapstructure:"storage"`
	SunSpecModbusTcp SunSpecModbusTCPConfig `mapstructure:"sunspec_modbus_tcp"`
	HomeAssistant    HomeAssistantConfig    `mapstructure:"homeassistant"`
	Prices           PriceConfig            `mapstructure:"prices"`
	Planner          PlannerConfig          `mapstructure:"planner"`
	Port             uint                   `mapstructure:"port"`
	HttpLog          bool                   `mapstructure:"http_log"`
}

// StorageConfig selects how the battery is commanded and how its SoC is read.
type StorageConfig struct {
	Backend              string `mapstructure:"backend"`
	ActuatorRetries      uint64 `mapstructure:"actuator_retries"`
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
}

type SunSpecModbusTCPConfig struct {
	Host              string
	Port              uint
	UnitId            uint   `mapstructure:"unit_id"`
	IgnoreFronius     bool   `mapstructure:"ignore_fronius"`
	RevertTimeoutSecs uint32 `mapstructure:"revert_timeout_secs"`
}

type HomeAssistantConfig struct {
	URL                  string `mapstructure:"url"`
	Token                string `mapstructure:"token"`
	PriceEntity          string `mapstructure:"price_entity"`
	SocEntity            string `mapstructure:"soc_entity"`
	BatteryDeviceId      string `mapstructure:"battery_device_id"`
	ForcibleDurationMins uint32 `mapstructure:"forcible_duration_mins"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

type PriceConfig struct {
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

type PlannerConfig struct {
	AutomaticControl          bool   `mapstructure:"automatic_control"`
	PricePublicationCron      string `mapstructure:"price_publication_cron"`
	PriceWatchIntervalMinutes uint32 `mapstructure:"price_watch_interval_minutes"`
	OptimizationTimeoutMillis uint32 `mapstructure:"optimization_timeout_millis"`
	Currency                  string `mapstructure:"currency"`
	ProfitabilityGuard        bool   `mapstructure:"profitability_guard"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
