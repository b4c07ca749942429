package actorutil

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an MQTT command to a plan executor request.
// Unknown entities return a nil request and no error.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.PlanExecutorRequest, error) {
	switch {
	case cmd.Command == mqtt.COMMAND_SWITCH && cmd.DeviceId == domain.SWITCH_ID_AUTOMATIC_CONTROL:
		return domain.SetAutomaticControlRequest{
			Enabled: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case cmd.Command == mqtt.COMMAND_BUTTON && cmd.DeviceId == domain.BUTTON_ID_OPTIMIZE:
		return domain.RequestOptimization{
			Reason: "mqtt button",
		}, nil
	case cmd.Command == mqtt.COMMAND_NUMBER && cmd.DeviceId == domain.INPUT_NUMBER_ID_CHARGE_HOURS_TARGET:
		hours, err := parseHourTarget(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetHourTargetsRequest{ChargeHours: &hours}, nil
	case cmd.Command == mqtt.COMMAND_NUMBER && cmd.DeviceId == domain.INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET:
		hours, err := parseHourTarget(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetHourTargetsRequest{DischargeHours: &hours}, nil
	}
	return nil, nil
}

// HA number entities send floats, e.g. "3.0"
func parseHourTarget(payload string) (int, error) {
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number payload %q", mqtt.ErrInvalidCommand, payload)
	}
	if value < 0 || value > domain.HOURS_PER_DAY || value != math.Trunc(value) {
		return 0, fmt.Errorf("%w: hour target %v out of range", mqtt.ErrInvalidCommand, value)
	}
	return int(value), nil
}
