package port

import (
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
)

type OptimizationTrigger interface {
	RequestOptimization(reason string)
}

type TelemetryReader interface {
	Telemetry() domain.Telemetry
}
