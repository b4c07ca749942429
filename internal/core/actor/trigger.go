package actor

import (
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActorOptimizationTrigger sends optimization requests into the actor system. Safe for concurrent use.
type ActorOptimizationTrigger struct {
	root   *actor.RootContext
	target *actor.PID
	logger *zap.Logger
}

func NewActorOptimizationTrigger(root *actor.RootContext, target *actor.PID, logger *zap.Logger) *ActorOptimizationTrigger {
	return &ActorOptimizationTrigger{
		root:   root,
		target: target,
		logger: logger.With(zap.String("component", "trigger")),
	}
}

func (t *ActorOptimizationTrigger) RequestOptimization(reason string) {
	runId := uuid.NewString()
	t.logger.Info("trigger: optimization requested", zap.String("reason", reason), zap.String("run_id", runId))
	t.root.Send(t.target, domain.RequestOptimization{
		Reason: reason,
		RunId:  runId,
	})
}

var _ port.OptimizationTrigger = (*ActorOptimizationTrigger)(nil)
