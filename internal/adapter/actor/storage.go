package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// StorageActor serializes access to the battery backend. Every call runs as a background task
// with a timeout while the actor stashes other requests.
type StorageActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	actuator  port.Actuator
	telemetry port.BatteryTelemetry
	timeout   time.Duration
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewStorageActor(actuator port.Actuator, telemetry port.BatteryTelemetry, timeout time.Duration, logger *zap.Logger) *StorageActor {
	act := &StorageActor{
		actuator:  actuator,
		telemetry: telemetry,
		timeout:   timeout,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_STORAGE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *StorageActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StorageActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("storage@starting started")
		for _, c := range state.connectors() {
			if err := c.Open(); err != nil {
				// supervisor restarts with backoff
				panic(err)
			}
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.closeConnectors()
	default:
		state.logger.Debug("storage@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StorageActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("storage@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STORAGE,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetStorageStateRequest:
		state.logger.Debug("storage@default: GetStorageStateRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getStorageState),
			mapTaskResult[domain.GetStorageStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetStorageStateResponse{
					ActorResponseMixIn: domain.ResponseError(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingStorage)
	case domain.SetBatteryModeRequest:
		state.logger.Debug("storage@default: SetBatteryModeRequest", zap.Int("hour", msg.Hour), zap.Stringer("action", msg.Action))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetBatteryModeResponse, error) {
			return state.setBatteryMode(msg)
		}), mapTaskResult[domain.SetBatteryModeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetBatteryModeResponse{
					ActorResponseMixIn: domain.ResponseError(err),
					CommandId:          msg.CommandId,
					Hour:               msg.Hour,
					Action:             msg.Action,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingStorage)
	case *actor.Stopping:
		state.closeConnectors()
	default:
		state.logger.Debug("storage@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *StorageActor) WaitingStorage(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("storage@WaitingStorage backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.ActorResponse); ok && resp.HasResponseError() {
			state.logger.Error("storage@WaitingStorage: backend error", zap.Error(resp.GetResponseError()))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STORAGE,
			Healthy: true,
			State:   "busy",
		})
	case *actor.Stopping:
		state.closeConnectors()
	default:
		state.logger.Debug("storage@WaitingStorage stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *StorageActor) getStorageState() (*domain.GetStorageStateResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	soc, err := a.telemetry.StateOfCharge(ctx)
	if err != nil {
		return nil, fmt.Errorf("read soc: %w", err)
	}
	return &domain.GetStorageStateResponse{
		StateOfChargePct: soc,
	}, nil
}

func (a *StorageActor) setBatteryMode(req domain.SetBatteryModeRequest) (*domain.SetBatteryModeResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	var err error
	switch req.Action {
	case domain.ActionCharge:
		err = a.actuator.SetForceCharge(ctx, req.PowerW)
	case domain.ActionDischarge:
		err = a.actuator.SetForceDischarge(ctx, req.PowerW)
	default:
		err = a.actuator.ClearOverride(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &domain.SetBatteryModeResponse{
		CommandId: req.CommandId,
		Hour:      req.Hour,
		Action:    req.Action,
	}, nil
}

// connectors returns the distinct backends that need Open/Close.
func (a *StorageActor) connectors() []port.Connector {
	var result []port.Connector
	if c, ok := a.actuator.(port.Connector); ok {
		result = append(result, c)
	}
	if c, ok := a.telemetry.(port.Connector); ok && any(a.telemetry) != any(a.actuator) {
		result = append(result, c)
	}
	return result
}

func (a *StorageActor) closeConnectors() {
	for _, c := range a.connectors() {
		if err := c.Close(); err != nil {
			a.logger.Warn("storage: close backend", zap.Error(err))
		}
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
