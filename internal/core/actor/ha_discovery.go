package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	STATE_HAD_WAITING_HEALTHY = "waiting_healthy"
	STATE_HAD_PUBLISHING      = "publishing"
	STATE_HAD_DONE            = "done"

	HAD_HEALTH_TIMEOUT  = 2 * time.Second
	HAD_PUBLISH_TIMEOUT = 5 * time.Second
)

// HADiscoveryActor publishes the Home Assistant discovery payloads once the storage and MQTT actors are up.
type HADiscoveryActor struct {
	actorutil.ActorWithStates
	config       *config.Config
	stash        *actorutil.Stash
	storageActor *actor.PID
	mqttActor    *actor.PID
	logger       *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, storageActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:       config,
		storageActor: storageActor,
		mqttActor:    mqttActor,
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
		ActorWithStates: actorutil.ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(HADWaitingHealthyState{
		actor: act,
		check: newHealthCheck(nil, domain.ACTOR_ID_STORAGE, domain.ACTOR_ID_MQTT),
	})
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// WaitingHealthy state: discovery is only published when storage and mqtt are both up

type HADWaitingHealthyState struct {
	actorutil.ActorState
	actor *HADiscoveryActor
	check *healthCheck
}

func (state HADWaitingHealthyState) Name() string {
	return STATE_HAD_WAITING_HEALTHY
}

func (state HADWaitingHealthyState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		act.logger.Debug("hadiscovery@waiting_healthy started")
		act.askHealth(ctx, domain.ACTOR_ID_STORAGE, act.storageActor)
		act.askHealth(ctx, domain.ACTOR_ID_MQTT, act.mqttActor)
	case *actor.Restarting:
	case domain.ActorHealthResponse:
		act.logger.Debug("hadiscovery@waiting_healthy ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.check.record(msg)
		if !state.check.complete() {
			return
		}
		if !state.check.healthy() {
			// the supervisor restarts us and the check starts over
			panic(errors.New("mqtt or storage actor not healthy"))
		}
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(act.mqttActor, act.discoveryRequest(), HAD_PUBLISH_TIMEOUT), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ResponseError(err),
			}
		})
		act.Become(HADPublishingState{actor: act})
		act.stash.UnstashAll(ctx)
	default:
		act.logger.Debug("hadiscovery@waiting_healthy stash", zap.String("type", fmt.Sprintf("%T", msg)))
		act.stash.Stash(ctx, msg)
	}
}

// Publishing state

type HADPublishingState struct {
	actorutil.ActorState
	actor *HADiscoveryActor
}

func (state HADPublishingState) Name() string {
	return STATE_HAD_PUBLISHING
}

func (state HADPublishingState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		act.logger.Info("hadiscovery@publishing discovery published")
		act.Become(HADDoneState{actor: act})
	case domain.ActorHealthRequest:
		act.respondHealth(ctx)
	default:
		act.logger.Debug("hadiscovery@publishing recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Done state

type HADDoneState struct {
	actorutil.ActorState
	actor *HADiscoveryActor
}

func (state HADDoneState) Name() string {
	return STATE_HAD_DONE
}

func (state HADDoneState) Receive(ctx actor.Context) {
	if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
		state.actor.respondHealth(ctx)
	}
}

func (state *HADiscoveryActor) askHealth(ctx actor.Context, id string, pid *actor.PID) {
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, HAD_HEALTH_TIMEOUT), func(err error) any {
		return domain.ActorHealthResponse{Id: id, Healthy: false}
	})
}

func (state *HADiscoveryActor) respondHealth(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_HA_DISCOVERY,
		Healthy: true,
		State:   state.StateName(),
	})
}

func (state *HADiscoveryActor) discoveryRequest() domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	plannerDevice := domain.PlannerDevice(bridgeDevice)
	plannerRef := domain.IdDevice(plannerDevice)

	sensors := domain.BridgeSensors(bridgeDevice)
	for i, sensor := range domain.PlannerSensors(plannerDevice, state.config.Planner.Currency) {
		// only the first entity carries the full device description
		if i > 0 {
			sensor.Device = plannerRef
		}
		sensors = append(sensors, sensor)
	}

	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     domain.PlannerSwitches(plannerRef),
		Buttons:      domain.PlannerButtons(plannerRef),
		InputNumbers: domain.PlannerInputNumbers(plannerRef, state.config.Battery),
	}
}
