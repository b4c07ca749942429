package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/spotcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	. "github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	CHILD_HEALTH_TIMEOUT   = 500 * time.Millisecond
	HEALTH_CHECK_DEADLINE  = 1 * time.Second
	STATE_MASTER_STARTING  = "starting"
	STATE_MASTER_DEFAULT   = "default"
	STATE_MASTER_HEALTHCHK = "healthcheck"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type StorageActorProvider func() *adactor.StorageActor

type PlanExecutorProvider func(storageActor *actor.PID, eventStream *eventstream.EventStream) *PlanExecutorActor

// MasterOfPuppetsActor owns the actor tree. It spawns storage, mqtt, the plan executor and
// optionally HA discovery, aggregates their health and routes commands to the executor.
type MasterOfPuppetsActor struct {
	ActorWithStates
	config config.Config
	stash  *Stash

	eventStream          *eventstream.EventStream
	storageActor         *actor.PID
	mqttActor            *actor.PID
	planExecutorActor    *actor.PID
	storageActorProvider StorageActorProvider
	mqttActorProvider    MQTTActorProvider
	planExecutorProvider PlanExecutorProvider
	logger               *zap.Logger
}

func NewMasterOfPuppetsActor(config config.Config, eventStream *eventstream.EventStream, storageActorProvider StorageActorProvider,
	mqttActorProvider MQTTActorProvider, planExecutorProvider PlanExecutorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:               config,
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          eventStream,
		storageActorProvider: storageActorProvider,
		mqttActorProvider:    mqttActorProvider,
		planExecutorProvider: planExecutorProvider,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(MasterStartingState{actor: act})
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state: spawn children, stash everything else

type MasterStartingState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterStartingState) Name() string {
	return STATE_MASTER_STARTING
}

func (state MasterStartingState) Receive(ctx actor.Context) {
	master := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		master.logger.Debug("master@starting started")
		if err := master.spawnChildren(ctx); err != nil {
			panic(err)
		}
		master.Become(MasterDefaultState{actor: master})
		master.stash.UnstashAll(ctx)
	default:
		master.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		master.stash.Stash(ctx, msg)
	}
}

// Default state

type MasterDefaultState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterDefaultState) Name() string {
	return STATE_MASTER_DEFAULT
}

func (state MasterDefaultState) Receive(ctx actor.Context) {
	master := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		master.logger.Debug("master@default ActorHealthRequest")
		check := newHealthCheck(ctx.Sender(), domain.ACTOR_ID_STORAGE, domain.ACTOR_ID_MQTT, domain.ACTOR_ID_PLAN_EXECUTOR)
		master.askHealth(ctx, domain.ACTOR_ID_STORAGE, master.storageActor)
		master.askHealth(ctx, domain.ACTOR_ID_MQTT, master.mqttActor)
		master.askHealth(ctx, domain.ACTOR_ID_PLAN_EXECUTOR, master.planExecutorActor)
		ctx.SetReceiveTimeout(HEALTH_CHECK_DEADLINE)
		master.BecomeStacked(MasterHealthCheckState{actor: master, check: check})
	case adactor.ParsedCommand:
		master.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
		if err != nil {
			master.logger.Warn("master@default invalid command", zap.Error(err))
		} else if cmd != nil {
			ctx.Send(master.planExecutorActor, cmd)
		}
	case domain.PlanExecutorRequest:
		// keep the original sender so the executor responds to it
		master.logger.Debug("master@default PlanExecutorRequest", zap.String("type", msg.PlanExecutorCommand()))
		ctx.Forward(master.planExecutorActor)
	case *actor.Terminated:
		if msg.Who.Id == master.childId(domain.ACTOR_ID_STORAGE) {
			master.logger.Error("master@default storage terminated")
			panic(errors.New("storage terminated"))
		}
	default:
		master.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// HealthCheck state: collect child health responses until all arrived or the deadline passes

type MasterHealthCheckState struct {
	ActorState
	actor *MasterOfPuppetsActor
	check *healthCheck
}

func (state MasterHealthCheckState) Name() string {
	return STATE_MASTER_HEALTHCHK
}

func (state MasterHealthCheckState) Receive(ctx actor.Context) {
	master := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		master.logger.Warn("master@healthcheck deadline reached", zap.Strings("missing", state.check.missing()))
		master.finishHealthCheck(ctx, state.check)
	case domain.ActorHealthResponse:
		master.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id),
			zap.Bool("healthy", msg.Healthy), zap.String("state", msg.State))
		state.check.record(msg)
		if state.check.complete() {
			master.finishHealthCheck(ctx, state.check)
		}
	default:
		master.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		master.stash.Stash(ctx, msg)
	}
}

func (master *MasterOfPuppetsActor) askHealth(ctx actor.Context, id string, pid *actor.PID) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, CHILD_HEALTH_TIMEOUT), func(err error) any {
		return domain.ActorHealthResponse{Id: id, Healthy: false}
	})
}

func (master *MasterOfPuppetsActor) finishHealthCheck(ctx actor.Context, check *healthCheck) {
	ctx.SetReceiveTimeout(0)
	master.UnbecomeStacked()
	if check.respondTo != nil {
		ctx.Send(check.respondTo, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MASTER,
			Healthy: check.healthy(),
			State:   master.StateName(),
		})
	}
	master.stash.UnstashAll(ctx)
}

func (master *MasterOfPuppetsActor) childId(name string) string {
	return fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, name)
}

// spawnChildren starts storage first: the executor and HA discovery need its PID.
func (master *MasterOfPuppetsActor) spawnChildren(ctx actor.Context) error {
	var err error
	backoff := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	master.storageActor, err = spawnChild(ctx, domain.ACTOR_ID_STORAGE, backoff, func() actor.Actor {
		return master.storageActorProvider()
	})
	if err != nil {
		return err
	}

	master.mqttActor, err = spawnChild(ctx, domain.ACTOR_ID_MQTT, backoff, func() actor.Actor {
		return master.mqttActorProvider(master.eventStream)
	})
	if err != nil {
		return err
	}

	master.planExecutorActor, err = spawnChild(ctx, domain.ACTOR_ID_PLAN_EXECUTOR,
		actor.NewOneForOneStrategy(10, 1*time.Minute, master.restartDecider(domain.ACTOR_ID_PLAN_EXECUTOR)),
		func() actor.Actor {
			return master.planExecutorProvider(master.storageActor, master.eventStream)
		})
	if err != nil {
		return err
	}

	if master.config.MQTT.HADiscoveryEnable {
		_, err = spawnChild(ctx, domain.ACTOR_ID_HA_DISCOVERY,
			actor.NewOneForOneStrategy(1, 10*time.Second, master.restartDecider(domain.ACTOR_ID_HA_DISCOVERY)),
			func() actor.Actor {
				return NewHADiscoveryActor(&master.config, master.storageActor, master.mqttActor, master.logger)
			})
	}
	return err
}

func (master *MasterOfPuppetsActor) restartDecider(child string) actor.DeciderFunc {
	return func(reason interface{}) actor.Directive {
		master.logger.Warn("master: restarting child", zap.String("child", child), zap.Any("reason", reason))
		return actor.RestartDirective
	}
}

func spawnChild(ctx actor.Context, name string, supervisor actor.SupervisorStrategy, producer actor.Producer) (*actor.PID, error) {
	return ctx.SpawnNamed(actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor)), name)
}

// healthCheck aggregates the responses of one health request round.
type healthCheck struct {
	respondTo *actor.PID
	pending   map[string]bool
	unhealthy []string
}

func newHealthCheck(respondTo *actor.PID, children ...string) *healthCheck {
	pending := make(map[string]bool, len(children))
	for _, c := range children {
		pending[c] = true
	}
	return &healthCheck{respondTo: respondTo, pending: pending}
}

func (h *healthCheck) record(resp domain.ActorHealthResponse) {
	if !h.pending[resp.Id] {
		return
	}
	delete(h.pending, resp.Id)
	if !resp.Healthy {
		h.unhealthy = append(h.unhealthy, resp.Id)
	}
}

func (h *healthCheck) complete() bool {
	return len(h.pending) == 0
}

func (h *healthCheck) healthy() bool {
	return h.complete() && len(h.unhealthy) == 0
}

func (h *healthCheck) missing() []string {
	var ids []string
	for id := range h.pending {
		ids = append(ids, id)
	}
	return ids
}
