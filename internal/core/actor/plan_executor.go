package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/config"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/events"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/internal/core/service"
	. "github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// fire slightly after the boundary so now.Hour() is already the new hour
	HOUR_TICK_DELAY              = 500 * time.Millisecond
	COMMAND_RECEIVE_MARGIN       = 500 * time.Millisecond
	DEFAULT_COMMAND_TIMEOUT      = 10 * time.Second
	DEFAULT_OPTIMIZATION_TIMEOUT = 30 * time.Second
)

// PlanExecutorActor owns the current plan and the execution state. Optimizations, hour ticks and
// battery commands are serialized through its mailbox.
type PlanExecutorActor struct {
	ActorWithStates
	scheduler    *scheduler.TimerScheduler
	stash        *Stash
	storageActor *actor.PID
	eventStream  *eventstream.EventStream

	store     *service.PlanStore
	planner   port.Planner
	prices    port.PriceProvider
	battery   domain.BatteryModel
	execution domain.ExecutionState

	// last action the battery acknowledged; nil until the first command succeeds
	applied        *domain.Action
	appliedAt      time.Time
	pendingCommand *pendingCommand
	commandSeq     uint64
	cancelHourTick scheduler.CancelFunc

	// force commands lapse on the battery and have to be renewed every hour
	expiringCommands bool

	optimizationTimeout time.Duration
	commandTimeout      time.Duration
	clock               func() time.Time

	logger *zap.Logger
}

type pendingCommand struct {
	id      uint64
	hour    int
	action  domain.Action
	sentAt  time.Time
	replyTo *actor.PID
}

type hourTick struct {
}

type optimizationResult struct {
	RunId string
	Plan  *domain.Plan
	Err   error
}

func NewPlanExecutorActor(cfg *config.Config, storageActor *actor.PID, store *service.PlanStore, planner port.Planner,
	prices port.PriceProvider, eventStream *eventstream.EventStream, logger *zap.Logger, clock func() time.Time) *PlanExecutorActor {
	if clock == nil {
		clock = time.Now
	}
	act := &PlanExecutorActor{
		storageActor:        storageActor,
		eventStream:         eventStream,
		store:               store,
		planner:             planner,
		prices:              prices,
		battery:             cfg.Battery,
		execution:           domain.InitialExecutionState(cfg.Planner.AutomaticControl),
		stash:               &Stash{},
		optimizationTimeout: millisOrDefault(cfg.Planner.OptimizationTimeoutMillis, DEFAULT_OPTIMIZATION_TIMEOUT),
		commandTimeout:      millisOrDefault(cfg.Storage.CommandTimeoutMillis, DEFAULT_COMMAND_TIMEOUT),
		clock:               clock,
		logger:              ActorLogger(domain.ACTOR_ID_PLAN_EXECUTOR, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PEIdleState{
		actor: act,
	})
	return act
}

// WithExpiringCommands marks the actuator's charge and discharge commands as time limited, see
// port.OverridesExpire.
func (state *PlanExecutorActor) WithExpiringCommands(expiring bool) *PlanExecutorActor {
	state.expiringCommands = expiring
	return state
}

func (state *PlanExecutorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state: booted, no plan yet

type PEIdleState struct {
	ActorState
	actor *PlanExecutorActor
}

func (state PEIdleState) Name() string {
	return "idle"
}

func (state PEIdleState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("plan_executor@idle started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.armHourTimer(ctx)
		state.actor.publish()
		state.actor.publishHourTargets()
		ctx.Send(ctx.Self(), domain.RequestOptimization{Reason: "startup"})
	case *actor.Restarting:
	case hourTick:
		state.actor.armHourTimer(ctx)
	case domain.RequestOptimization:
		state.actor.becomeOptimizing(ctx, msg)
	case domain.SetAutomaticControlRequest:
		state.actor.setAutomaticControl(ctx, msg)
		state.actor.publish()
	case domain.ManualOverrideRequest:
		state.actor.manualOverride(ctx, msg)
	case domain.SetHourTargetsRequest:
		state.actor.setHourTargets(ctx, msg)
	case domain.SetBatteryModeResponse:
		if cmd, ok := state.actor.commandResult(ctx, msg); ok && msg.HasResponseError() {
			state.actor.becomeError(ctx, cmd.failure(msg.GetResponseError()))
		} else {
			state.actor.publish()
		}
	default:
		state.actor.logger.Debug("plan_executor@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Optimizing state: reading SOC, then fetching prices and planning in the background

type PEOptimizingState struct {
	ActorState
	actor      *PlanExecutorActor
	runId      string
	reason     string
	prevStatus domain.Status
	pending    bool
}

func (state PEOptimizingState) Name() string {
	return "optimizing"
}

func (state PEOptimizingState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetStorageStateResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("plan_executor@optimizing: GetStorageStateResponse error", zap.Error(msg.GetResponseError()))
			state.onFailure(ctx, fmt.Errorf("read battery soc: %w", msg.GetResponseError()))
			return
		}
		state.actor.logger.Debug("plan_executor@optimizing: GetStorageStateResponse", zap.Float64("soc", msg.StateOfChargePct))
		state.actor.eventStream.Publish(events.BatterySocUpdateEvent(msg.StateOfChargePct))
		state.runPlanner(ctx, msg.StateOfChargePct)
	case optimizationResult:
		if msg.RunId != state.runId {
			state.actor.logger.Debug("plan_executor@optimizing: ignoring stale result", zap.String("run", msg.RunId))
			return
		}
		if msg.Err != nil {
			state.onFailure(ctx, msg.Err)
		} else {
			state.onSuccess(ctx, msg.Plan)
		}
	case domain.RequestOptimization:
		state.actor.logger.Debug("plan_executor@optimizing: coalescing request", zap.String("reason", msg.Reason))
		state.pending = true
		state.actor.Become(state)
	case domain.SetAutomaticControlRequest:
		state.actor.setAutomaticControl(ctx, msg)
		state.actor.publish()
	case domain.SetBatteryModeResponse:
		// late response of a timed out command
		state.actor.logger.Debug("plan_executor@optimizing: ignoring SetBatteryModeResponse", zap.Uint64("command", msg.CommandId))
	default:
		state.actor.logger.Debug("plan_executor@optimizing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state PEOptimizingState) OnEnterAction(ctx actor.Context) PEOptimizingState {
	state.actor.execution.Status = domain.StatusOptimizing
	state.actor.execution.LastReason = state.reason
	state.actor.publish()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.storageActor,
		domain.GetStorageStateRequest{}, state.actor.commandTimeout+COMMAND_RECEIVE_MARGIN),
		func(err error) any {
			return domain.GetStorageStateResponse{
				ActorResponseMixIn: domain.ResponseError(err),
			}
		})
	return state
}

func (state PEOptimizingState) runPlanner(ctx actor.Context, socPct float64) {
	runId := state.runId
	prices := state.actor.prices
	planner := state.actor.planner
	battery := state.actor.battery
	timeout := state.actor.optimizationTimeout
	NewBackgroundTask(ctx, func() (*optimizationResult, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		series, err := prices.GetPrices(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("get prices: %w", err)
		}
		plan, err := planner.Plan(series, battery, socPct)
		if err != nil {
			return nil, err
		}
		return &optimizationResult{RunId: runId, Plan: plan}, nil
	}).Recover(func(err error) optimizationResult {
		return optimizationResult{RunId: runId, Err: err}
	}).WithTimeout(timeout).PipeTo(ctx.Self())
}

func (state PEOptimizingState) onSuccess(ctx actor.Context, plan *domain.Plan) {
	snapshot := state.actor.store.Install(plan, state.actor.clock())
	state.actor.logger.Info("plan_executor@optimizing: plan installed",
		zap.String("run", state.runId),
		zap.Uint64("generation", snapshot.Generation),
		zap.String("plan", plan.Codes()),
		zap.Float64("benefit", service.RoundMoney(plan.ExpectedBenefit())))
	state.actor.execution.LastError = ""
	state.actor.settle(ctx)
	state.finish(ctx)
}

func (state PEOptimizingState) onFailure(ctx actor.Context, err error) {
	_, hasPlan := state.actor.store.Current()
	var insufficient *domain.InsufficientDataError
	if errors.As(err, &insufficient) && hasPlan {
		state.actor.logger.Warn("plan_executor@optimizing: keeping previous plan", zap.Error(err))
		state.actor.execution.LastError = err.Error()
		if state.prevStatus == domain.StatusError {
			state.actor.Become(PEErrorState{actor: state.actor}.OnEnter(ctx))
		} else {
			state.actor.settle(ctx)
		}
	} else {
		state.actor.logger.Error("plan_executor@optimizing: optimization failed", zap.String("run", state.runId), zap.Error(err))
		state.actor.becomeError(ctx, err)
	}
	state.finish(ctx)
}

func (state PEOptimizingState) finish(ctx actor.Context) {
	if state.pending {
		ctx.Send(ctx.Self(), domain.RequestOptimization{Reason: "coalesced"})
	}
	state.actor.stash.UnstashAll(ctx)
}

// Ready state: plan installed, automatic control off

type PEReadyState struct {
	ActorState
	actor *PlanExecutorActor
}

func (state PEReadyState) Name() string {
	return "ready"
}

func (state PEReadyState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case hourTick:
		state.actor.logger.Debug("plan_executor@ready: hourTick")
		state.actor.armHourTimer(ctx)
		state.actor.onHour(ctx, false, true)
	case domain.RequestOptimization:
		state.actor.becomeOptimizing(ctx, msg)
	case domain.SetAutomaticControlRequest:
		if state.actor.setAutomaticControl(ctx, msg) && msg.Enabled {
			state.actor.becomeExecuting(ctx)
		} else {
			state.actor.publish()
		}
	case domain.ManualOverrideRequest:
		state.actor.manualOverride(ctx, msg)
	case domain.SetHourTargetsRequest:
		state.actor.setHourTargets(ctx, msg)
	case domain.SetBatteryModeResponse:
		if cmd, ok := state.actor.commandResult(ctx, msg); ok && msg.HasResponseError() {
			state.actor.becomeError(ctx, cmd.failure(msg.GetResponseError()))
		} else {
			state.actor.publish()
		}
	default:
		state.actor.logger.Debug("plan_executor@ready: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state PEReadyState) OnEnter(ctx actor.Context) PEReadyState {
	state.actor.execution.Status = domain.StatusReady
	state.actor.refreshDisplay()
	state.actor.publish()
	return state
}

// Executing state: plan installed, automatic control on

type PEExecutingState struct {
	ActorState
	actor *PlanExecutorActor
}

func (state PEExecutingState) Name() string {
	return "executing"
}

func (state PEExecutingState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case hourTick:
		state.actor.logger.Debug("plan_executor@executing: hourTick")
		state.actor.armHourTimer(ctx)
		state.actor.onHour(ctx, true, true)
	case domain.RequestOptimization:
		state.actor.becomeOptimizing(ctx, msg)
	case domain.SetAutomaticControlRequest:
		if state.actor.setAutomaticControl(ctx, msg) && !msg.Enabled {
			state.actor.Become(PEReadyState{actor: state.actor}.OnEnter(ctx))
		}
	case domain.ManualOverrideRequest:
		state.actor.manualOverride(ctx, msg)
	case domain.SetHourTargetsRequest:
		state.actor.setHourTargets(ctx, msg)
	case domain.SetBatteryModeResponse:
		cmd, ok := state.actor.commandResult(ctx, msg)
		if !ok {
			return
		}
		if msg.HasResponseError() {
			state.actor.becomeError(ctx, cmd.failure(msg.GetResponseError()))
		} else {
			state.actor.publish()
		}
	default:
		state.actor.logger.Debug("plan_executor@executing: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state PEExecutingState) OnEnter(ctx actor.Context) PEExecutingState {
	state.actor.execution.Status = domain.StatusExecuting
	return state
}

// Error state: last optimization or battery command failed

type PEErrorState struct {
	ActorState
	actor *PlanExecutorActor
}

func (state PEErrorState) Name() string {
	return "error"
}

func (state PEErrorState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, state.Name()) {
		return
	}
	switch msg := ctx.Message().(type) {
	case hourTick:
		state.actor.logger.Debug("plan_executor@error: hourTick")
		state.actor.armHourTimer(ctx)
		state.actor.onHour(ctx, state.actor.execution.AutomaticControl, true)
	case domain.RequestOptimization:
		state.actor.becomeOptimizing(ctx, msg)
	case domain.SetAutomaticControlRequest:
		if state.actor.setAutomaticControl(ctx, msg) && msg.Enabled {
			state.actor.onHour(ctx, true, false)
		} else {
			state.actor.publish()
		}
	case domain.ManualOverrideRequest:
		state.actor.manualOverride(ctx, msg)
	case domain.SetHourTargetsRequest:
		state.actor.setHourTargets(ctx, msg)
	case domain.SetBatteryModeResponse:
		cmd, ok := state.actor.commandResult(ctx, msg)
		if !ok {
			return
		}
		if msg.HasResponseError() {
			state.actor.execution.LastError = cmd.failure(msg.GetResponseError()).Error()
			state.actor.publish()
		} else if _, hasPlan := state.actor.store.Current(); hasPlan {
			state.actor.logger.Info("plan_executor@error: command succeeded, leaving error state")
			state.actor.execution.LastError = ""
			state.actor.settle(ctx)
		} else {
			state.actor.publish()
		}
	default:
		state.actor.logger.Debug("plan_executor@error: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state PEErrorState) OnEnter(ctx actor.Context) PEErrorState {
	state.actor.execution.Status = domain.StatusError
	state.actor.publish()
	return state
}

// Await battery command response state

type PEAwaitCommandResponseState struct {
	ActorState
	actor *PlanExecutorActor
}

func (state PEAwaitCommandResponseState) Name() string {
	return "awaitCommandResponse"
}

func (state PEAwaitCommandResponseState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx, state.Name())
	case domain.GetTelemetryRequest:
		ForRequest(msg).Respond(ctx, domain.GetTelemetryResponse{Telemetry: state.actor.store.Telemetry()})
	case domain.SetBatteryModeResponse:
		if state.actor.pendingCommand == nil || msg.CommandId != state.actor.pendingCommand.id {
			state.actor.logger.Debug("plan_executor@awaitCommandResponse: ignoring stale response", zap.Uint64("command", msg.CommandId))
			return
		}
		ctx.SetReceiveTimeout(0)
		ctx.RequestWithCustomSender(ctx.Self(), msg, ctx.Sender())
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Debug("plan_executor@awaitCommandResponse: ReceiveTimeout")
		cmd := state.actor.pendingCommand
		ctx.RequestWithCustomSender(ctx.Self(), domain.SetBatteryModeResponse{
			ActorResponseMixIn: domain.ResponseError(errors.New("receive timeout")),
			CommandId:          cmd.id,
			Hour:               cmd.hour,
			Action:             cmd.action,
		}, ctx.Sender())
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("plan_executor@awaitCommandResponse: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state PEAwaitCommandResponseState) OnEnterAction(ctx actor.Context, req domain.SetBatteryModeRequest) PEAwaitCommandResponseState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.storageActor, req, state.actor.commandTimeout+COMMAND_RECEIVE_MARGIN),
		func(err error) any {
			return domain.SetBatteryModeResponse{
				ActorResponseMixIn: domain.ResponseError(err),
				CommandId:          req.CommandId,
				Hour:               req.Hour,
				Action:             req.Action,
			}
		})
	ctx.SetReceiveTimeout(state.actor.commandTimeout + 2*COMMAND_RECEIVE_MARGIN)
	return state
}

// Transitions

func (state *PlanExecutorActor) becomeOptimizing(ctx actor.Context, req domain.RequestOptimization) {
	runId := req.RunId
	if runId == "" {
		runId = uuid.NewString()
	}
	state.logger.Info("plan_executor: optimization requested", zap.String("reason", req.Reason), zap.String("run", runId))
	state.Become(PEOptimizingState{
		actor:      state,
		runId:      runId,
		reason:     req.Reason,
		prevStatus: state.execution.Status,
	}.OnEnterAction(ctx))
}

// settle moves to Executing or Ready depending on automatic control.
func (state *PlanExecutorActor) settle(ctx actor.Context) {
	if state.execution.AutomaticControl {
		state.becomeExecuting(ctx)
	} else {
		state.Become(PEReadyState{actor: state}.OnEnter(ctx))
	}
}

func (state *PlanExecutorActor) becomeExecuting(ctx actor.Context) {
	state.Become(PEExecutingState{actor: state}.OnEnter(ctx))
	state.onHour(ctx, true, false)
}

func (state *PlanExecutorActor) becomeError(ctx actor.Context, err error) {
	state.execution.LastError = err.Error()
	state.Become(PEErrorState{actor: state}.OnEnter(ctx))
}

// Other actor function helpers

// receiveCommon handles the messages every non-stacked state answers the same way.
func (state *PlanExecutorActor) receiveCommon(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, stateName)
	case domain.GetTelemetryRequest:
		ForRequest(msg).Respond(ctx, domain.GetTelemetryResponse{Telemetry: state.store.Telemetry()})
	case *actor.Stopping:
		if state.cancelHourTick != nil {
			state.cancelHourTick()
		}
	default:
		return false
	}
	return true
}

func (state *PlanExecutorActor) respondHealth(ctx actor.Context, stateName string) {
	state.logger.Debug(fmt.Sprintf("plan_executor@%s: ActorHealthRequest", stateName))
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_PLAN_EXECUTOR,
		Healthy: true,
		State:   stateName,
	})
}

func (state *PlanExecutorActor) armHourTimer(ctx actor.Context) {
	if state.cancelHourTick != nil {
		state.cancelHourTick()
	}
	now := state.clock()
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	state.cancelHourTick = state.scheduler.RequestOnce(next.Sub(now)+HOUR_TICK_DELAY, ctx.Self(), hourTick{})
}

// onHour looks up the current hour of the plan. With execute set, the planned action is sent to
// the battery unless it is the one already applied and still in force. A plan for another day
// never commands the battery; on hour ticks it triggers a new optimization.
func (state *PlanExecutorActor) onHour(ctx actor.Context, execute bool, fromTick bool) {
	now := state.clock()
	snapshot, ok := state.store.Current()
	if !ok || !snapshot.Plan.IsFor(now) {
		if fromTick {
			state.logger.Info("plan_executor: no plan for today, requesting optimization")
			ctx.Send(ctx.Self(), domain.RequestOptimization{Reason: "stale plan"})
		}
		state.publish()
		return
	}
	plan := snapshot.Plan
	hour := now.In(plan.Day().Location()).Hour()
	desired := plan.ActionAt(hour)
	state.setNextAction(plan, hour, desired)
	if !execute {
		state.execution.CurrentAction = desired.BatteryMode()
		state.publish()
		return
	}
	if state.applied != nil && *state.applied == desired && !state.renewDue(desired, now) {
		state.execution.CurrentAction = desired.BatteryMode()
		state.publish()
		return
	}
	state.publish()
	state.sendCommand(ctx, hour, desired, nil)
}

// renewDue reports whether an applied action has to be sent again. Expiring commands only hold
// for the hour they were sent in.
func (state *PlanExecutorActor) renewDue(action domain.Action, now time.Time) bool {
	if !state.expiringCommands || action == domain.ActionIdle {
		return false
	}
	hourStart := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return state.appliedAt.Before(hourStart)
}

// refreshDisplay updates current and next action from the plan without commanding anything.
func (state *PlanExecutorActor) refreshDisplay() {
	snapshot, ok := state.store.Current()
	now := state.clock()
	if !ok || !snapshot.Plan.IsFor(now) {
		return
	}
	hour := now.In(snapshot.Plan.Day().Location()).Hour()
	desired := snapshot.Plan.ActionAt(hour)
	state.execution.CurrentAction = desired.BatteryMode()
	state.setNextAction(snapshot.Plan, hour, desired)
}

func (state *PlanExecutorActor) setNextAction(plan *domain.Plan, hour int, current domain.Action) {
	if next, nextHour, ok := plan.NextChange(hour, current); ok {
		state.execution.NextAction = next.BatteryMode()
		state.execution.NextActionHour = nextHour
	} else {
		state.execution.NextAction = domain.BatteryModeIdle
		state.execution.NextActionHour = -1
	}
}

func (state *PlanExecutorActor) sendCommand(ctx actor.Context, hour int, action domain.Action, replyTo *actor.PID) {
	state.commandSeq++
	state.pendingCommand = &pendingCommand{
		id:      state.commandSeq,
		hour:    hour,
		action:  action,
		sentAt:  state.clock(),
		replyTo: replyTo,
	}
	req := domain.SetBatteryModeRequest{
		CommandId: state.commandSeq,
		Hour:      hour,
		Action:    action,
		PowerW:    state.powerFor(action),
	}
	state.logger.Info("plan_executor: battery command", zap.Int("hour", hour), zap.Stringer("action", action), zap.Uint32("power", req.PowerW))
	state.BecomeStacked(PEAwaitCommandResponseState{
		actor: state,
	}.OnEnterAction(ctx, req))
}

func (state *PlanExecutorActor) powerFor(action domain.Action) uint32 {
	switch action {
	case domain.ActionCharge:
		return state.battery.ChargePowerW
	case domain.ActionDischarge:
		return state.battery.MaxDischargePowerW
	default:
		return 0
	}
}

// commandResult matches a command response with the pending command and records the outcome.
func (state *PlanExecutorActor) commandResult(ctx actor.Context, msg domain.SetBatteryModeResponse) (pendingCommand, bool) {
	cmd := state.pendingCommand
	if cmd == nil || cmd.id != msg.CommandId {
		state.logger.Debug("plan_executor: ignoring stale SetBatteryModeResponse", zap.Uint64("command", msg.CommandId))
		return pendingCommand{}, false
	}
	state.pendingCommand = nil
	if msg.HasResponseError() {
		state.logger.Error("plan_executor: battery command failed",
			zap.Int("hour", cmd.hour), zap.Stringer("action", cmd.action), zap.Error(msg.GetResponseError()))
	} else {
		action := cmd.action
		state.applied = &action
		state.appliedAt = cmd.sentAt
		state.execution.CurrentAction = action.BatteryMode()
	}
	if cmd.replyTo != nil {
		ctx.Send(cmd.replyTo, domain.ManualOverrideResponse{
			ActorResponseMixIn: domain.ResponseError(msg.GetResponseError()),
			Action:             cmd.action,
		})
	}
	return *cmd, true
}

func (cmd pendingCommand) failure(err error) error {
	return &domain.ActuatorCommandError{Hour: cmd.hour, Action: cmd.action, Err: err}
}

// setAutomaticControl updates the flag and responds. It reports whether the flag changed.
func (state *PlanExecutorActor) setAutomaticControl(ctx actor.Context, msg domain.SetAutomaticControlRequest) bool {
	changed := state.execution.AutomaticControl != msg.Enabled
	state.execution.AutomaticControl = msg.Enabled
	state.logger.Info("plan_executor: automatic control", zap.Bool("enabled", msg.Enabled), zap.Bool("changed", changed))
	ForRequest(msg).Respond(ctx, domain.SetAutomaticControlResponse{
		Enabled: msg.Enabled,
		Changed: changed,
	})
	return changed
}

func (state *PlanExecutorActor) manualOverride(ctx actor.Context, msg domain.ManualOverrideRequest) {
	state.logger.Info("plan_executor: manual override", zap.Stringer("action", msg.Action))
	state.execution.AutomaticControl = false
	if state.execution.Status == domain.StatusExecuting {
		state.Become(PEReadyState{actor: state}.OnEnter(ctx))
	}
	state.execution.LastReason = "manual override"
	hour := state.clock().Hour()
	state.sendCommand(ctx, hour, msg.Action, ForRequest(msg).ReplyTo(ctx))
}

func (state *PlanExecutorActor) setHourTargets(ctx actor.Context, msg domain.SetHourTargetsRequest) {
	battery := state.battery
	if msg.ChargeHours != nil {
		battery.ChargeHoursTarget = *msg.ChargeHours
	}
	if msg.DischargeHours != nil {
		battery.DischargeHoursTarget = *msg.DischargeHours
	}
	if battery.ChargeHoursTarget > domain.HOURS_PER_DAY || battery.DischargeHoursTarget > domain.HOURS_PER_DAY {
		ForRequest(msg).Respond(ctx, domain.SetHourTargetsResponse{
			ActorResponseMixIn: domain.ResponseError(&domain.ConstraintViolationError{Reason: "hour targets must not exceed 24"}),
			ChargeHours:        state.battery.ChargeHoursTarget,
			DischargeHours:     state.battery.DischargeHoursTarget,
		})
		return
	}
	if err := battery.Validate(); err != nil {
		ForRequest(msg).Respond(ctx, domain.SetHourTargetsResponse{
			ActorResponseMixIn: domain.ResponseError(err),
			ChargeHours:        state.battery.ChargeHoursTarget,
			DischargeHours:     state.battery.DischargeHoursTarget,
		})
		return
	}
	state.battery = battery
	state.logger.Info("plan_executor: hour targets changed",
		zap.Int("charge", battery.ChargeHoursTarget), zap.Int("discharge", battery.DischargeHoursTarget))
	state.publishHourTargets()
	ForRequest(msg).Respond(ctx, domain.SetHourTargetsResponse{
		ChargeHours:    battery.ChargeHoursTarget,
		DischargeHours: battery.DischargeHoursTarget,
	})
	ctx.Send(ctx.Self(), domain.RequestOptimization{Reason: "hour targets changed"})
}

// publish stores the telemetry snapshot and pushes it to the event stream.
func (state *PlanExecutorActor) publish() {
	t := state.store.PublishState(state.execution, state.clock())
	state.eventStream.Publish(domain.TelemetryUpdatedEvent{Telemetry: t})
	for _, ev := range events.TelemetryToUpdateEvents(t) {
		state.eventStream.Publish(ev)
	}
}

func (state *PlanExecutorActor) publishHourTargets() {
	for _, ev := range events.HourTargetsUpdateEvents(state.battery) {
		state.eventStream.Publish(ev)
	}
}

func millisOrDefault(millis uint32, def time.Duration) time.Duration {
	if millis == 0 {
		return def
	}
	return time.Duration(millis) * time.Millisecond
}
