package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	adactor "github.com/berfenger/spotcharge2mqtt/internal/adapter/actor"
	"github.com/berfenger/spotcharge2mqtt/internal/adapter/battery"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/internal/core/service"
	"github.com/berfenger/spotcharge2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var executorDay = time.Date(2024, 10, 1, 0, 0, 0, 0, time.Local)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testPrices struct {
	mu     sync.Mutex
	series domain.PriceSeries
	gate   chan struct{}
	calls  atomic.Int32
}

func (p *testPrices) GetPrices(ctx context.Context) (domain.PriceSeries, error) {
	p.calls.Add(1)
	p.mu.Lock()
	gate := p.gate
	series := p.series
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.PriceSeries{}, ctx.Err()
		}
	}
	return series, nil
}

func (p *testPrices) Set(series domain.PriceSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series = series
}

func peakValley(day time.Time) domain.PriceSeries {
	values := make([]float64, domain.HOURS_PER_DAY)
	for i := range values {
		values[i] = 10
	}
	values[2], values[3] = 1, 1
	values[4], values[5] = 100, 100
	return domain.PriceSeriesFromValues(day, values)
}

type executorFixture struct {
	system   *actor.ActorSystem
	executor *actor.PID
	store    *service.PlanStore
	battery  *battery.MemoryBattery
	prices   *testPrices
	clock    *testClock
}

func newExecutorFixture(t *testing.T, at time.Time, prices *testPrices, automatic bool, opts ...func(*executorFixture)) *executorFixture {
	logger := zap.Must(zap.NewDevelopment())
	cfg := util.LoadTestConfig()
	cfg.Planner.AutomaticControl = automatic

	f := &executorFixture{
		system:  actor.NewActorSystem(),
		store:   service.NewPlanStore(),
		battery: battery.NewMemoryBattery(10),
		prices:  prices,
		clock:   &testClock{now: at},
	}
	for _, opt := range opts {
		opt(f)
	}
	storage := f.system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewStorageActor(f.battery, f.battery, time.Second, logger)
	}))
	f.executor = f.system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPlanExecutorActor(&cfg, storage, f.store, service.NewGreedyPlanner(logger), f.prices,
			f.system.EventStream, logger, f.clock.Now).WithExpiringCommands(port.OverridesExpire(f.battery))
	}))
	t.Cleanup(f.system.Shutdown)
	return f
}

func (f *executorFixture) request(t *testing.T, msg any) any {
	res, err := f.system.Root.RequestFuture(f.executor, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return res
}

func (f *executorFixture) tickAt(at time.Time) {
	f.clock.Set(at)
	f.system.Root.Send(f.executor, hourTick{})
}

func TestExecutorAppliesCurrentHour(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(2*time.Hour+30*time.Minute), prices, true)

	time.Sleep(1 * time.Second)

	telemetry := f.store.Telemetry()
	assert.Equal(t, domain.StatusExecuting, telemetry.Status)
	assert.Equal(t, uint64(1), telemetry.Generation)
	assert.Equal(t, domain.BatteryModeCharging, telemetry.CurrentAction)
	assert.Equal(t, domain.BatteryModeDischarging, telemetry.NextAction)
	assert.Equal(t, 4, telemetry.NextActionHour)
	assert.InDelta(t, 445.0, telemetry.ExpectedBenefit, 1e-9)
	assert.Equal(t, []battery.Command{{Action: domain.ActionCharge, PowerW: 2500}}, f.battery.Commands())

	// same action in hour 3: nothing is re-issued
	f.tickAt(executorDay.Add(3 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, f.battery.Commands(), 1)

	f.tickAt(executorDay.Add(4 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []battery.Command{
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionDischarge, PowerW: 2500},
	}, f.battery.Commands())

	res := f.request(t, domain.ActorHealthRequest{}).(domain.ActorHealthResponse)
	assert.True(t, res.Healthy)
	assert.Equal(t, "executing", res.State)
}

func TestExecutorRenewsExpiringCommands(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(2*time.Hour+30*time.Minute), prices, true, func(f *executorFixture) {
		f.battery.SetOverrideExpiry(time.Hour)
	})

	time.Sleep(1 * time.Second)
	require.Equal(t, []battery.Command{{Action: domain.ActionCharge, PowerW: 2500}}, f.battery.Commands())

	// the charge sent at 02:30 lapses at 03:30, hour 3 is still a charge hour
	f.tickAt(executorDay.Add(3 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	f.tickAt(executorDay.Add(4 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	f.tickAt(executorDay.Add(5 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	f.tickAt(executorDay.Add(6 * time.Hour))
	time.Sleep(300 * time.Millisecond)
	// idle does not expire
	f.tickAt(executorDay.Add(7 * time.Hour))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, []battery.Command{
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionDischarge, PowerW: 2500},
		{Action: domain.ActionDischarge, PowerW: 2500},
		{Action: domain.ActionIdle},
	}, f.battery.Commands())
	assert.Equal(t, domain.StatusExecuting, f.store.Telemetry().Status)
}

func TestExecutorDisableSuppressesCommands(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(2*time.Hour+30*time.Minute), prices, true)

	time.Sleep(1 * time.Second)
	require.Len(t, f.battery.Commands(), 1)

	res := f.request(t, domain.SetAutomaticControlRequest{Enabled: false}).(domain.SetAutomaticControlResponse)
	assert.True(t, res.Changed)

	f.tickAt(executorDay.Add(4*time.Hour + 5*time.Minute))
	time.Sleep(300 * time.Millisecond)

	telemetry := f.store.Telemetry()
	assert.Equal(t, domain.StatusReady, telemetry.Status)
	assert.False(t, telemetry.AutomaticControl)
	// plan kept, display follows the plan
	assert.Equal(t, uint64(1), telemetry.Generation)
	assert.Equal(t, domain.BatteryModeDischarging, telemetry.CurrentAction)
	assert.Len(t, f.battery.Commands(), 1)

	// re-enable in hour 5: only the current hour is applied
	f.clock.Set(executorDay.Add(5*time.Hour + 10*time.Minute))
	res = f.request(t, domain.SetAutomaticControlRequest{Enabled: true}).(domain.SetAutomaticControlResponse)
	assert.True(t, res.Changed)
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, []battery.Command{
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionDischarge, PowerW: 2500},
	}, f.battery.Commands())
	assert.Equal(t, domain.StatusExecuting, f.store.Telemetry().Status)
}

func TestExecutorFailureDoesNotBlockNextHour(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(2*time.Hour), prices, true)

	var failing atomic.Bool
	failing.Store(true)
	f.battery.FailWith(func(battery.Command) error {
		if failing.Load() {
			return errors.New("modbus write failed")
		}
		return nil
	})

	time.Sleep(1 * time.Second)

	telemetry := f.store.Telemetry()
	assert.Equal(t, domain.StatusError, telemetry.Status)
	assert.Contains(t, telemetry.LastError, "hour 2")
	assert.Contains(t, telemetry.LastError, "charge")
	assert.Equal(t, uint64(1), telemetry.Generation)

	failing.Store(false)
	f.tickAt(executorDay.Add(3 * time.Hour))
	time.Sleep(300 * time.Millisecond)

	telemetry = f.store.Telemetry()
	assert.Equal(t, domain.StatusExecuting, telemetry.Status)
	assert.Empty(t, telemetry.LastError)
	assert.Equal(t, domain.BatteryModeCharging, telemetry.CurrentAction)
	assert.Len(t, f.battery.Commands(), 2)
}

func TestExecutorCoalescesOptimizations(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay), gate: make(chan struct{})}
	f := newExecutorFixture(t, executorDay.Add(10*time.Hour), prices, false)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, domain.StatusOptimizing, f.store.Telemetry().Status)

	for i := 0; i < 3; i++ {
		f.system.Root.Send(f.executor, domain.RequestOptimization{Reason: "test"})
	}
	time.Sleep(200 * time.Millisecond)
	close(prices.gate)
	time.Sleep(1 * time.Second)

	assert.Equal(t, int32(2), prices.calls.Load())
	telemetry := f.store.Telemetry()
	assert.Equal(t, uint64(2), telemetry.Generation)
	assert.Equal(t, domain.StatusReady, telemetry.Status)
	assert.Empty(t, f.battery.Commands())
}

func TestExecutorInsufficientDataKeepsPlan(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(2*time.Hour), prices, true)

	time.Sleep(1 * time.Second)
	require.Equal(t, uint64(1), f.store.Telemetry().Generation)

	prices.Set(domain.PriceSeriesFromValues(executorDay, []float64{1, 2, 3}))
	f.system.Root.Send(f.executor, domain.RequestOptimization{Reason: "test"})
	time.Sleep(500 * time.Millisecond)

	telemetry := f.store.Telemetry()
	assert.Equal(t, uint64(1), telemetry.Generation)
	assert.Equal(t, domain.StatusExecuting, telemetry.Status)
	assert.Contains(t, telemetry.LastError, "insufficient price data")
	assert.Equal(t, "--CCDD------------------", telemetry.Plan.Codes)
	assert.Len(t, f.battery.Commands(), 1)
}

func TestExecutorStalePlanRequestsOptimization(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(23*time.Hour), prices, true)

	time.Sleep(1 * time.Second)
	require.Len(t, f.battery.Commands(), 1)

	nextDay := executorDay.AddDate(0, 0, 1)
	prices.Set(peakValley(nextDay))
	f.tickAt(nextDay.Add(2*time.Hour + 5*time.Minute))
	time.Sleep(1 * time.Second)

	telemetry := f.store.Telemetry()
	assert.Equal(t, uint64(2), telemetry.Generation)
	assert.Equal(t, domain.StatusExecuting, telemetry.Status)
	assert.True(t, telemetry.Plan.Day.Equal(nextDay))
	assert.Equal(t, []battery.Command{
		{Action: domain.ActionIdle},
		{Action: domain.ActionCharge, PowerW: 2500},
	}, f.battery.Commands())
}

func TestExecutorManualOverride(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(8*time.Hour), prices, true)

	time.Sleep(1 * time.Second)

	res := f.request(t, domain.ManualOverrideRequest{Action: domain.ActionDischarge}).(domain.ManualOverrideResponse)
	assert.False(t, res.HasResponseError())
	assert.Equal(t, domain.ActionDischarge, res.Action)

	telemetry := f.store.Telemetry()
	assert.False(t, telemetry.AutomaticControl)
	assert.Equal(t, domain.StatusReady, telemetry.Status)
	assert.Equal(t, []battery.Command{
		{Action: domain.ActionIdle},
		{Action: domain.ActionDischarge, PowerW: 2500},
	}, f.battery.Commands())
}

func TestExecutorSetHourTargets(t *testing.T) {

	prices := &testPrices{series: peakValley(executorDay)}
	f := newExecutorFixture(t, executorDay.Add(8*time.Hour), prices, false)

	time.Sleep(1 * time.Second)

	one := 1
	res := f.request(t, domain.SetHourTargetsRequest{ChargeHours: &one}).(domain.SetHourTargetsResponse)
	assert.False(t, res.HasResponseError())
	assert.Equal(t, 1, res.ChargeHours)
	assert.Equal(t, domain.DEFAULT_DISCHARGE_HOURS_TARGET, res.DischargeHours)

	time.Sleep(500 * time.Millisecond)
	telemetry := f.store.Telemetry()
	assert.Equal(t, uint64(2), telemetry.Generation)
	assert.Equal(t, []int{2}, telemetry.Plan.ChargeHours)

	tooMany := 25
	res = f.request(t, domain.SetHourTargetsRequest{DischargeHours: &tooMany}).(domain.SetHourTargetsResponse)
	assert.True(t, res.HasResponseError())
	assert.Equal(t, domain.DEFAULT_DISCHARGE_HOURS_TARGET, res.DischargeHours)
}
