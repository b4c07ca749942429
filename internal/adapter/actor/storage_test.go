package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/adapter/battery"
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowTelemetry struct{}

func (slowTelemetry) StateOfCharge(ctx context.Context) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestStorageActorGetState(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	mem := battery.NewMemoryBattery(42.5)
	props := actor.PropsFromProducer(func() actor.Actor { return NewStorageActor(mem, mem, time.Second, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.GetStorageStateRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetStorageStateResponse)
	assert.False(t, resp.HasResponseError())
	assert.Equal(t, 42.5, resp.StateOfChargePct)

	context.Stop(pid)
	as.Shutdown()
}

func TestStorageActorSetBatteryMode(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	mem := battery.NewMemoryBattery(50)
	props := actor.PropsFromProducer(func() actor.Actor { return NewStorageActor(mem, mem, time.Second, logger) })
	pid := context.Spawn(props)

	requests := []domain.SetBatteryModeRequest{
		{CommandId: 1, Hour: 2, Action: domain.ActionCharge, PowerW: 2500},
		{CommandId: 2, Hour: 4, Action: domain.ActionDischarge, PowerW: 2000},
		{CommandId: 3, Hour: 6, Action: domain.ActionIdle},
	}
	for _, req := range requests {
		result, err := context.RequestFuture(pid, req, 5*time.Second).Result()
		require.NoError(t, err)
		resp := result.(domain.SetBatteryModeResponse)
		assert.False(resp.HasResponseError())
		assert.Equal(req.CommandId, resp.CommandId)
		assert.Equal(req.Hour, resp.Hour)
	}

	assert.Equal([]battery.Command{
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionDischarge, PowerW: 2000},
		{Action: domain.ActionIdle},
	}, mem.Commands())

	context.Stop(pid)
	as.Shutdown()
}

func TestStorageActorCommandError(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	mem := battery.NewMemoryBattery(50)
	mem.FailWith(func(battery.Command) error { return errors.New("inverter busy") })
	props := actor.PropsFromProducer(func() actor.Actor { return NewStorageActor(mem, mem, time.Second, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.SetBatteryModeRequest{CommandId: 7, Hour: 3, Action: domain.ActionCharge}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetBatteryModeResponse)
	assert.True(t, resp.HasResponseError())
	assert.Equal(t, uint64(7), resp.CommandId)
	assert.Equal(t, domain.ActionCharge, resp.Action)

	context.Stop(pid)
	as.Shutdown()
}

func TestStorageActorTimeout(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	mem := battery.NewMemoryBattery(50)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewStorageActor(mem, slowTelemetry{}, 200*time.Millisecond, logger)
	})
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.GetStorageStateRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, result.(domain.GetStorageStateResponse).HasResponseError())

	// the actor is usable again after the timeout
	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, result.(domain.ActorHealthResponse).Healthy)

	context.Stop(pid)
	as.Shutdown()
}
