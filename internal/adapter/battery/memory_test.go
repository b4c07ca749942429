package battery

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBattery(t *testing.T) {

	b := NewMemoryBattery(20)
	ctx := context.Background()

	soc, err := b.StateOfCharge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, soc)

	b.SetStateOfCharge(55)
	soc, _ = b.StateOfCharge(ctx)
	assert.Equal(t, 55.0, soc)

	require.NoError(t, b.SetForceCharge(ctx, 2500))
	require.NoError(t, b.ClearOverride(ctx))

	// rejected commands are still recorded
	b.FailWith(func(cmd Command) error {
		if cmd.Action == domain.ActionDischarge {
			return errors.New("inverter busy")
		}
		return nil
	})
	assert.Error(t, b.SetForceDischarge(ctx, 2000))

	assert.Equal(t, []Command{
		{Action: domain.ActionCharge, PowerW: 2500},
		{Action: domain.ActionIdle},
		{Action: domain.ActionDischarge, PowerW: 2000},
	}, b.Commands())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, b.ClearOverride(cancelled), context.Canceled)
	assert.Len(t, b.Commands(), 3)
}
