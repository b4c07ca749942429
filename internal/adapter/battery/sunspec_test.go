package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorageClient struct {
	failures   int
	calls      int
	validate   error
	hasStorage bool
	lastWatts  uint16
	lastRevert int32
	disabled   bool
	soc        float64
}

func (c *fakeStorageClient) attempt() error {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return errors.New("modbus: request timed out")
	}
	return nil
}

func (c *fakeStorageClient) Open() error     { return c.attempt() }
func (c *fakeStorageClient) Close() error    { return nil }
func (c *fakeStorageClient) Validate() error { return c.validate }

func (c *fakeStorageClient) HasStorage() (bool, error) {
	return c.hasStorage, nil
}

func (c *fakeStorageClient) SetStorageControl(params sunspec_modbus.StorageControlParams) error {
	return c.attempt()
}

func (c *fakeStorageClient) SetStorageForceChargePower(watts uint16, revertTimeSeconds int32) error {
	c.lastWatts, c.lastRevert = watts, revertTimeSeconds
	return c.attempt()
}

func (c *fakeStorageClient) SetStorageForceDischargePower(watts uint16, revertTimeSeconds int32) error {
	c.lastWatts, c.lastRevert = watts, revertTimeSeconds
	return c.attempt()
}

func (c *fakeStorageClient) DisableStorageControl() error {
	c.disabled = true
	return c.attempt()
}

func (c *fakeStorageClient) GetStorageState() (*sunspec_modbus.StorageState, error) {
	if err := c.attempt(); err != nil {
		return nil, err
	}
	return &sunspec_modbus.StorageState{StateOfCharge: c.soc}, nil
}

func TestSunSpecBatteryRetries(t *testing.T) {

	client := &fakeStorageClient{failures: 2, hasStorage: true}
	b := NewSunSpecBattery(client, 900, 3, zap.NewNop())

	require.NoError(t, b.SetForceCharge(context.Background(), 2500))
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, uint16(2500), client.lastWatts)
	assert.Equal(t, int32(900), client.lastRevert)
}

func TestSunSpecBatteryOverrideExpiry(t *testing.T) {

	b := NewSunSpecBattery(&fakeStorageClient{}, 3600, 1, zap.NewNop())
	assert.Equal(t, time.Hour, b.OverrideExpiry())
	assert.True(t, port.OverridesExpire(b))

	b = NewSunSpecBattery(&fakeStorageClient{}, 0, 1, zap.NewNop())
	assert.False(t, port.OverridesExpire(b))
}

func TestSunSpecBatteryGivesUp(t *testing.T) {

	client := &fakeStorageClient{failures: 10, hasStorage: true}
	b := NewSunSpecBattery(client, 0, 2, zap.NewNop())

	err := b.ClearOverride(context.Background())
	assert.Error(t, err)
	assert.True(t, client.disabled)
	// first attempt plus two retries
	assert.Equal(t, 3, client.calls)
}

func TestSunSpecBatteryOpen(t *testing.T) {

	client := &fakeStorageClient{hasStorage: false}
	b := NewSunSpecBattery(client, 0, 5, zap.NewNop())

	// missing storage is not retried
	err := b.Open()
	assert.ErrorIs(t, err, sunspec_modbus.ErrNoStorage)
	assert.Equal(t, 1, client.calls)

	client = &fakeStorageClient{hasStorage: true, validate: errors.New("could not find a Fronius inverter")}
	b = NewSunSpecBattery(client, 0, 5, zap.NewNop())
	assert.Error(t, b.Open())
	assert.Equal(t, 1, client.calls)
}

func TestSunSpecBatteryStateOfCharge(t *testing.T) {

	client := &fakeStorageClient{failures: 1, hasStorage: true, soc: 63.5}
	b := NewSunSpecBattery(client, 0, 2, zap.NewNop())

	soc, err := b.StateOfCharge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 63.5, soc)
}

func TestSunSpecBatteryClampsPower(t *testing.T) {

	client := &fakeStorageClient{hasStorage: true}
	b := NewSunSpecBattery(client, 0, 0, zap.NewNop())

	require.NoError(t, b.SetForceDischarge(context.Background(), 100000))
	assert.Equal(t, uint16(65535), client.lastWatts)
}
