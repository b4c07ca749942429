package battery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
	"github.com/berfenger/spotcharge2mqtt/pkg/sunspec_modbus"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	SUNSPEC_RETRY_INITIAL_INTERVAL = 250 * time.Millisecond
	SUNSPEC_RETRY_MAX_INTERVAL     = 2 * time.Second
)

// SunSpecBattery drives a SunSpec storage block. Every call is retried a bounded number of times.
type SunSpecBattery struct {
	client        sunspec_modbus.StorageModbusClient
	revertTimeout int32
	retries       uint64
	logger        *zap.Logger
}

func NewSunSpecBattery(client sunspec_modbus.StorageModbusClient, revertTimeoutSecs uint32, retries uint64, logger *zap.Logger) *SunSpecBattery {
	return &SunSpecBattery{
		client:        client,
		revertTimeout: int32(min(revertTimeoutSecs, math.MaxUint16)),
		retries:       retries,
		logger:        logger.With(zap.String("battery", "sunspec")),
	}
}

func (b *SunSpecBattery) Open() error {
	return b.retry(context.Background(), "open", func() error {
		if err := b.client.Open(); err != nil {
			return err
		}
		if err := b.client.Validate(); err != nil {
			return backoff.Permanent(err)
		}
		hasStorage, err := b.client.HasStorage()
		if err != nil {
			return err
		}
		if !hasStorage {
			return backoff.Permanent(sunspec_modbus.ErrNoStorage)
		}
		return nil
	})
}

func (b *SunSpecBattery) Close() error {
	return b.client.Close()
}

// OverrideExpiry is the storage control revert timeout. Zero disables the revert.
func (b *SunSpecBattery) OverrideExpiry() time.Duration {
	return time.Duration(b.revertTimeout) * time.Second
}

func (b *SunSpecBattery) SetForceCharge(ctx context.Context, powerW uint32) error {
	return b.retry(ctx, "force charge", func() error {
		return b.client.SetStorageForceChargePower(toWatts16(powerW), b.revertTimeout)
	})
}

func (b *SunSpecBattery) SetForceDischarge(ctx context.Context, powerW uint32) error {
	return b.retry(ctx, "force discharge", func() error {
		return b.client.SetStorageForceDischargePower(toWatts16(powerW), b.revertTimeout)
	})
}

func (b *SunSpecBattery) ClearOverride(ctx context.Context) error {
	return b.retry(ctx, "clear override", b.client.DisableStorageControl)
}

func (b *SunSpecBattery) StateOfCharge(ctx context.Context) (float64, error) {
	state, err := backoff.RetryWithData(func() (*sunspec_modbus.StorageState, error) {
		state, err := b.client.GetStorageState()
		if errors.Is(err, sunspec_modbus.ErrNoStorage) {
			return nil, backoff.Permanent(err)
		}
		return state, err
	}, b.backOff(ctx))
	if err != nil {
		return 0, fmt.Errorf("sunspec: read storage state: %w", err)
	}
	return state.StateOfCharge, nil
}

func (b *SunSpecBattery) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err != nil {
			b.logger.Warn("sunspec: call failed", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, b.backOff(ctx))
	if err != nil {
		return fmt.Errorf("sunspec: %s: %w", op, err)
	}
	return nil
}

func (b *SunSpecBattery) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = SUNSPEC_RETRY_INITIAL_INTERVAL
	exp.MaxInterval = SUNSPEC_RETRY_MAX_INTERVAL
	return backoff.WithContext(backoff.WithMaxRetries(exp, b.retries), ctx)
}

func toWatts16(powerW uint32) uint16 {
	return uint16(min(powerW, math.MaxUint16))
}

var _ port.ExpiringActuator = (*SunSpecBattery)(nil)
var _ port.BatteryTelemetry = (*SunSpecBattery)(nil)
var _ port.Connector = (*SunSpecBattery)(nil)
