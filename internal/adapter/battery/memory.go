package battery

import (
	"context"
	"sync"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"
)

// Command is one actuator call recorded by MemoryBattery.
type Command struct {
	Action domain.Action
	PowerW uint32
}

// MemoryBattery is an in-memory actuator and SOC source used in tests and dry runs.
type MemoryBattery struct {
	mu       sync.Mutex
	socPct   float64
	commands []Command
	failWith func(Command) error
	expiry   time.Duration
}

func NewMemoryBattery(socPct float64) *MemoryBattery {
	return &MemoryBattery{socPct: socPct}
}

func (b *MemoryBattery) SetForceCharge(ctx context.Context, powerW uint32) error {
	return b.record(ctx, Command{Action: domain.ActionCharge, PowerW: powerW})
}

func (b *MemoryBattery) SetForceDischarge(ctx context.Context, powerW uint32) error {
	return b.record(ctx, Command{Action: domain.ActionDischarge, PowerW: powerW})
}

func (b *MemoryBattery) ClearOverride(ctx context.Context) error {
	return b.record(ctx, Command{Action: domain.ActionIdle})
}

func (b *MemoryBattery) StateOfCharge(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.socPct, ctx.Err()
}

func (b *MemoryBattery) SetStateOfCharge(socPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.socPct = socPct
}

// FailWith installs a hook that can reject commands. Rejected commands are still recorded.
func (b *MemoryBattery) FailWith(fn func(Command) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = fn
}

// SetOverrideExpiry makes the battery report charge and discharge commands as time limited.
func (b *MemoryBattery) SetOverrideExpiry(expiry time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiry = expiry
}

func (b *MemoryBattery) OverrideExpiry() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expiry
}

func (b *MemoryBattery) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands...)
}

func (b *MemoryBattery) record(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd)
	if b.failWith != nil {
		return b.failWith(cmd)
	}
	return nil
}

// ensure interface compliance
var _ port.ExpiringActuator = (*MemoryBattery)(nil)
var _ port.BatteryTelemetry = (*MemoryBattery)(nil)
