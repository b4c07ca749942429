package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"github.com/shopspring/decimal"
)

// PlanStore holds the current plan generation and the last telemetry snapshot.
// Writes come from the plan executor only; readers never block.
type PlanStore struct {
	mu         sync.Mutex
	generation uint64
	current    atomic.Pointer[domain.PlanSnapshot]
	telemetry  atomic.Pointer[domain.Telemetry]
}

func NewPlanStore() *PlanStore {
	s := &PlanStore{}
	initial := domain.Telemetry{
		Status:         domain.StatusIdle,
		CurrentAction:  domain.BatteryModeIdle,
		NextAction:     domain.BatteryModeIdle,
		NextActionHour: -1,
	}
	s.telemetry.Store(&initial)
	return s
}

// Install replaces the current plan and returns the new generation.
func (s *PlanStore) Install(plan *domain.Plan, at time.Time) domain.PlanSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	snapshot := &domain.PlanSnapshot{
		Generation:  s.generation,
		Plan:        plan,
		InstalledAt: at,
	}
	s.current.Store(snapshot)
	return *snapshot
}

func (s *PlanStore) Current() (domain.PlanSnapshot, bool) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return domain.PlanSnapshot{}, false
	}
	return *snapshot, true
}

func (s *PlanStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// PublishState builds the telemetry snapshot for the given execution state and the current plan.
func (s *PlanStore) PublishState(state domain.ExecutionState, now time.Time) domain.Telemetry {
	t := domain.Telemetry{
		Status:           state.Status,
		CurrentAction:    state.CurrentAction,
		NextAction:       state.NextAction,
		NextActionHour:   state.NextActionHour,
		AutomaticControl: state.AutomaticControl,
		LastError:        state.LastError,
		LastReason:       state.LastReason,
		UpdatedAt:        now,
	}
	if snapshot, ok := s.Current(); ok {
		view := snapshot.Plan.View()
		t.Generation = snapshot.Generation
		t.ExpectedBenefit = snapshot.Plan.ExpectedBenefit()
		t.Plan = &view
	}
	s.telemetry.Store(&t)
	return t
}

func (s *PlanStore) Telemetry() domain.Telemetry {
	return *s.telemetry.Load()
}

// RoundMoney rounds a monetary amount to cents for logs.
func RoundMoney(value float64) float64 {
	f, _ := decimal.NewFromFloat(value).Round(2).Float64()
	return f
}

// ensure interface compliance
var _ port.TelemetryReader = (*PlanStore)(nil)
