package domain

import "fmt"

// PlanExecutorRequest

type PlanExecutorRequest interface {
	ActorRequest
	PlanExecutorCommand() string
}

type PlanExecutorRequestMixIn struct {
	ActorRequestMixIn
}

func (r PlanExecutorRequestMixIn) PlanExecutorCommand() string {
	return fmt.Sprintf("%T", r)
}

// PlanExecutor commands

// RequestOptimization asks for a new plan. Reason is informational only.
type RequestOptimization struct {
	PlanExecutorRequestMixIn
	Reason string
	RunId  string
}

type SetAutomaticControlRequest struct {
	PlanExecutorRequestMixIn
	Enabled bool
}

type SetAutomaticControlResponse struct {
	ActorResponseMixIn
	Enabled bool
	Changed bool
}

// ManualOverrideRequest forces a battery mode right away and turns automatic control off.
type ManualOverrideRequest struct {
	PlanExecutorRequestMixIn
	Action Action
}

type ManualOverrideResponse struct {
	ActorResponseMixIn
	Action Action
}

// SetHourTargetsRequest changes the charge/discharge hour targets; nil leaves a target unchanged.
type SetHourTargetsRequest struct {
	PlanExecutorRequestMixIn
	ChargeHours    *int
	DischargeHours *int
}

type SetHourTargetsResponse struct {
	ActorResponseMixIn
	ChargeHours    int
	DischargeHours int
}

type GetTelemetryRequest struct {
	PlanExecutorRequestMixIn
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	Telemetry Telemetry
}

// ensure interface compliance
var _ PlanExecutorRequest = (*RequestOptimization)(nil)
var _ PlanExecutorRequest = (*SetAutomaticControlRequest)(nil)
var _ PlanExecutorRequest = (*ManualOverrideRequest)(nil)
var _ PlanExecutorRequest = (*SetHourTargetsRequest)(nil)
