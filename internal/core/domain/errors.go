package domain

import "fmt"

// InsufficientDataError is returned when the target day has fewer valid prices than required.
type InsufficientDataError struct {
	Valid    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient price data: %d of %d hours known", e.Valid, e.Required)
}

type ConstraintViolationError struct {
	Reason string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation: %s", e.Reason)
}

// ActuatorCommandError wraps a failed battery command with the hour and the intended action.
type ActuatorCommandError struct {
	Hour   int
	Action Action
	Err    error
}

func (e *ActuatorCommandError) Error() string {
	return fmt.Sprintf("actuator command %s failed at hour %d: %v", e.Action, e.Hour, e.Err)
}

func (e *ActuatorCommandError) Unwrap() error {
	return e.Err
}
