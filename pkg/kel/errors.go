// pkg/kel/errors.go
package kel

import (
	"errors"
	"fmt"
)

// Rule identifies a list invariant checked by Validate
type Rule string

const (
	RuleSlotRange         Rule = "slot_range"
	RuleStepCount         Rule = "step_count"
	RuleStepCurrent       Rule = "step_current"
	RuleInitialBelowRange Rule = "initial_below_range"
	RuleInitialAboveMax   Rule = "initial_above_max_over"
	RuleOffBelowMin       Rule = "off_below_min_over"
	RuleMaxAboveMin       Rule = "max_over_above_min_over"
	RuleStepBelowInitial  Rule = "step_below_initial"
	RuleDischargeRange    Rule = "discharge_below_range"
	RuleBaudRate          Rule = "baud_rate"
	RuleAddress           Rule = "address"
	RulePort              Rule = "port_range"
)

// Mode errors
var (
	ErrModeNotSettable    = errors.New("mode does not support setting directly from function")
	ErrNotDynamicMode     = errors.New("device is not in a dynamic mode")
	ErrInvalidDynamicMode = errors.New("invalid dynamic mode")
)

// ValidationError reports a violated list invariant. It is returned before
// anything is sent to the device.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErr(rule Rule, message string) error {
	return &ValidationError{Rule: rule, Message: message}
}

// DecodeError reports a device reply that could not be decoded
type DecodeError struct {
	Token   string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %q", e.Message, e.Token)
}

func decodeErr(token, message string) error {
	return &DecodeError{Token: token, Message: message}
}

// ModeError reports a mode that cannot be used for the requested operation
type ModeError struct {
	Mode string
	Err  error
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Mode)
}

func (e *ModeError) Unwrap() error {
	return e.Err
}

// LimitExceededError reports a value above the configured limit
type LimitExceededError struct {
	Value   float64
	Limit   float64
	Message string
}

func (e *LimitExceededError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "value is above limit"
	}
	return fmt.Sprintf("%s: %.4f > %.4f", msg, e.Value, e.Limit)
}
