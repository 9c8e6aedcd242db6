package ema

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrDeviceFailure      = errors.New("device failure")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrRange              = errors.New("value out of range")
	ErrNotInteger         = errors.New("value is not an integer")
	ErrUnknownState       = errors.New("unknown state")
	ErrInvalidTransition  = errors.New("invalid transition")

	// ErrNotStarted is returned by Robot operations issued before Begin.
	ErrNotStarted = errors.New("robot session not started")

	ErrMountInProgress = errors.New("mount in progress")
)

// DeviceFailure is returned when the controller reports that it could not
// execute a command and that failure was not the expected reply.
type DeviceFailure struct {
	Command string
	Reply   string
}

func (e *DeviceFailure) Error() string {
	return fmt.Sprintf("%q failed on robot: %s", e.Command, e.Reply)
}

func (e *DeviceFailure) Is(target error) bool { return target == ErrDeviceFailure }

// UnexpectedResponse is returned when a well-formed reply differs from the
// one awaited.
type UnexpectedResponse struct {
	Command  string
	Expected string
	Actual   string
}

func (e *UnexpectedResponse) Error() string {
	return fmt.Sprintf("unexpected response to %q: expected %q, got %q", e.Command, e.Expected, e.Actual)
}

func (e *UnexpectedResponse) Is(target error) bool { return target == ErrUnexpectedResponse }

// RangeError reports an argument outside its permitted interval. It is
// raised before any network I/O.
type RangeError struct {
	Name     string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %v is outside the range %v to %v", e.Name, e.Value, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool { return target == ErrRange }

// MountInProgressError is returned when a mount that stopped part way is
// resumed with a different sample number.
type MountInProgressError struct {
	Sample    int
	Requested int
}

func (e *MountInProgressError) Error() string {
	return fmt.Sprintf("mount of sample %d in progress, cannot mount sample %d", e.Sample, e.Requested)
}

func (e *MountInProgressError) Is(target error) bool { return target == ErrMountInProgress }

// NotIntegerError reports a value that must be integral but is not.
type NotIntegerError struct {
	Name  string
	Value string
}

func (e *NotIntegerError) Error() string {
	return fmt.Sprintf("%s must be an integer, got %s", e.Name, e.Value)
}

func (e *NotIntegerError) Is(target error) bool { return target == ErrNotInteger }

// UnknownStateError is returned when a state query replies with a token
// that does not map to a boolean.
type UnknownStateError struct {
	Param string
	Token string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown %s state %q", e.Param, e.Token)
}

func (e *UnknownStateError) Is(target error) bool { return target == ErrUnknownState }

// InvalidTransition is returned when the session is asked to run a command
// its current status does not accept. The session is left unchanged.
type InvalidTransition struct {
	Status  Status
	Command UserCommand
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s while robot is %s", e.Command, e.Status)
}

func (e *InvalidTransition) Is(target error) bool { return target == ErrInvalidTransition }
