package ema

import "fmt"

// Status is the mechanical phase of the robot.
type Status int

const (
	Ready Status = iota
	Picking
	Moving
	Parking
	Parked
)

var statusNames = [...]string{
	Ready:   "ready",
	Picking: "picking sample",
	Moving:  "moving sample",
	Parking: "parking",
	Parked:  "parked",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// UserCommand is a high level request driving the session.
type UserCommand int

const (
	None UserCommand = iota
	Mount
	Unmount
	Stop
)

var commandNames = [...]string{
	None:    "none",
	Mount:   "mount",
	Unmount: "unmount",
	Stop:    "stop",
}

func (c UserCommand) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("UserCommand(%d)", int(c))
	}
	return commandNames[c]
}

// flag describes what a transition does to one of the sample flags.
type flag int

const (
	keepFlag flag = iota
	setFlag
	clearFlag
)

func (f flag) apply(v bool) bool {
	switch f {
	case setFlag:
		return true
	case clearFlag:
		return false
	default:
		return v
	}
}

type transitionKey struct {
	from Status
	cmd  UserCommand
}

type transition struct {
	to            Status
	hasSample     flag
	sampleMounted flag
}

// transitions is the complete set of legal moves. Stop has no entries.
var transitions = map[transitionKey]transition{
	{Ready, Mount}:     {to: Picking},
	{Picking, Mount}:   {to: Moving, hasSample: setFlag},
	{Picking, Unmount}: {to: Moving, hasSample: setFlag, sampleMounted: clearFlag},
	{Moving, Mount}:    {to: Parking, hasSample: clearFlag, sampleMounted: setFlag},
	{Moving, Unmount}:  {to: Parking, hasSample: clearFlag, sampleMounted: clearFlag},
	{Parking, Mount}:   {to: Parked},
	{Parking, Unmount}: {to: Ready},
	{Parked, Unmount}:  {to: Picking},
}

// Session tracks the mount/unmount workflow of one control session.
//
// A Session is not safe for concurrent use.
type Session struct {
	status        Status
	hasSample     bool
	sampleMounted bool
	pending       UserCommand
}

// NewSession returns a session in the Ready state with no sample in the
// gripper or on the spinner.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) Status() Status       { return s.status }
func (s *Session) HasSample() bool      { return s.hasSample }
func (s *Session) SampleMounted() bool  { return s.sampleMounted }
func (s *Session) Pending() UserCommand { return s.pending }

// Next returns the status that running cmd would reach, without changing
// the session.
func (s *Session) Next(cmd UserCommand) (Status, error) {
	t, ok := transitions[transitionKey{s.status, cmd}]
	if !ok {
		return s.status, &InvalidTransition{Status: s.status, Command: cmd}
	}
	return t.to, nil
}

// SetCommand sets the pending command for the next Run. It is validated
// when Run is called.
func (s *Session) SetCommand(cmd UserCommand) {
	s.pending = cmd
}

// Run performs the transition for the pending command. On error the
// session is unchanged.
func (s *Session) Run() error {
	t, ok := transitions[transitionKey{s.status, s.pending}]
	if !ok {
		return &InvalidTransition{Status: s.status, Command: s.pending}
	}

	s.status = t.to
	s.hasSample = t.hasSample.apply(s.hasSample)
	s.sampleMounted = t.sampleMounted.apply(s.sampleMounted)
	if s.status == Ready || s.status == Parked {
		s.pending = None
	}
	return nil
}

// Submit validates cmd against the current status, then sets it pending
// and runs it. A rejected command leaves the session untouched, including
// the pending command.
func (s *Session) Submit(cmd UserCommand) error {
	if _, err := s.Next(cmd); err != nil {
		return err
	}
	s.pending = cmd
	return s.Run()
}

// Reset returns the session to its initial state.
func (s *Session) Reset() {
	*s = Session{}
}
