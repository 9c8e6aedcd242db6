package ema

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtwharmby/emacontrol/coord"
	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/sirupsen/logrus"
)

// Controller command names.
const (
	CmdPowerOn             = "powerOn"
	CmdPowerOff            = "powerOff"
	CmdGetPowerState       = "getPowerState"
	CmdGetSampleMounted    = "getSampleMounted"
	CmdGetGripperState     = "getGripperState"
	CmdSetSamPosOffset     = "setSamPosOffset"
	CmdGetSamPosOffset     = "getSamPosOffset"
	CmdSetSpeed            = "setSpeed"
	CmdGetSpeed            = "getSpeed"
	CmdSampleMounted       = "sampleMounted"
	CmdSampleUnmounted     = "sampleUnmounted"
	CmdGetSpinPosition     = "getSpinPosition"
	CmdGetSpinHomePosition = "getSpinHomePosition"
	CmdGetSpinPosOffset    = "getSpinPosOffset"
	CmdSetSpinPosOffset    = "setSpinPosOffset"
	CmdGetDiffOrigin       = "getDiffOrigin"
	CmdGetDiffRel          = "getDiffRel"
	CmdMoveSamPos          = "moveSamPos"
	CmdMoveGate            = "moveGate"
	CmdMoveSpinPos         = "moveSpinPos"
	CmdMoveParkPos         = "moveParkPos"
	CmdSamplePick          = "samplePick"
	CmdSampleRelease       = "sampleRelease"
	CmdHome                = "home"
)

// Sender performs one framed exchange with the controller.
// *emaprotocol.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, command string) (string, error)
}

// Device exposes typed controller operations on top of a Sender.
type Device struct {
	conn   Sender
	logger logrus.FieldLogger
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithDeviceLogger sets the device logger.
func WithDeviceLogger(logger logrus.FieldLogger) DeviceOption {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDevice creates a device that talks through conn.
func NewDevice(conn Sender, opts ...DeviceOption) *Device {
	d := &Device{conn: conn, logger: discardLogger()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendRaw sends cmd and returns the reply text.
//
// If the controller reports failure and expect is not that exact failure,
// a *DeviceFailure is returned. If expect is non-empty and the reply
// differs from it, an *UnexpectedResponse is returned.
func (d *Device) SendRaw(ctx context.Context, cmd, expect string) (string, error) {
	frame := emaprotocol.Frame(cmd)
	if expect != "" {
		expect = emaprotocol.Frame(expect)
	}

	reply, err := d.conn.Send(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("%s: %w", emaprotocol.CommandName(frame), err)
	}
	reply = strings.TrimSpace(reply)

	if isFailure(reply) && reply != expect {
		d.logger.WithFields(logrus.Fields{"command": frame, "reply": reply}).Warn("robot reported failure")
		return "", &DeviceFailure{Command: frame, Reply: reply}
	}
	if expect != "" && reply != expect {
		return "", &UnexpectedResponse{Command: frame, Expected: expect, Actual: reply}
	}
	return reply, nil
}

// SendCommand sends cmd like SendRaw and parses the reply.
func (d *Device) SendCommand(ctx context.Context, cmd, expect string) (emaprotocol.Response, error) {
	reply, err := d.SendRaw(ctx, cmd, expect)
	if err != nil {
		return emaprotocol.Response{}, err
	}
	return emaprotocol.Parse(reply)
}

// isFailure reports whether the status word of a reply is a failure.
func isFailure(reply string) bool {
	_, body, ok := strings.Cut(reply, emaprotocol.CommandSeparator)
	if !ok {
		return false
	}
	body = strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(body, emaprotocol.StatusFail)
}

// do sends a parameterless command and waits for its acknowledgement.
func (d *Device) do(ctx context.Context, name string) error {
	_, err := d.SendRaw(ctx, name, emaprotocol.Done(name))
	return err
}

func (d *Device) PowerOn(ctx context.Context) error  { return d.do(ctx, CmdPowerOn) }
func (d *Device) PowerOff(ctx context.Context) error { return d.do(ctx, CmdPowerOff) }

// Motion primitives. Each blocks until the controller reports the motion
// complete.

func (d *Device) MoveSamplePosition(ctx context.Context) error  { return d.do(ctx, CmdMoveSamPos) }
func (d *Device) MoveGate(ctx context.Context) error            { return d.do(ctx, CmdMoveGate) }
func (d *Device) MoveSpinnerPosition(ctx context.Context) error { return d.do(ctx, CmdMoveSpinPos) }
func (d *Device) MoveParkPosition(ctx context.Context) error    { return d.do(ctx, CmdMoveParkPos) }
func (d *Device) PickSample(ctx context.Context) error          { return d.do(ctx, CmdSamplePick) }
func (d *Device) ReleaseSample(ctx context.Context) error       { return d.do(ctx, CmdSampleRelease) }
func (d *Device) Home(ctx context.Context) error                { return d.do(ctx, CmdHome) }

// SetSampleMounted tells the controller whether a sample is on the spinner.
func (d *Device) SetSampleMounted(ctx context.Context, mounted bool) error {
	if mounted {
		return d.do(ctx, CmdSampleMounted)
	}
	return d.do(ctx, CmdSampleUnmounted)
}

// SetSampleNumber moves the magazine offset to sample n.
func (d *Device) SetSampleNumber(ctx context.Context, n int) error {
	x, y, err := SampleNumberToXY(n)
	if err != nil {
		return err
	}
	cmd := emaprotocol.NewCommand(CmdSetSamPosOffset).Int("X", x).Int("Y", y)
	d.logger.WithFields(logrus.Fields{"sample": n, "x": x, "y": y}).Debug("setting sample position")
	_, err = d.SendRaw(ctx, cmd.Format(), cmd.Done())
	return err
}

// SampleNumber returns the sample the magazine offset currently points at.
func (d *Device) SampleNumber(ctx context.Context) (int, error) {
	resp, err := d.SendCommand(ctx, CmdGetSamPosOffset, "")
	if err != nil {
		return 0, err
	}
	xy, err := resp.Floats("X", "Y")
	if err != nil {
		return 0, err
	}
	return XYToSampleNumber(xy[0], xy[1])
}

// SetSpeed sets the robot speed as a percentage of its maximum.
func (d *Device) SetSpeed(ctx context.Context, pct float64) error {
	if !(pct > 0 && pct <= 100) {
		return &RangeError{Name: "speed", Value: pct, Min: 0, Max: 100}
	}
	cmd := emaprotocol.NewCommand(CmdSetSpeed).Float("S", pct, -1)
	_, err := d.SendRaw(ctx, cmd.Format(), cmd.Done())
	return err
}

// Speed returns the robot speed percentage.
func (d *Device) Speed(ctx context.Context) (float64, error) {
	resp, err := d.SendCommand(ctx, CmdGetSpeed, "")
	if err != nil {
		return 0, err
	}
	return resp.Float("S")
}

// IsPowered reports whether the arm power is on.
func (d *Device) IsPowered(ctx context.Context) (bool, error) {
	return d.queryState(ctx, CmdGetPowerState, "power", "on", "off")
}

// IsSampleMounted reports whether the controller believes a sample is on
// the spinner.
func (d *Device) IsSampleMounted(ctx context.Context) (bool, error) {
	return d.queryState(ctx, CmdGetSampleMounted, "sample mounted", "yes", "no")
}

// IsGripperClosed reports whether the gripper is closed.
func (d *Device) IsGripperClosed(ctx context.Context) (bool, error) {
	return d.queryState(ctx, CmdGetGripperState, "gripper", "closed", "open")
}

func (d *Device) queryState(ctx context.Context, cmd, param, yes, no string) (bool, error) {
	resp, err := d.SendCommand(ctx, cmd, "")
	if err != nil {
		return false, err
	}
	token, ok := stateToken(resp)
	if !ok {
		return false, &UnknownStateError{Param: param, Token: resp.Raw}
	}
	switch strings.ToLower(token) {
	case yes:
		return true, nil
	case no:
		return false, nil
	default:
		return false, &UnknownStateError{Param: param, Token: token}
	}
}

// stateToken returns the first positional argument of resp, or failing
// that its only string parameter. A reply with several string parameters
// has no token.
func stateToken(resp emaprotocol.Response) (string, bool) {
	if arg, ok := resp.Arg(0); ok {
		return arg.String(), true
	}
	token, found := "", false
	for name, v := range resp.Params {
		if name == emaprotocol.MessageKey || v.Kind() != emaprotocol.KindString {
			continue
		}
		if found {
			return "", false
		}
		token, found = v.String(), true
	}
	return token, found
}

// SpinPosition returns the current pose of the spinner.
func (d *Device) SpinPosition(ctx context.Context) (coord.Pose, error) {
	return d.pose(ctx, CmdGetSpinPosition)
}

// SpinHomePosition returns the calibrated home pose of the spinner.
func (d *Device) SpinHomePosition(ctx context.Context) (coord.Pose, error) {
	return d.pose(ctx, CmdGetSpinHomePosition)
}

// SpinPositionOffset returns the offset applied to the spinner position.
func (d *Device) SpinPositionOffset(ctx context.Context) (coord.Point, error) {
	return d.point(ctx, CmdGetSpinPosOffset)
}

// SetSpinPositionOffset sets the offset applied to the spinner position.
func (d *Device) SetSpinPositionOffset(ctx context.Context, offset coord.Point) error {
	cmd := emaprotocol.NewCommand(CmdSetSpinPosOffset).
		Float("X", offset.X, 3).
		Float("Y", offset.Y, 3).
		Float("Z", offset.Z, 3)
	d.logger.WithField("offset", offset.String()).Debug("setting spinner offset")
	_, err := d.SendRaw(ctx, cmd.Format(), cmd.Done())
	return err
}

// DiffOrigin returns the diffractometer origin in robot coordinates.
func (d *Device) DiffOrigin(ctx context.Context) (coord.Point, error) {
	return d.point(ctx, CmdGetDiffOrigin)
}

// DiffRelative returns the spinner position relative to the diffractometer
// origin.
func (d *Device) DiffRelative(ctx context.Context) (coord.Point, error) {
	return d.point(ctx, CmdGetDiffRel)
}

func (d *Device) point(ctx context.Context, cmd string) (coord.Point, error) {
	resp, err := d.SendCommand(ctx, cmd, "")
	if err != nil {
		return coord.Point{}, err
	}
	xyz, err := resp.Floats("X", "Y", "Z")
	if err != nil {
		return coord.Point{}, err
	}
	return coord.Point{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func (d *Device) pose(ctx context.Context, cmd string) (coord.Pose, error) {
	resp, err := d.SendCommand(ctx, cmd, "")
	if err != nil {
		return coord.Pose{}, err
	}
	v, err := resp.Floats("X", "Y", "Z", "RX", "RY", "RZ")
	if err != nil {
		return coord.Pose{}, err
	}
	return coord.Pose{
		Point: coord.Point{X: v[0], Y: v[1], Z: v[2]},
		RX:    v[3],
		RY:    v[4],
		RZ:    v[5],
	}, nil
}
