package ema

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// motion is one controller step performed while the session moves between
// two statuses.
type motion func(ctx context.Context, d *Device) error

func sendDone(name string) motion {
	return func(ctx context.Context, d *Device) error { return d.do(ctx, name) }
}

// motions lists what the arm does for each transition. The magazine offset
// for a mount is set separately, before Ready to Picking.
var motions = map[transitionKey][]motion{
	{Ready, Mount}:     {sendDone(CmdMoveSamPos)},
	{Picking, Mount}:   {sendDone(CmdSamplePick)},
	{Moving, Mount}:    {sendDone(CmdMoveGate), sendDone(CmdMoveSpinPos), sendDone(CmdSampleRelease)},
	{Parking, Mount}:   {sendDone(CmdMoveParkPos), sendDone(CmdSampleMounted)},
	{Parked, Unmount}:  {sendDone(CmdMoveSpinPos)},
	{Picking, Unmount}: {sendDone(CmdSamplePick)},
	{Moving, Unmount}:  {sendDone(CmdMoveGate), sendDone(CmdMoveSamPos), sendDone(CmdSampleRelease)},
	{Parking, Unmount}: {sendDone(CmdSampleUnmounted)},
}

// Robot drives a Session with a Device: each session transition is carried
// out on the arm before the session advances, so the session always
// reflects the last completed motion.
type Robot struct {
	dev     *Device
	session *Session
	logger  logrus.FieldLogger
	started bool
	sample  int
}

// NewRobot creates a robot workflow with a fresh session. Begin must be
// called before mounting or unmounting.
func NewRobot(dev *Device, logger logrus.FieldLogger) *Robot {
	if logger == nil {
		logger = discardLogger()
	}
	return &Robot{
		dev:     dev,
		session: NewSession(),
		logger:  logger,
		sample:  MinSample,
	}
}

func (r *Robot) Device() *Device   { return r.dev }
func (r *Robot) Session() *Session { return r.session }
func (r *Robot) Started() bool     { return r.started }

// Sample returns the sample number the magazine offset was last set to.
func (r *Robot) Sample() int { return r.sample }

// Begin prepares the robot for a sample exchange run and powers it on.
// A magazine offset other than sample 1 is reported as a warning, since it
// usually means a sample was left on the spinner.
func (r *Robot) Begin(ctx context.Context) error {
	n, err := r.dev.SampleNumber(ctx)
	if err != nil {
		return fmt.Errorf("read sample position: %w", err)
	}
	r.sample = n
	if n != MinSample {
		r.logger.WithField("sample", n).Warn("current sample is not 1; check the spinner and unmount any sample before continuing")
	}

	r.logger.Info("starting sample changer")
	if err := r.dev.PowerOn(ctx); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	r.started = true
	return nil
}

// End powers the robot off. If no sample is on the spinner, the magazine
// offset is reset to sample 1 for the next run.
func (r *Robot) End(ctx context.Context) error {
	r.logger.Info("powering off sample changer")
	if err := r.dev.PowerOff(ctx); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	r.started = false

	if r.session.Status() == Ready && r.sample != MinSample {
		if err := r.dev.SetSampleNumber(ctx, MinSample); err != nil {
			return fmt.Errorf("reset sample position: %w", err)
		}
		r.sample = MinSample
	}
	return nil
}

// Mount moves sample n from the magazine onto the spinner. A mount that
// failed part way can be resumed by calling Mount again with the same n;
// any other n is refused with a *MountInProgressError.
func (r *Robot) Mount(ctx context.Context, n int) error {
	if !r.started {
		return ErrNotStarted
	}
	if _, _, err := SampleNumberToXY(n); err != nil {
		return err
	}
	if r.session.Status() != Ready && r.session.Pending() == Mount && n != r.sample {
		return &MountInProgressError{Sample: r.sample, Requested: n}
	}
	if _, err := r.session.Next(Mount); err != nil {
		return err
	}

	log := r.logger.WithField("sample", n)
	log.Info("mounting sample")
	if r.session.Status() == Ready {
		if err := r.dev.SetSampleNumber(ctx, n); err != nil {
			return fmt.Errorf("mount sample %d: %w", n, err)
		}
		r.sample = n
	}
	if err := r.drive(ctx, Mount, Parked, log); err != nil {
		return fmt.Errorf("mount sample %d: %w", n, err)
	}
	log.Info("sample mounted")
	return nil
}

// Unmount returns the sample on the spinner to its magazine position.
func (r *Robot) Unmount(ctx context.Context) error {
	if !r.started {
		return ErrNotStarted
	}
	if _, err := r.session.Next(Unmount); err != nil {
		return err
	}

	log := r.logger.WithField("sample", r.sample)
	log.Info("unmounting sample")
	if err := r.drive(ctx, Unmount, Ready, log); err != nil {
		return fmt.Errorf("unmount sample %d: %w", r.sample, err)
	}
	log.Info("sample unmounted")
	return nil
}

// drive runs cmd until the session reaches target. The motions of each
// transition complete before the session is advanced.
func (r *Robot) drive(ctx context.Context, cmd UserCommand, target Status, log logrus.FieldLogger) error {
	for r.session.Status() != target {
		from := r.session.Status()
		to, err := r.session.Next(cmd)
		if err != nil {
			return err
		}
		for _, m := range motions[transitionKey{from, cmd}] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m(ctx, r.dev); err != nil {
				return fmt.Errorf("%s: %w", to, err)
			}
		}
		if err := r.session.Submit(cmd); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Info("robot state changed")
	}
	return nil
}
