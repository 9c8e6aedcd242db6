// Package calib aligns the robot's spinner position with the
// diffractometer goniometer head.
//
// At calibration time the diffractometer axes and the robot's spinner
// position are recorded. Later, when the diffractometer has moved, the
// spinner offset is set to the Cartesian displacement of the goniometer
// head since calibration.
package calib

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/mtwharmby/emacontrol/coord"
	"github.com/sirupsen/logrus"
)

// Names of the positions kept in the position store.
const (
	DiffrCalibPosition  = "diffr_calib_xyz"
	SpinCalibPosition   = "spin_calib_xyz"
	DiffrRobotOrigin    = "diffr_robot_origin"
	coordinatePrecision = 3
)

// Sense is the direction of omega rotation seen facing the diffractometer.
type Sense int

const (
	Clockwise        Sense = 1
	CounterClockwise Sense = -1
)

// Axes holds diffractometer axis positions. Lengths are in mm, omega in
// degrees.
type Axes struct {
	SamX, SamY, SamZ float64
	Omega            float64
	DiffH, DiffV     float64

	// Sense defaults to Clockwise when zero.
	Sense Sense
}

func (a Axes) sense() (float64, error) {
	switch a.Sense {
	case 0, Clockwise:
		return 1, nil
	case CounterClockwise:
		return -1, nil
	default:
		return 0, fmt.Errorf("invalid rotation sense %d: must be 1 or -1", a.Sense)
	}
}

// DiffrToXYZ converts diffractometer axis positions to the Cartesian
// position of the goniometer head, rounded to the micron.
//
// At omega 0, z runs along the beam, x is outboard (parallel to DiffH) and
// y is upward (parallel to DiffV).
func DiffrToXYZ(a Axes) (coord.Point, error) {
	sense, err := a.sense()
	if err != nil {
		return coord.Point{}, err
	}
	rad := -sense * a.Omega * math.Pi / 180
	sin, cos := math.Sincos(rad)

	p := coord.Point{
		X: a.SamX + a.DiffH,
		Y: a.SamY*cos - a.SamZ*sin + a.DiffV,
		Z: a.SamY*sin + a.SamZ*cos,
	}
	return p.Round(coordinatePrecision), nil
}

// SpinnerDevice is the part of the robot the calibration talks to.
type SpinnerDevice interface {
	SpinPosition(ctx context.Context) (coord.Pose, error)
	SetSpinPositionOffset(ctx context.Context, offset coord.Point) error
}

// PositionStore persists named positions between runs.
type PositionStore interface {
	Position(name string) (coord.Point, error)
	SetPosition(name string, p coord.Point) error
}

// Calibrator keeps the spinner aligned with the diffractometer.
type Calibrator struct {
	dev    SpinnerDevice
	store  PositionStore
	logger logrus.FieldLogger
}

// NewCalibrator creates a calibrator. A nil logger discards output.
func NewCalibrator(dev SpinnerDevice, store PositionStore, logger logrus.FieldLogger) *Calibrator {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Calibrator{dev: dev, store: store, logger: logger}
}

// CalibrateSpinner records the current diffractometer position and spinner
// position as the calibration reference. With setOrigin the diffractometer
// origin in robot coordinates is recorded as well. The spinner offset is
// then recomputed, which with unchanged axes resets it to zero.
func (c *Calibrator) CalibrateSpinner(ctx context.Context, a Axes, setOrigin bool) error {
	diffr, err := DiffrToXYZ(a)
	if err != nil {
		return err
	}
	if err := c.store.SetPosition(DiffrCalibPosition, diffr); err != nil {
		return fmt.Errorf("store %s: %w", DiffrCalibPosition, err)
	}

	spin, err := c.dev.SpinPosition(ctx)
	if err != nil {
		return fmt.Errorf("read spinner position: %w", err)
	}
	if err := c.store.SetPosition(SpinCalibPosition, spin.Point); err != nil {
		return fmt.Errorf("store %s: %w", SpinCalibPosition, err)
	}

	if setOrigin {
		origin := spin.Point.Sub(diffr).Round(coordinatePrecision)
		if err := c.store.SetPosition(DiffrRobotOrigin, origin); err != nil {
			return fmt.Errorf("store %s: %w", DiffrRobotOrigin, err)
		}
		c.logger.WithField("origin", origin.String()).Info("diffractometer origin recorded")
	}

	c.logger.WithFields(logrus.Fields{
		"diffr": diffr.String(),
		"spin":  spin.Point.String(),
	}).Info("spinner calibrated")

	_, err = c.UpdateSpinner(ctx, a)
	return err
}

// UpdateSpinner sets the spinner offset to the displacement of the
// goniometer head from its calibrated position, and returns that offset.
func (c *Calibrator) UpdateSpinner(ctx context.Context, a Axes) (coord.Point, error) {
	diffr, err := DiffrToXYZ(a)
	if err != nil {
		return coord.Point{}, err
	}
	calib, err := c.store.Position(DiffrCalibPosition)
	if err != nil {
		return coord.Point{}, fmt.Errorf("load %s: %w", DiffrCalibPosition, err)
	}

	offset := diffr.Sub(calib).Round(coordinatePrecision)
	if err := c.dev.SetSpinPositionOffset(ctx, offset); err != nil {
		return coord.Point{}, fmt.Errorf("set spinner offset: %w", err)
	}
	c.logger.WithField("offset", offset.String()).Info("spinner offset updated")
	return offset, nil
}
