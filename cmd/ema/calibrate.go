package main

import (
	"context"
	"fmt"

	"github.com/mtwharmby/emacontrol/calib"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// axesFlags binds the diffractometer axis positions to a command's flags.
type axesFlags struct {
	axes  calib.Axes
	sense int
}

func (f *axesFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&f.axes.SamX, "samx", 0, "Diffractometer samx (mm)")
	fs.Float64Var(&f.axes.SamY, "samy", 0, "Diffractometer samy (mm)")
	fs.Float64Var(&f.axes.SamZ, "samz", 0, "Diffractometer samz (mm)")
	fs.Float64Var(&f.axes.Omega, "omega", 0, "Diffractometer omega (degrees)")
	fs.Float64Var(&f.axes.DiffH, "diffh", 0, "Diffractometer horizontal translation (mm)")
	fs.Float64Var(&f.axes.DiffV, "diffv", 0, "Diffractometer vertical translation (mm)")
	fs.IntVar(&f.sense, "sense", int(calib.Clockwise), "Omega rotation sense: 1 clockwise, -1 counter-clockwise")
}

func (f *axesFlags) value() calib.Axes {
	a := f.axes
	a.Sense = calib.Sense(f.sense)
	return a
}

func newCalibrateCmd(opts *options) *cobra.Command {
	var (
		axes      axesFlags
		setOrigin bool
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Record the diffractometer and spinner calibration positions",
		Long: `Calibrate stores the goniometer head position computed from the given axes
and the robot's current spinner position in the configuration file, then
resets the spinner offset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				c := calib.NewCalibrator(a.device, a.config, a.logger)
				if err := c.CalibrateSpinner(ctx, axes.value(), setOrigin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Calibration saved to %s\n", a.config.Path())
				return nil
			})
		},
	}
	axes.register(cmd.Flags())
	cmd.Flags().BoolVar(&setOrigin, "set-origin", false, "Also record the diffractometer origin in robot coordinates")
	return cmd
}

func newUpdateSpinnerCmd(opts *options) *cobra.Command {
	var axes axesFlags
	cmd := &cobra.Command{
		Use:   "update-spinner",
		Short: "Set the spinner offset from the diffractometer displacement since calibration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				c := calib.NewCalibrator(a.device, a.config, a.logger)
				offset, err := c.UpdateSpinner(ctx, axes.value())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Spinner offset %s\n", offset)
				return nil
			})
		},
	}
	axes.register(cmd.Flags())
	return cmd
}
