package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *options) *cobra.Command {
	var expect string
	cmd := &cobra.Command{
		Use:   "send <command>",
		Short: "Send one raw protocol command and print the reply",
		Long: `Send frames the command, e.g. "powerOn" or "setSpeed:#S50", sends it to the
controller and prints the raw reply. With --expect the reply must match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				reply, err := a.device.SendRaw(ctx, args[0], expect)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "Expected reply, e.g. powerOn:done")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the robot state reported by the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return printStatus(ctx, cmd.OutOrStdout(), a.device)
			})
		},
	}
}

func newPowerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "power on|off",
		Short:     "Switch robot power on or off",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return setPower(ctx, cmd.OutOrStdout(), a.device, args[0])
			})
		},
	}
}

func newSpeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "speed [percent]",
		Short: "Show or set the motion speed as a percentage of maximum",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return speed(ctx, cmd.OutOrStdout(), a.device, args)
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ema",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), fullTitle())
		},
	}
}

func setPower(ctx context.Context, w io.Writer, dev *ema.Device, state string) error {
	var err error
	switch strings.ToLower(state) {
	case "on":
		err = dev.PowerOn(ctx)
	case "off":
		err = dev.PowerOff(ctx)
	default:
		return fmt.Errorf("power state must be on or off, got %q", state)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Power %s\n", strings.ToLower(state))
	return nil
}

func speed(ctx context.Context, w io.Writer, dev *ema.Device, args []string) error {
	if len(args) > 0 {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid speed %q", args[0])
		}
		if err := dev.SetSpeed(ctx, pct); err != nil {
			return err
		}
	}
	pct, err := dev.Speed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Speed %g%%\n", pct)
	return nil
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

// printStatus queries the controller and prints one line per value.
func printStatus(ctx context.Context, w io.Writer, dev *ema.Device) error {
	powered, err := dev.IsPowered(ctx)
	if err != nil {
		return err
	}
	mounted, err := dev.IsSampleMounted(ctx)
	if err != nil {
		return err
	}
	gripper, err := dev.IsGripperClosed(ctx)
	if err != nil {
		return err
	}
	pct, err := dev.Speed(ctx)
	if err != nil {
		return err
	}
	sample, err := dev.SampleNumber(ctx)
	if err != nil {
		return err
	}
	spin, err := dev.SpinPosition(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Power:\t%s\n", onOff(powered, "on", "off"))
	fmt.Fprintf(tw, "Sample mounted:\t%s\n", onOff(mounted, "yes", "no"))
	fmt.Fprintf(tw, "Gripper:\t%s\n", onOff(gripper, "closed", "open"))
	fmt.Fprintf(tw, "Speed:\t%g%%\n", pct)
	fmt.Fprintf(tw, "Sample position:\t%d\n", sample)
	fmt.Fprintf(tw, "Spinner position:\t%s\n", spin)
	return tw.Flush()
}
