package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/spf13/cobra"
)

// lineReader is the part of LineEditor the REPL loop needs.
type lineReader interface {
	GetLine(prompt string) (string, error)
}

// repl holds the state of one interactive session.
type repl struct {
	robot  *ema.Robot
	out    io.Writer
	errOut io.Writer
}

type replHandler struct {
	minArgs, maxArgs int
	run              func(r *repl, ctx context.Context, args []string) error
}

var replHandlers = map[string]replHandler{
	"begin":   {0, 0, (*repl).begin},
	"end":     {0, 0, (*repl).end},
	"mount":   {1, 1, (*repl).mount},
	"unmount": {0, 0, (*repl).unmount},
	"status":  {0, 0, (*repl).status},
	"state":   {0, 0, (*repl).state},
	"power":   {1, 1, (*repl).power},
	"speed":   {0, 1, (*repl).speed},
	"home":    {0, 0, (*repl).home},
	"offset":  {0, 0, (*repl).offset},
	"send":    {1, 2, (*repl).send},
}

func newREPLCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				editor := NewLineEditor()
				defer editor.Close()

				fmt.Fprint(cmd.OutOrStdout(), welcomeBanner())
				fmt.Fprintln(cmd.OutOrStdout())
				r := &repl{robot: a.robot, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
				return r.loop(ctx, editor)
			})
		},
	}
}

// prompt shows the robot state.
func (r *repl) prompt() string {
	if !r.robot.Started() {
		return "[stopped] > "
	}
	return fmt.Sprintf("[%s] > ", r.robot.Session().Status())
}

// loop reads and executes lines until end of input, .quit or cancellation.
// A started robot is powered off on the way out.
func (r *repl) loop(ctx context.Context, in lineReader) error {
	defer func() {
		if r.robot.Started() {
			if err := r.robot.End(context.WithoutCancel(ctx)); err != nil {
				fmt.Fprintf(r.errOut, "Error: %v\n", err)
			}
		}
	}()

	for ctx.Err() == nil {
		line, err := in.GetLine(r.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		cmd, ok := translateLine(line)
		if !ok {
			continue
		}
		if cmd.name == ".quit" {
			return nil
		}
		if err := r.execute(ctx, cmd); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
	}
	return nil
}

func (r *repl) execute(ctx context.Context, cmd replCommand) error {
	if cmd.name == ".help" {
		printHelp(r.out, r.errOut, strings.Join(cmd.args, " "))
		return nil
	}

	h, ok := replHandlers[cmd.name]
	if !ok {
		return fmt.Errorf("unknown command %q. Type .help to see available commands", cmd.name)
	}
	if n := len(cmd.args); n < h.minArgs || n > h.maxArgs {
		return fmt.Errorf("wrong number of arguments for %s. Type .help %s", cmd.name, cmd.name)
	}
	return h.run(r, ctx, cmd.args)
}

func (r *repl) begin(ctx context.Context, _ []string) error {
	if err := r.robot.Begin(ctx); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Robot started at sample %d\n", r.robot.Sample())
	return nil
}

func (r *repl) end(ctx context.Context, _ []string) error {
	if err := r.robot.End(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Robot stopped")
	return nil
}

func (r *repl) mount(ctx context.Context, args []string) error {
	n, err := ema.ParseSampleNumber(args[0])
	if err != nil {
		return err
	}
	if err := r.robot.Mount(ctx, n); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Sample %d mounted\n", n)
	return nil
}

func (r *repl) unmount(ctx context.Context, _ []string) error {
	n := r.robot.Sample()
	if err := r.robot.Unmount(ctx); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Sample %d unmounted\n", n)
	return nil
}

func (r *repl) status(ctx context.Context, _ []string) error {
	return printStatus(ctx, r.out, r.robot.Device())
}

func (r *repl) state(_ context.Context, _ []string) error {
	s := r.robot.Session()
	fmt.Fprintf(r.out, "started=%t status=%q sample=%d gripper_loaded=%t mounted=%t pending=%s\n",
		r.robot.Started(), s.Status(), r.robot.Sample(), s.HasSample(), s.SampleMounted(), s.Pending())
	return nil
}

func (r *repl) power(ctx context.Context, args []string) error {
	return setPower(ctx, r.out, r.robot.Device(), args[0])
}

func (r *repl) speed(ctx context.Context, args []string) error {
	return speed(ctx, r.out, r.robot.Device(), args)
}

func (r *repl) home(ctx context.Context, _ []string) error {
	if err := r.robot.Device().Home(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Robot homed")
	return nil
}

func (r *repl) offset(ctx context.Context, _ []string) error {
	offset, err := r.robot.Device().SpinPositionOffset(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Spinner offset %s\n", offset)
	return nil
}

func (r *repl) send(ctx context.Context, args []string) error {
	expect := ""
	if len(args) > 1 {
		expect = args[1]
	}
	reply, err := r.robot.Device().SendRaw(ctx, args[0], expect)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, reply)
	return nil
}
