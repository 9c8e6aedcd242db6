// Command emasim runs a simulated sample changer motion controller on a
// TCP port, for trying out ema without the robot.
//
//	emasim --addr 127.0.0.1:10000 --padding 64
//	ema --host 127.0.0.1 --port 10000 repl
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/mtwharmby/emacontrol/emasim"
	"github.com/spf13/cobra"
)

type simOptions struct {
	addr        string
	padding     int
	chunk       int
	chunkPause  time.Duration
	motionDelay time.Duration
	powerFault  bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	o := &simOptions{}
	cmd := &cobra.Command{
		Use:          "emasim",
		Short:        "Run a simulated sample changer controller",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := o.start()
			if err != nil {
				return err
			}
			defer srv.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Simulated controller listening on %s\n", srv.Addr())
			<-cmd.Context().Done()
			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "127.0.0.1:10000", "Listen address")
	f.IntVar(&o.padding, "padding", 0, "NUL bytes appended to each reply")
	f.IntVar(&o.chunk, "chunk", 0, "Split replies into writes of this many bytes")
	f.DurationVar(&o.chunkPause, "chunk-pause", 10*time.Millisecond, "Pause between reply chunks")
	f.DurationVar(&o.motionDelay, "motion-delay", 0, "Time each motion command takes")
	f.BoolVar(&o.powerFault, "power-fault", false, "Make powerOn fail")
	f.StringVar(&o.logLevel, "log-level", "info", "Log level")
	return cmd
}

func (o *simOptions) start() (*emasim.Server, error) {
	controller := emasim.NewController()
	controller.SetPowerFault(o.powerFault)
	controller.SetMotionDelay(o.motionDelay)

	opts := []emasim.Option{
		emasim.WithLogger(ema.NewLogger(o.logLevel)),
		emasim.WithPadding(o.padding),
	}
	if o.chunk > 0 {
		opts = append(opts, emasim.WithChunking(o.chunk, o.chunkPause))
	}

	srv := emasim.NewServer(controller, opts...)
	if err := srv.Listen(o.addr); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", o.addr, err)
	}
	return srv, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
