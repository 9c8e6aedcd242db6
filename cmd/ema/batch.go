package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/mtwharmby/emacontrol/manifest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type batchOptions struct {
	manifestPath string
	measurement  string
	session      int
	delta        int
	dwell        time.Duration
	dryRun       bool
}

func newBatchCmd(opts *options) *cobra.Command {
	b := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Mount every sample listed in a manifest in turn",
		Long: `Batch loads a sample manifest, selects the session dated closest to today
(or the one given with --session) and mounts, holds for --dwell and unmounts
each sample of the chosen measurement type in magazine order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := b.queue(time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if b.dryRun {
				printQueue(out, queue)
				return nil
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return runBatch(ctx, out, a.robot, a.logger, queue, b.dwell)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&b.manifestPath, "manifest", "m", "", "Sample manifest (YAML)")
	f.StringVar(&b.measurement, "measurement", manifest.PXRD, "Measurement type: PXRD or PDF")
	f.IntVar(&b.session, "session", 0, "Session id (default: the session nearest today)")
	f.IntVar(&b.delta, "delta", 1, "Days either side of today to look for a session")
	f.DurationVar(&b.dwell, "dwell", 0, "Time to hold each sample on the spinner")
	f.BoolVar(&b.dryRun, "dry-run", false, "Print the queue without moving the robot")
	cmd.MarkFlagRequired("manifest")
	return cmd
}

func (b *batchOptions) queue(now time.Time) ([]manifest.Entry, error) {
	m, err := manifest.Load(b.manifestPath)
	if err != nil {
		return nil, err
	}

	var s *manifest.Session
	if b.session != 0 {
		s, err = m.Session(b.session)
	} else {
		s, err = m.SessionNear(now, b.delta)
	}
	if err != nil {
		return nil, err
	}
	return s.Queue(b.measurement)
}

func printQueue(w io.Writer, queue []manifest.Entry) {
	for _, e := range queue {
		fmt.Fprintf(w, "%3d  %-24s application %d\n", e.Position, e.Name, e.Application)
	}
}

// runBatch mounts each queued sample, waits dwell and unmounts it. The robot
// is powered off at the end even when the run is cancelled.
func runBatch(ctx context.Context, w io.Writer, robot *ema.Robot, logger logrus.FieldLogger, queue []manifest.Entry, dwell time.Duration) (err error) {
	if err := robot.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if endErr := robot.End(context.WithoutCancel(ctx)); endErr != nil && err == nil {
			err = endErr
		}
	}()

	for i, e := range queue {
		log := logger.WithFields(logrus.Fields{"sample": e.Position, "name": e.Name})
		fmt.Fprintf(w, "[%d/%d] %d %s\n", i+1, len(queue), e.Position, e.Name)

		if err := robot.Mount(ctx, e.Position); err != nil {
			return err
		}
		log.Info("sample mounted")

		if dwell > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dwell):
			}
		}

		if err := robot.Unmount(ctx); err != nil {
			return err
		}
		log.Info("sample unmounted")
	}
	fmt.Fprintf(w, "%d sample(s) done\n", len(queue))
	return nil
}
