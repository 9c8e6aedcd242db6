package main

import (
	"context"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/mtwharmby/emacontrol/emaconfig"
	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/mtwharmby/emacontrol/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath  string
	host        string
	port        int
	timeout     time.Duration
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "ema",
		Short:         "Control the sample changer robot",
		Long:          `ema drives the sample changer robot motion controller over its TCP text protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", emaconfig.DefaultPath(), "Configuration file")
	pf.StringVar(&opts.host, "host", "", "Robot controller address (overrides configuration)")
	pf.IntVar(&opts.port, "port", 0, "Robot controller port (overrides configuration)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Exchange timeout (overrides configuration)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error or off")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(
		newSendCmd(opts),
		newStatusCmd(opts),
		newPowerCmd(opts),
		newSpeedCmd(opts),
		newREPLCmd(opts),
		newBatchCmd(opts),
		newCalibrateCmd(opts),
		newUpdateSpinnerCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app is the wiring behind one command invocation.
type app struct {
	config  *emaconfig.Config
	logger  *logrus.Logger
	client  *emaprotocol.Client
	device  *ema.Device
	robot   *ema.Robot
	metrics *metrics.Server
}

// open loads the configuration, applies environment and flag overrides and
// builds the transport, device and robot.
func (o *options) open(cmd *cobra.Command) (*app, error) {
	cfg, err := emaconfig.LoadOrNew(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Address = o.host
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("timeout") && o.timeout > 0 {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}

	logger := ema.NewLogger(cfg.LogLevel)
	a := &app{config: cfg, logger: logger}

	clientOpts := []emaprotocol.Option{
		emaprotocol.WithResolver(cfg),
		emaprotocol.WithTimeout(cfg.Timeout),
		emaprotocol.WithLogger(logger),
	}
	if o.metricsAddr != "" {
		collector := metrics.NewCollector()
		srv, err := metrics.Serve(o.metricsAddr, collector, logger)
		if err != nil {
			return nil, err
		}
		a.metrics = srv
		clientOpts = append(clientOpts, emaprotocol.WithObserver(collector))
	}

	a.client = emaprotocol.NewClient(emaprotocol.Peer{}, clientOpts...)
	a.device = ema.NewDevice(a.client, ema.WithDeviceLogger(logger))
	a.robot = ema.NewRobot(a.device, logger)
	return a, nil
}

func (a *app) close() {
	a.client.Disconnect()
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("metrics server shutdown")
		}
	}
}

// run opens the app, calls fn and closes the app again.
func (o *options) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
