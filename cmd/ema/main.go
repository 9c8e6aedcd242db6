// Command ema controls the sample-changer robot from the terminal.
//
// Usage:
//
//	ema status                     Show power, gripper and sample state
//	ema power on|off               Switch robot power
//	ema speed [percent]            Show or set the motion speed
//	ema send <command>             Send one raw protocol command
//	ema repl                       Interactive session (mount, unmount, ...)
//	ema batch --manifest f.yaml    Mount every sample listed for a session
//	ema calibrate --samx ...       Record the spinner calibration
//	ema update-spinner --samx ...  Re-align the spinner after a move
//
// The robot address comes from ~/.robot.ini, the EMA_* environment
// variables (also read from ./.env) or the --host and --port flags, in
// increasing order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const (
	version   = "0.3.0"
	appName   = "EMA Control"
	copyright = "Copyright (c) 2019-2026"
)

func fullTitle() string {
	return fmt.Sprintf("%s v%s", appName, version)
}

func welcomeBanner() string {
	return fmt.Sprintf(`%s - sample changer robot
%s

Type '.help' for available commands.
Type '.quit' to exit.
`, fullTitle(), copyright)
}

// loadDotEnv reads environment overrides from path. A missing file is not
// an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		printError(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(err.Error())
		stop()
		os.Exit(1)
	}
}
