package ema

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the logger shared by the device, the robot workflow and
// the transport. Level "off" or "none" discards all output; an unknown level
// falls back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()

	if level == "off" || level == "none" {
		logger.SetOutput(io.Discard)
	} else {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		logger.SetLevel(lvl)
		logger.SetOutput(os.Stderr)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger
}

func discardLogger() *logrus.Logger {
	return NewLogger("off")
}
