package emaprotocol

import (
	"strings"
	"time"
)

// Protocol constants used by the VAL3 controller.
const (
	// Delimiter terminates every frame in both directions.
	Delimiter = ";"

	// CommandSeparator separates the command name from the body of a frame.
	CommandSeparator = ":"

	// ParamPrefix starts each parameter group in a frame body.
	ParamPrefix = "#"

	// MessageSeparator separates a status word from its message, and a
	// parameter name from a string value.
	MessageSeparator = "_"

	// MessageKey is the parameter key under which a status message is stored.
	MessageKey = "msg"

	// StatusOK is the implicit status of a parameter reply.
	StatusOK = "ok"

	// StatusDone acknowledges a completed command.
	StatusDone = "done"

	// StatusFail reports a command the controller could not execute.
	StatusFail = "fail"

	// RecvChunkSize is the size of each read from the socket.
	RecvChunkSize = 1024

	// DefaultTimeout bounds the send and the receive half of an exchange.
	// Motion commands only reply once the robot has stopped moving.
	DefaultTimeout = 60 * time.Second

	// ConnectionTimeout bounds establishing the TCP stream.
	ConnectionTimeout = 5 * time.Second
)

// Exchange phases reported by TimeoutError.
const (
	OpSend    = "send"
	OpReceive = "receive"
)

// Frame returns cmd terminated by the frame delimiter. A command that is
// already terminated is returned unchanged.
func Frame(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if strings.HasSuffix(cmd, Delimiter) {
		return cmd
	}
	return cmd + Delimiter
}

// CommandName returns the command name of a frame, i.e. the text before the
// command separator or the delimiter.
func CommandName(frame string) string {
	frame = strings.TrimSpace(frame)
	if i := strings.IndexAny(frame, CommandSeparator+Delimiter); i >= 0 {
		return frame[:i]
	}
	return frame
}

// Done returns the acknowledgement the controller sends when command has
// completed, e.g. "moveGate:done;".
func Done(command string) string {
	return CommandName(command) + CommandSeparator + StatusDone + Delimiter
}
