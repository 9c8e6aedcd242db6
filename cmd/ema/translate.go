package main

import (
	"strings"

	"github.com/mtwharmby/emacontrol/emaprotocol"
)

// replCommand is one parsed REPL line.
type replCommand struct {
	name string
	args []string
}

// aliases maps short forms onto REPL command names.
var aliases = map[string]string{
	"m":     "mount",
	"u":     "unmount",
	"s":     "status",
	"st":    "state",
	"start": "begin",
	"stop":  "end",
	"raw":   "send",
	"quit":  ".quit",
	"exit":  ".quit",
	"q":     ".quit",
	"help":  ".help",
	"?":     ".help",
}

// translateLine splits a REPL line into a command and its arguments.
// A line that looks like a protocol frame ("getSpeed;" or
// "setSpeed:#S50") is sent as is. It returns false for a blank line.
//
//	"m 12"           → mount [12]
//	"power ON"       → power [on]
//	"getSpeed;"      → send [getSpeed;]
//	".help mount"    → .help [mount]
func translateLine(line string) (replCommand, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return replCommand{}, false
	}

	if isFrame(line) {
		return replCommand{name: "send", args: []string{line}}, true
	}

	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	args := fields[1:]
	if name == "power" {
		for i := range args {
			args[i] = strings.ToLower(args[i])
		}
	}
	return replCommand{name: name, args: args}, true
}

func isFrame(line string) bool {
	if strings.ContainsAny(line, " \t") {
		return false
	}
	return strings.HasSuffix(line, emaprotocol.Delimiter) ||
		strings.Contains(line, emaprotocol.CommandSeparator+emaprotocol.ParamPrefix)
}
