package main

import (
	"fmt"
	"io"
	"strings"
)

const helpOverview = `Session:
  begin             Power on and prepare for sample exchange (alias: start)
  end               Power off; resets the magazine offset if no sample is mounted (alias: stop)
  mount <n>         Mount sample n (1-300) on the spinner (alias: m)
  unmount           Return the mounted sample to the magazine (alias: u)
  state             Show the sample exchange state (alias: st)

Controller:
  status            Show power, gripper, speed and positions (alias: s)
  power on|off      Switch robot power
  speed [percent]   Show or set the motion speed
  home              Move the arm to its home position
  offset            Show the spinner position offset
  send <cmd> [exp]  Send a raw command, optionally expecting a reply (alias: raw)
  <frame>;          A line ending in ';' is sent as a raw command

Other:
  .help [cmd]       Show help (or help for a specific command)
  .quit             Power off if started and exit (aliases: quit, exit, q)
`

var helpTopics = map[string]string{
	"begin": `  begin
    Read the magazine offset and power the robot on. A warning is logged
    if the offset is not at sample 1, which usually means a sample was
    left on the spinner.`,

	"end": `  end
    Power the robot off. If no sample is mounted, the magazine offset is
    reset to sample 1.`,

	"mount": `  mount <n>
    Set the magazine offset to sample n, pick it, carry it through the
    gate and release it on the spinner. If a step fails, fix the cause
    and run mount again with the same n to resume.

    Example: mount 42`,

	"unmount": `  unmount
    Pick the mounted sample from the spinner and return it to its
    magazine position.`,

	"state": `  state
    Show whether the robot was started, the exchange state, the current
    sample, whether the gripper holds a sample and any pending command.`,

	"status": `  status
    Query the controller for power, sample mounted, gripper, speed,
    magazine position and spinner position.`,

	"power": `  power on|off
    Switch robot power without changing the exchange state.`,

	"speed": `  speed [percent]
    Show the motion speed, or set it first. The value must be above 0
    and at most 100.

    Example: speed 50`,

	"home": `  home
    Move the arm to its home position.`,

	"offset": `  offset
    Show the Cartesian offset applied to the spinner position.`,

	"send": `  send <command> [expect]
    Frame and send a raw protocol command and print the reply. With
    expect the reply must match. A line ending in ';' is sent directly.

    Examples: send getSpeed
              setSpeed:#S50;`,

	"help": `  .help [command]
    Show the command overview, or help for one command.`,

	"quit": `  .quit
    Power the robot off if it was started and leave the session.`,
}

// printHelp writes the overview, or the help for topic, to w. An unknown
// topic is reported on errOut.
func printHelp(w, errOut io.Writer, topic string) {
	if topic == "" {
		fmt.Fprint(w, helpOverview)
		return
	}

	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(topic)), ".")
	if canonical, ok := aliases[key]; ok {
		key = strings.TrimPrefix(canonical, ".")
	}
	if text, ok := helpTopics[key]; ok {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintf(errOut, "Error: No help for '%s'. Type .help to see available commands.\n", topic)
}
