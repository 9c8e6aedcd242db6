// Package emaprotocol implements the text protocol spoken by the VAL3
// motion controller of the EMA sample-exchange robot.
//
// # Protocol Overview
//
// Every message is a single frame terminated by a semicolon. The client
// opens a TCP stream for each exchange, writes one command frame, reads one
// reply frame and closes the stream again.
//
//	Command:          <name>;
//	Command + params: <name>:#<param><value>#<param><value>...;
//	Status reply:     <name>:<status>[_<message>];
//	Parameter reply:  <name>:#<param1><value1>#<param2><value2>...;
//
// Example exchanges:
//
//	CLI: setSamPosOffset:#X7#Y4;
//	CTL: setSamPosOffset:done;
//	CLI: getPowerState;
//	CTL: getPowerState:#On;
//	CLI: powerOn;
//	CTL: powerOn:fail_'RobotPowerCannotBeSwitched';
//
// # Basic Usage
//
//	client := emaprotocol.NewClient(emaprotocol.Peer{Host: "10.0.0.5", Port: 10005},
//	    emaprotocol.WithTimeout(30*time.Second))
//
//	raw, err := client.Send(ctx, "getSAM")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := emaprotocol.Parse(raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	x, _ := resp.Float("X")
//
// # Reply Grammar
//
// A parameter list is a sequence of '#' groups. Each group is a name made of
// letters followed by a signed decimal number, by '_' and a (possibly
// single-quoted) string, or by nothing. A group without a value stores its
// name as a positional argument, so "getPowerState:#On;" yields Args[0] ==
// "On". Numbers with no fractional part are decoded as integers.
//
// # Thread Safety
//
// The Client type is safe for concurrent use. Exchanges are serialised: a
// caller blocks until the exchange in flight has completed or timed out.
package emaprotocol
