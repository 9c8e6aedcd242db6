package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp wires a device and robot to the fixture's simulator.
func newTestApp(t *testing.T, f *cliFixture) *app {
	t.Helper()
	logger := quietLogger()
	client := emaprotocol.NewClient(f.srv.Peer(), emaprotocol.WithTimeout(2*time.Second))
	dev := ema.NewDevice(client, ema.WithDeviceLogger(logger))
	return &app{logger: logger, client: client, device: dev, robot: ema.NewRobot(dev, logger)}
}

type replOutput struct {
	out, err bytes.Buffer
}

// runScript feeds input to a REPL session and returns what it printed.
func runScript(t *testing.T, f *cliFixture, input string) (*replOutput, *app) {
	t.Helper()
	a := newTestApp(t, f)
	o := &replOutput{}
	r := &repl{robot: a.robot, out: &o.out, errOut: &o.err}
	editor := newScannerEditor(strings.NewReader(input), &o.out)
	require.NoError(t, r.loop(context.Background(), editor))
	return o, a
}

func TestREPLPrompt(t *testing.T) {
	f := newCLIFixture(t)
	a := newTestApp(t, f)
	r := &repl{robot: a.robot}

	assert.Equal(t, "[stopped] > ", r.prompt())
	require.NoError(t, a.robot.Begin(context.Background()))
	assert.Equal(t, "[ready] > ", r.prompt())
}

func TestREPLMountUnmount(t *testing.T) {
	f := newCLIFixture(t)
	o, a := runScript(t, f, "begin\nm 42\nstate\nunmount\n.quit\n")

	out := o.out.String()
	assert.Contains(t, out, "Robot started at sample 1")
	assert.Contains(t, out, "Sample 42 mounted")
	assert.Contains(t, out, `status="parked" sample=42`)
	assert.Contains(t, out, "Sample 42 unmounted")
	assert.Contains(t, out, "[parked] > ")
	assert.Empty(t, o.err.String())

	// Leaving the REPL powers the robot off.
	assert.False(t, a.robot.Started())
	assert.False(t, f.controller.Powered())
}

func TestREPLErrorsDoNotEndSession(t *testing.T) {
	f := newCLIFixture(t)
	o, _ := runScript(t, f, "mount 1\nbegin\nmount 0\nmount abc\nunmount\nfly\npower\n")

	errs := o.err.String()
	assert.Contains(t, errs, ema.ErrNotStarted.Error())
	assert.Contains(t, errs, "outside the range")
	assert.Contains(t, errs, "must be an integer")
	assert.Contains(t, errs, "cannot unmount while robot is ready")
	assert.Contains(t, errs, `unknown command "fly"`)
	assert.Contains(t, errs, "wrong number of arguments for power")
	assert.Equal(t, 6, strings.Count(errs, "Error:"))
}

func TestREPLRawFrames(t *testing.T) {
	f := newCLIFixture(t)
	o, _ := runScript(t, f, "getSpeed;\nsetSpeed:#S25\nsend getSpeed\n")

	out := o.out.String()
	assert.Contains(t, out, "getSpeed:#S100.000;")
	assert.Contains(t, out, "setSpeed:done;")
	assert.Contains(t, out, "getSpeed:#S25.000;")
}

func TestREPLControllerCommands(t *testing.T) {
	f := newCLIFixture(t)
	o, _ := runScript(t, f, "power on\nspeed 40\nhome\noffset\ns\npower off\n")

	out := o.out.String()
	assert.Contains(t, out, "Power on")
	assert.Contains(t, out, "Speed 40%")
	assert.Contains(t, out, "Robot homed")
	assert.Contains(t, out, "Spinner offset (0.000, 0.000, 0.000)")
	assert.Contains(t, out, "Gripper:")
	assert.Contains(t, out, "Power off")
	assert.Empty(t, o.err.String())
}

func TestREPLHelp(t *testing.T) {
	f := newCLIFixture(t)
	o, _ := runScript(t, f, ".help\nhelp m\n.help nothing\n")

	assert.Contains(t, o.out.String(), "mount <n>")
	assert.Contains(t, o.out.String(), "resume")
	assert.Contains(t, o.err.String(), "No help for 'nothing'")
}

func TestREPLEndOfInput(t *testing.T) {
	f := newCLIFixture(t)
	o, a := runScript(t, f, "begin")
	assert.Contains(t, o.out.String(), "Robot started")
	assert.False(t, a.robot.Started())
}

func TestREPLCancelled(t *testing.T) {
	f := newCLIFixture(t)
	a := newTestApp(t, f)
	var out bytes.Buffer
	r := &repl{robot: a.robot, out: &out, errOut: &out}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.loop(ctx, newScannerEditor(strings.NewReader("power on\n"), &out)))
	assert.False(t, f.controller.Powered())
}
