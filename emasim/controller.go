// Package emasim simulates the sample changer's motion controller. It
// speaks the same wire protocol as the real controller and keeps a small
// in-memory model of the arm, so the client can be exercised without
// hardware.
package emasim

import (
	"strings"
	"sync"
	"time"

	"github.com/mtwharmby/emacontrol/coord"
	"github.com/mtwharmby/emacontrol/emaprotocol"
)

// Failure messages reported by the simulated controller.
const (
	MsgPowerCannotBeSwitched = "RobotPowerCannotBeSwitched"
	MsgPowerOff              = "RobotPowerOff"
	MsgUnknownCommand        = "UnknownCommand"
	MsgInvalidParameter      = "InvalidParameter"
	MsgGripperEmpty          = "GripperEmpty"
	MsgGripperFull           = "GripperFull"
)

const (
	magazineColumns = 30
	magazineRows    = 10
)

// Controller is the in-memory model of the motion controller. It is safe
// for concurrent use.
type Controller struct {
	mu sync.Mutex

	powered       bool
	sampleMounted bool
	gripperClosed bool
	speed         float64
	samX, samY    int

	spinHome   coord.Pose
	spinOffset coord.Point
	diffOrigin coord.Point
	diffRel    coord.Point

	powerFault  bool
	motionDelay time.Duration
	history     []string
}

// NewController returns a powered-off controller with the magazine at
// sample 1 and the speed at 100%.
func NewController() *Controller {
	return &Controller{
		speed:      100,
		spinHome:   coord.Pose{Point: coord.Point{X: 250, Y: -120, Z: 310}, RY: 90},
		diffOrigin: coord.Point{X: 245.5, Y: -118.25, Z: 300},
	}
}

// SetPowerFault makes powerOn fail until cleared.
func (c *Controller) SetPowerFault(fault bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerFault = fault
}

// SetMotionDelay sets how long each motion command takes to complete.
func (c *Controller) SetMotionDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.motionDelay = d
}

// SetSampleOffset places the magazine offset at grid position (x, y).
func (c *Controller) SetSampleOffset(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samX, c.samY = x, y
}

// SetDiffRelative sets the position reported by getDiffRel.
func (c *Controller) SetDiffRelative(p coord.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diffRel = p
}

// Powered reports whether the arm power is on.
func (c *Controller) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powered
}

// SampleMounted reports whether the controller was told a sample is on the
// spinner.
func (c *Controller) SampleMounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleMounted
}

// SpinOffset returns the current spinner offset.
func (c *Controller) SpinOffset() coord.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spinOffset
}

// SampleOffset returns the magazine grid position.
func (c *Controller) SampleOffset() (x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samX, c.samY
}

// History returns the command frames received so far, in order.
func (c *Controller) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// ResetHistory forgets the received commands.
func (c *Controller) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Handle executes one command frame and returns the reply frame.
func (c *Controller) Handle(frame string) string {
	frame = strings.TrimSpace(strings.Trim(frame, "\x00"))
	name := emaprotocol.CommandName(frame)

	var params emaprotocol.Response
	if strings.Contains(frame, emaprotocol.CommandSeparator) {
		resp, err := emaprotocol.Parse(frame)
		if err != nil {
			return fail(name, MsgInvalidParameter)
		}
		params = resp
	}

	c.mu.Lock()
	c.history = append(c.history, frame)
	delay := c.motionDelay
	c.mu.Unlock()

	if h, ok := motionHandlers[name]; ok {
		if delay > 0 {
			time.Sleep(delay)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.powered {
			return fail(name, MsgPowerOff)
		}
		return h(c, name)
	}

	h, ok := handlers[name]
	if !ok {
		return fail(name, MsgUnknownCommand)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return h(c, name, params)
}

// handler runs with c.mu held.
type handler func(c *Controller, name string, req emaprotocol.Response) string

var handlers = map[string]handler{
	"powerOn": func(c *Controller, name string, _ emaprotocol.Response) string {
		if c.powerFault {
			return fail(name, MsgPowerCannotBeSwitched)
		}
		c.powered = true
		return emaprotocol.Done(name)
	},
	"powerOff": func(c *Controller, name string, _ emaprotocol.Response) string {
		c.powered = false
		return emaprotocol.Done(name)
	},
	"getPowerState": func(c *Controller, name string, _ emaprotocol.Response) string {
		return positional(name, choose(c.powered, "On", "Off"))
	},
	"getSampleMounted": func(c *Controller, name string, _ emaprotocol.Response) string {
		return positional(name, choose(c.sampleMounted, "Yes", "No"))
	},
	"getGripperState": func(c *Controller, name string, _ emaprotocol.Response) string {
		return positional(name, choose(c.gripperClosed, "Closed", "Open"))
	},
	"sampleMounted": func(c *Controller, name string, _ emaprotocol.Response) string {
		c.sampleMounted = true
		return emaprotocol.Done(name)
	},
	"sampleUnmounted": func(c *Controller, name string, _ emaprotocol.Response) string {
		c.sampleMounted = false
		return emaprotocol.Done(name)
	},
	"setSamPosOffset": func(c *Controller, name string, req emaprotocol.Response) string {
		x, okX := intParam(req, "X")
		y, okY := intParam(req, "Y")
		if !okX || !okY || x < 0 || x >= magazineColumns || y < 0 || y >= magazineRows {
			return fail(name, MsgInvalidParameter)
		}
		c.samX, c.samY = x, y
		return emaprotocol.Done(name)
	},
	"getSamPosOffset": func(c *Controller, name string, _ emaprotocol.Response) string {
		return emaprotocol.NewCommand(name).Int("X", c.samX).Int("Y", c.samY).Format()
	},
	"setSpeed": func(c *Controller, name string, req emaprotocol.Response) string {
		s, err := req.Float("S")
		if err != nil || s <= 0 || s > 100 {
			return fail(name, MsgInvalidParameter)
		}
		c.speed = s
		return emaprotocol.Done(name)
	},
	"getSpeed": func(c *Controller, name string, _ emaprotocol.Response) string {
		return emaprotocol.NewCommand(name).Float("S", c.speed, 3).Format()
	},
	"getSpinPosition": func(c *Controller, name string, _ emaprotocol.Response) string {
		pose := c.spinHome
		pose.Point = pose.Point.Add(c.spinOffset)
		return poseReply(name, pose)
	},
	"getSpinHomePosition": func(c *Controller, name string, _ emaprotocol.Response) string {
		return poseReply(name, c.spinHome)
	},
	"getSpinPosOffset": func(c *Controller, name string, _ emaprotocol.Response) string {
		return pointReply(name, c.spinOffset)
	},
	"setSpinPosOffset": func(c *Controller, name string, req emaprotocol.Response) string {
		xyz, err := req.Floats("X", "Y", "Z")
		if err != nil {
			return fail(name, MsgInvalidParameter)
		}
		c.spinOffset = coord.Point{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		return emaprotocol.Done(name)
	},
	"getDiffOrigin": func(c *Controller, name string, _ emaprotocol.Response) string {
		return pointReply(name, c.diffOrigin)
	},
	"getDiffRel": func(c *Controller, name string, _ emaprotocol.Response) string {
		return pointReply(name, c.diffRel)
	},
}

// motionHandlers run with c.mu held, after the motion delay, and only
// while the arm is powered.
var motionHandlers = map[string]func(c *Controller, name string) string{
	"moveSamPos":  moved,
	"moveGate":    moved,
	"moveSpinPos": moved,
	"moveParkPos": moved,
	"home":        moved,
	"samplePick": func(c *Controller, name string) string {
		if c.gripperClosed {
			return fail(name, MsgGripperFull)
		}
		c.gripperClosed = true
		return emaprotocol.Done(name)
	},
	"sampleRelease": func(c *Controller, name string) string {
		if !c.gripperClosed {
			return fail(name, MsgGripperEmpty)
		}
		c.gripperClosed = false
		return emaprotocol.Done(name)
	},
}

func moved(_ *Controller, name string) string {
	return emaprotocol.Done(name)
}

func fail(name, msg string) string {
	return name + emaprotocol.CommandSeparator + emaprotocol.StatusFail +
		emaprotocol.MessageSeparator + "'" + msg + "'" + emaprotocol.Delimiter
}

func positional(name, token string) string {
	return name + emaprotocol.CommandSeparator + emaprotocol.ParamPrefix + token + emaprotocol.Delimiter
}

func choose(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func intParam(req emaprotocol.Response, name string) (int, bool) {
	v, ok := req.Param(name)
	if !ok {
		return 0, false
	}
	i, ok := v.Int()
	return int(i), ok
}

func pointReply(name string, p coord.Point) string {
	return emaprotocol.NewCommand(name).
		Float("X", p.X, 3).
		Float("Y", p.Y, 3).
		Float("Z", p.Z, 3).
		Format()
}

func poseReply(name string, p coord.Pose) string {
	return emaprotocol.NewCommand(name).
		Float("X", p.X, 3).
		Float("Y", p.Y, 3).
		Float("Z", p.Z, 3).
		Float("RX", p.RX, 3).
		Float("RY", p.RY, 3).
		Float("RZ", p.RZ, 3).
		Format()
}
