package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateLine(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{"mount 12", "mount", []string{"12"}},
		{"  m   12  ", "mount", []string{"12"}},
		{"MOUNT 3", "mount", []string{"3"}},
		{"u", "unmount", []string{}},
		{"start", "begin", []string{}},
		{"stop", "end", []string{}},
		{"power ON", "power", []string{"on"}},
		{"s", "status", []string{}},
		{"st", "state", []string{}},
		{"speed 50", "speed", []string{"50"}},
		{"raw getSpeed", "send", []string{"getSpeed"}},
		{"send powerOn powerOn:done", "send", []string{"powerOn", "powerOn:done"}},
		{"getSpeed;", "send", []string{"getSpeed;"}},
		{"setSpeed:#S50", "send", []string{"setSpeed:#S50"}},
		{"setSpinPosOffset:#X1#Y2#Z3;", "send", []string{"setSpinPosOffset:#X1#Y2#Z3;"}},
		{".help mount", ".help", []string{"mount"}},
		{"?", ".help", []string{}},
		{"quit", ".quit", []string{}},
		{"exit", ".quit", []string{}},
		{".quit", ".quit", []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			cmd, ok := translateLine(tc.line)
			assert.True(t, ok)
			assert.Equal(t, tc.name, cmd.name)
			assert.Equal(t, tc.args, cmd.args)
		})
	}
}

func TestTranslateLineBlank(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		_, ok := translateLine(line)
		assert.False(t, ok, "%q", line)
	}
}

func TestIsFrame(t *testing.T) {
	assert.True(t, isFrame("powerOn;"))
	assert.True(t, isFrame("setSpeed:#S50"))
	assert.False(t, isFrame("powerOn"))
	assert.False(t, isFrame("send powerOn;"))
}
