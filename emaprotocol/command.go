package emaprotocol

import (
	"sort"
	"strconv"
	"strings"
)

// param is one "#<name><value>" group of an outbound command.
type param struct {
	name string
	text string
}

// Command is an outbound command frame. Build one with NewCommand and the
// chaining methods, then send Format().
//
//	NewCommand("setSamPosOffset").Int("X", 7).Int("Y", 4).Format()
//	// "setSamPosOffset:#X7#Y4;"
type Command struct {
	Name   string
	params []param
}

// NewCommand creates a command without parameters.
func NewCommand(name string) Command {
	return Command{Name: name}
}

// with returns a copy of c with an extra parameter; c itself is not modified.
func (c Command) with(name, text string) Command {
	params := make([]param, len(c.params), len(c.params)+1)
	copy(params, c.params)
	c.params = append(params, param{name: name, text: text})
	return c
}

// Int adds an integer parameter.
func (c Command) Int(name string, v int) Command {
	return c.with(name, strconv.Itoa(v))
}

// Float adds a numeric parameter with prec digits after the decimal point.
// A negative prec uses the fewest digits that represent v exactly.
func (c Command) Float(name string, v float64, prec int) Command {
	return c.with(name, strconv.FormatFloat(v, 'f', prec, 64))
}

// Text adds a quoted string parameter.
func (c Command) Text(name, v string) Command {
	return c.with(name, MessageSeparator+"'"+v+"'")
}

// Format returns the command formatted for transmission, including the
// frame delimiter.
func (c Command) Format() string {
	if len(c.params) == 0 {
		return c.Name + Delimiter
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(CommandSeparator)
	for _, p := range c.params {
		b.WriteString(ParamPrefix)
		b.WriteString(p.name)
		b.WriteString(p.text)
	}
	b.WriteString(Delimiter)
	return b.String()
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return c.Format()
}

// Done returns the acknowledgement expected for this command.
func (c Command) Done() string {
	return Done(c.Name)
}

func formatParam(name string, v Value) string {
	if v.Kind() == KindString {
		return ParamPrefix + name + MessageSeparator + "'" + v.String() + "'"
	}
	return ParamPrefix + name + v.String()
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
