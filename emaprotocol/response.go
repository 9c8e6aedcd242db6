package emaprotocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies the type held by a Value.
type ValueKind int

const (
	// KindString is a text value.
	KindString ValueKind = iota
	// KindInt is a number without fractional part.
	KindInt
	// KindFloat is a number with a fractional part.
	KindFloat
)

// Value is a parameter value decoded from a reply.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
}

// IntValue creates an integer value.
func IntValue(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// FloatValue creates a floating point value.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// StringValue creates a text value.
func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

// Kind returns the type of the value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNumber reports whether the value is an integer or a float.
func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Int returns the value as an integer. It fails for strings and for floats.
func (v Value) Int() (int64, bool) {
	if v.kind == KindInt {
		return v.i, true
	}
	return 0, false
}

// Float returns the value as a float. Integers are converted.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// String returns the textual form of the value.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return v.s
	}
}

// Response is a parsed reply frame. It is never modified after parsing.
type Response struct {
	// Command is the command name echoed by the controller.
	Command string

	// Status is the status word of the reply, or StatusOK for parameter
	// replies.
	Status string

	// Params holds named parameters. A status message is stored under
	// MessageKey.
	Params map[string]Value

	// Args holds positional parameters in order of appearance.
	Args []Value

	// Raw is the frame as received.
	Raw string
}

// IsOK returns true if the controller reported success.
func (r Response) IsOK() bool {
	s := strings.ToLower(r.Status)
	return s == StatusOK || s == StatusDone
}

// IsFail returns true if the controller reported a failure.
func (r Response) IsFail() bool {
	return strings.EqualFold(r.Status, StatusFail)
}

// Message returns the status message, if any.
func (r Response) Message() string {
	if v, ok := r.Params[MessageKey]; ok {
		return v.String()
	}
	return ""
}

// Param returns the named parameter.
func (r Response) Param(name string) (Value, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// Arg returns the positional parameter at index i.
func (r Response) Arg(i int) (Value, bool) {
	if i < 0 || i >= len(r.Args) {
		return Value{}, false
	}
	return r.Args[i], true
}

// Float returns the named parameter as a float.
func (r Response) Float(name string) (float64, error) {
	v, ok := r.Params[name]
	if !ok {
		return 0, newFormatError(r.Raw, "missing parameter %s", name)
	}
	f, ok := v.Float()
	if !ok {
		return 0, newFormatError(r.Raw, "parameter %s is not numeric: %q", name, v.String())
	}
	return f, nil
}

// Floats returns the named parameters as floats, in the order given.
func (r Response) Floats(names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		f, err := r.Float(name)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Format returns the response formatted for transmission over the protocol.
// Named parameters are written in sorted order, after positional ones.
func (r Response) Format() string {
	var b strings.Builder
	b.WriteString(r.Command)
	b.WriteString(CommandSeparator)

	if len(r.Args) == 0 && !hasParams(r.Params) {
		b.WriteString(r.Status)
		if msg := r.Message(); msg != "" {
			fmt.Fprintf(&b, "%s'%s'", MessageSeparator, msg)
		}
		b.WriteString(Delimiter)
		return b.String()
	}

	for _, a := range r.Args {
		b.WriteString(ParamPrefix)
		b.WriteString(a.String())
	}
	for _, name := range sortedKeys(r.Params) {
		if name == MessageKey {
			continue
		}
		b.WriteString(formatParam(name, r.Params[name]))
	}
	b.WriteString(Delimiter)
	return b.String()
}

func hasParams(params map[string]Value) bool {
	for k := range params {
		if k != MessageKey {
			return true
		}
	}
	return false
}
