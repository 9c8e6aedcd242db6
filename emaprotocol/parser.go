package emaprotocol

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted string")

// Parse decodes a reply frame into a Response.
//
// Grammar:
//
//	frame   := command ":" body ";"
//	body    := status [ "_" message ] | group { group }
//	group   := "#" [ name ] [ number | "_" text ]
//	name    := letter { letter }
//	number  := [ "+" | "-" ] digits [ "." digits ]
//	message := text | "'" text "'"
//
// A group with a name and no value is stored as a positional argument. NUL
// padding and whitespace around the frame and around values are ignored.
func Parse(raw string) (Response, error) {
	frame := strings.TrimSpace(strings.Trim(raw, "\x00"))
	if !strings.HasSuffix(frame, Delimiter) {
		return Response{}, newFormatError(raw, "missing frame delimiter %q", Delimiter)
	}
	frame = strings.TrimSpace(frame[:len(frame)-len(Delimiter)])

	sep := strings.Index(frame, CommandSeparator)
	if sep < 0 {
		return Response{}, newFormatError(raw, "missing command separator %q", CommandSeparator)
	}
	command := strings.TrimSpace(frame[:sep])
	if !isCommandName(command) {
		return Response{}, newFormatError(raw, "invalid command name %q", command)
	}

	resp := Response{
		Command: command,
		Params:  make(map[string]Value),
		Raw:     raw,
	}

	p := &bodyParser{raw: raw, body: strings.TrimSpace(frame[sep+1:])}
	var err error
	if strings.HasPrefix(p.body, ParamPrefix) {
		resp.Status = StatusOK
		err = p.parseGroups(&resp)
	} else {
		err = p.parseStatus(&resp)
	}
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// bodyParser tokenizes the body of a single frame.
type bodyParser struct {
	raw  string
	body string
	pos  int
}

func (p *bodyParser) eof() bool {
	return p.pos >= len(p.body)
}

func (p *bodyParser) peek() byte {
	return p.body[p.pos]
}

func (p *bodyParser) letters() string {
	start := p.pos
	for !p.eof() && isLetter(p.peek()) {
		p.pos++
	}
	return p.body[start:p.pos]
}

func (p *bodyParser) skipSpaces() {
	for !p.eof() && isSpace(p.peek()) {
		p.pos++
	}
}

// untilGroup consumes up to the next group prefix and returns the trimmed text.
func (p *bodyParser) untilGroup() string {
	end := strings.Index(p.body[p.pos:], ParamPrefix)
	if end < 0 {
		end = len(p.body) - p.pos
	}
	seg := p.body[p.pos : p.pos+end]
	p.pos += end
	return strings.TrimSpace(seg)
}

func (p *bodyParser) parseStatus(resp *Response) error {
	status := p.letters()
	if status == "" {
		return newFormatError(p.raw, "missing status")
	}
	resp.Status = status

	rest := p.body[p.pos:]
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	if !strings.HasPrefix(rest, MessageSeparator) {
		return newFormatError(p.raw, "unexpected %q after status %q", rest, status)
	}

	msg, err := unquote(strings.TrimSpace(rest[len(MessageSeparator):]))
	if err != nil {
		return newFormatError(p.raw, "%v", err)
	}
	resp.Params[MessageKey] = StringValue(msg)
	return nil
}

func (p *bodyParser) parseGroups(resp *Response) error {
	for !p.eof() {
		if p.peek() != ParamPrefix[0] {
			return newFormatError(p.raw, "expected %q at offset %d", ParamPrefix, p.pos)
		}
		p.pos++
		p.skipSpaces()
		name := p.letters()

		if !p.eof() && p.peek() == MessageSeparator[0] {
			if name == "" {
				return newFormatError(p.raw, "string value without parameter name at offset %d", p.pos)
			}
			p.pos++
			text, err := p.text()
			if err != nil {
				return err
			}
			resp.Params[name] = StringValue(text)
			continue
		}

		seg := p.untilGroup()
		switch {
		case seg == "" && name == "":
			return newFormatError(p.raw, "empty parameter group")
		case seg == "":
			resp.Args = append(resp.Args, StringValue(name))
		default:
			v, ok := parseNumber(seg)
			if !ok {
				return newFormatError(p.raw, "invalid value %q for parameter %q", seg, name)
			}
			if name == "" {
				resp.Args = append(resp.Args, v)
			} else {
				resp.Params[name] = v
			}
		}
	}
	return nil
}

// text reads a string value: either single-quoted, or bare up to the next
// group.
func (p *bodyParser) text() (string, error) {
	p.skipSpaces()
	if p.eof() || p.peek() != '\'' {
		return p.untilGroup(), nil
	}

	p.pos++
	end := strings.IndexByte(p.body[p.pos:], '\'')
	if end < 0 {
		return "", newFormatError(p.raw, "%v", errUnterminatedQuote)
	}
	text := p.body[p.pos : p.pos+end]
	p.pos += end + 1
	p.skipSpaces()
	if !p.eof() && p.peek() != ParamPrefix[0] {
		return "", newFormatError(p.raw, "unexpected %q after quoted string", p.body[p.pos:])
	}
	return text, nil
}

// parseNumber decodes a signed decimal number. Numbers with a zero
// fractional part are returned as integers.
func parseNumber(s string) (Value, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intDigits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		intDigits++
	}
	fracDigits := 0
	hasPoint := false
	if i < len(s) && s[i] == '.' {
		hasPoint = true
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			fracDigits++
		}
	}
	if i != len(s) || intDigits+fracDigits == 0 {
		return Value{}, false
	}

	if !hasPoint {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return IntValue(n), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, false
	}
	if f == math.Trunc(f) && math.Abs(f) <= math.MaxInt64/2 {
		return IntValue(int64(f)), true
	}
	return FloatValue(f), true
}

// unquote strips one pair of surrounding single quotes.
func unquote(s string) (string, error) {
	if !strings.HasPrefix(s, "'") {
		return s, nil
	}
	if len(s) < 2 || !strings.HasSuffix(s, "'") {
		return "", errUnterminatedQuote
	}
	return s[1 : len(s)-1], nil
}

func isCommandName(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) && s[i] != '_' {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
