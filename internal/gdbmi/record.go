// Package gdbmi drives GDB over its machine interface (GDB/MI) and exposes it
// as a debugger.Session.
package gdbmi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of an output record.
type Kind int

const (
	// KindResult is a "^class" reply to a command.
	KindResult Kind = iota
	// KindExec is a "*class" asynchronous execution state change.
	KindExec
	// KindStatus is a "+class" asynchronous progress record.
	KindStatus
	// KindNotify is a "=class" asynchronous notification.
	KindNotify
	// KindConsole is "~" console output.
	KindConsole
	// KindTarget is "@" target output.
	KindTarget
	// KindLog is "&" GDB's own log output.
	KindLog
	// KindPrompt is the "(gdb)" terminator.
	KindPrompt
)

// Tuple is a {name=value,...} value.
type Tuple map[string]any

// Record is one line of GDB/MI output.
type Record struct {
	// Token echoes the token of the command a result belongs to, or -1.
	Token   int
	Kind    Kind
	Class   string
	Results Tuple
	// Text holds the decoded payload of stream records.
	Text string
}

// Field returns the string value of key, or "".
func (t Tuple) Field(key string) string {
	s, _ := t[key].(string)
	return s
}

// Nested returns the tuple value of key, or nil.
func (t Tuple) Nested(key string) Tuple {
	v, _ := t[key].(Tuple)
	return v
}

// List returns the list value of key, or nil.
func (t Tuple) List(key string) []any {
	v, _ := t[key].([]any)
	return v
}

// Parse decodes one line of MI output.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "(gdb)" {
		return Record{Token: -1, Kind: KindPrompt}, nil
	}

	p := &parser{s: line}
	rec := Record{Token: -1}

	start := p.i
	for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
		p.i++
	}
	if p.i > start {
		tok, err := strconv.Atoi(p.s[start:p.i])
		if err != nil {
			return Record{}, p.errorf("bad token: %v", err)
		}
		rec.Token = tok
	}

	if p.i >= len(p.s) {
		return Record{}, p.errorf("missing record type")
	}
	c := p.s[p.i]
	p.i++
	switch c {
	case '^':
		rec.Kind = KindResult
	case '*':
		rec.Kind = KindExec
	case '+':
		rec.Kind = KindStatus
	case '=':
		rec.Kind = KindNotify
	case '~', '@', '&':
		rec.Kind = KindConsole
		if c == '@' {
			rec.Kind = KindTarget
		} else if c == '&' {
			rec.Kind = KindLog
		}
		text, err := p.cstring()
		if err != nil {
			return Record{}, err
		}
		rec.Text = text
		return rec, nil
	default:
		return Record{}, p.errorf("unknown record type %q", c)
	}

	rec.Class = p.word()
	if rec.Class == "" {
		return Record{}, p.errorf("missing class")
	}
	rec.Results = Tuple{}
	for p.i < len(p.s) {
		if p.s[p.i] != ',' {
			return Record{}, p.errorf("expected ','")
		}
		p.i++
		name, value, err := p.result()
		if err != nil {
			return Record{}, err
		}
		rec.Results[name] = value
	}
	return rec, nil
}

type parser struct {
	s string
	i int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("gdbmi: column %d: %s", p.i, fmt.Sprintf(format, args...))
}

func (p *parser) word() string {
	start := p.i
	for p.i < len(p.s) {
		c := p.s[p.i]
		if c == ',' || c == '=' || c == '{' || c == '}' || c == '[' || c == ']' || c == '"' {
			break
		}
		p.i++
	}
	return p.s[start:p.i]
}

func (p *parser) result() (string, any, error) {
	name := p.word()
	if name == "" || p.i >= len(p.s) || p.s[p.i] != '=' {
		return "", nil, p.errorf("expected name=value")
	}
	p.i++
	v, err := p.value()
	return name, v, err
}

func (p *parser) value() (any, error) {
	if p.i >= len(p.s) {
		return nil, p.errorf("missing value")
	}
	switch p.s[p.i] {
	case '"':
		return p.cstring()
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	default:
		return nil, p.errorf("unexpected %q", p.s[p.i])
	}
}

func (p *parser) tuple() (Tuple, error) {
	p.i++ // {
	t := Tuple{}
	if p.i < len(p.s) && p.s[p.i] == '}' {
		p.i++
		return t, nil
	}
	for {
		name, v, err := p.result()
		if err != nil {
			return nil, err
		}
		t[name] = v
		if p.i >= len(p.s) {
			return nil, p.errorf("unterminated tuple")
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case '}':
			p.i++
			return t, nil
		default:
			return nil, p.errorf("unexpected %q in tuple", p.s[p.i])
		}
	}
}

// list decodes both value lists and result lists. Result lists keep only the
// values: [frame={...},frame={...}] becomes a list of tuples.
func (p *parser) list() ([]any, error) {
	p.i++ // [
	var out []any
	if p.i < len(p.s) && p.s[p.i] == ']' {
		p.i++
		return out, nil
	}
	for {
		if p.i >= len(p.s) {
			return nil, p.errorf("unterminated list")
		}
		var v any
		var err error
		if c := p.s[p.i]; c == '"' || c == '{' || c == '[' {
			v, err = p.value()
		} else {
			_, v, err = p.result()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.i >= len(p.s) {
			return nil, p.errorf("unterminated list")
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case ']':
			p.i++
			return out, nil
		default:
			return nil, p.errorf("unexpected %q in list", p.s[p.i])
		}
	}
}

func (p *parser) cstring() (string, error) {
	if p.i >= len(p.s) || p.s[p.i] != '"' {
		return "", p.errorf("expected string")
	}
	p.i++
	var b strings.Builder
	for p.i < len(p.s) {
		c := p.s[p.i]
		p.i++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.i >= len(p.s) {
				return "", p.errorf("dangling escape")
			}
			e := p.s[p.i]
			p.i++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'e':
				b.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for k := 0; k < 2 && p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '7'; k++ {
					n = n*8 + int(p.s[p.i]-'0')
					p.i++
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

// Quote renders s as an MI c-string argument.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
