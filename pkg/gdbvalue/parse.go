package gdbvalue

import "strings"

// Parse parses one gdb value: a number, a string or identifier, or a braced
// list or dict. A protocol error in place of the value is returned as an
// error; one nested inside an aggregate becomes a KindError element.
// Anything left over after the value is a *ParseError.
func Parse(text string) (Value, error) {
	toks, err := Tokenize(text)
	if err != nil {
		return Value{}, err
	}
	p := &parser{input: text, toks: toks}
	v, err := p.value(true)
	if err != nil {
		return Value{}, err
	}
	if t := p.peek(0); t != nil {
		return Value{}, p.errorAt(t, "unexpected input after value")
	}
	return v, nil
}

// ParseRHS parses the text after the first '=' of a print result such as
// "$1 = {1, 2}". Text without '=' is parsed whole.
func ParseRHS(line string) (Value, error) {
	if i := strings.IndexByte(line, '='); i >= 0 {
		line = line[i+1:]
	}
	return Parse(line)
}

type parser struct {
	input string
	toks  []Token
	pos   int
}

func (p *parser) peek(n int) *Token {
	if p.pos+n >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos+n]
}

func (p *parser) next() *Token {
	t := p.peek(0)
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) errorAt(t *Token, msg string) *ParseError {
	if t == nil {
		return &ParseError{Input: p.input, Offset: len(p.input), Msg: msg}
	}
	return &ParseError{Input: p.input, Offset: t.Offset, Msg: msg}
}

func isPunct(t *Token, s string) bool {
	return t != nil && t.Kind == TokenPunct && t.Text == s
}

func (p *parser) value(top bool) (Value, error) {
	t := p.next()
	if t == nil {
		return Value{}, p.errorAt(nil, "unexpected end of input")
	}
	switch t.Kind {
	case TokenError:
		if top {
			return Value{}, t.Err
		}
		return ErrorValue(t.Err), nil
	case TokenNumber, TokenString, TokenIdent:
		return t.Value, nil
	case TokenPunct:
		if t.Text == "{" {
			return p.braced()
		}
	}
	return Value{}, p.errorAt(t, "unexpected token")
}

// braced parses the body after '{'. A dict is recognised by '=' as the
// second token of the body.
func (p *parser) braced() (Value, error) {
	if isPunct(p.peek(0), "}") {
		p.next()
		return ListValue(), nil
	}
	if isPunct(p.peek(1), "=") {
		return p.dict()
	}
	return p.list()
}

func (p *parser) dict() (Value, error) {
	v := Value{Kind: KindDict, Dict: make(map[string]Value)}
	for {
		key := p.next()
		if key == nil || (key.Kind != TokenIdent && key.Kind != TokenString) {
			return Value{}, p.errorAt(key, "expected dict key")
		}
		if eq := p.next(); !isPunct(eq, "=") {
			return Value{}, p.errorAt(eq, "expected '='")
		}
		field, err := p.value(false)
		if err != nil {
			return Value{}, err
		}
		if _, dup := v.Dict[key.Value.Str]; !dup {
			v.Keys = append(v.Keys, key.Value.Str)
		}
		v.Dict[key.Value.Str] = field

		switch t := p.next(); {
		case isPunct(t, "}"):
			return v, nil
		case isPunct(t, ","):
		default:
			return Value{}, p.errorAt(t, "expected ',' or '}'")
		}
	}
}

func (p *parser) list() (Value, error) {
	items := []Value{}
	for {
		item, err := p.value(false)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)

		t := p.next()
		if t != nil && t.Kind == TokenRepeat {
			// The element already appended counts as one of the N.
			items = items[:len(items)-1]
			for i := 0; i < t.Count; i++ {
				items = append(items, item)
			}
			t = p.next()
		}
		switch {
		case isPunct(t, "}"):
			return ListValue(items...), nil
		case isPunct(t, ","):
		default:
			return Value{}, p.errorAt(t, "expected ',' or '}'")
		}
	}
}
