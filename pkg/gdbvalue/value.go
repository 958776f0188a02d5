// Package gdbvalue turns gdb console output into typed values.
//
// gdb has no structured machine interface on its console, so everything a
// debug test learns about the target is recovered from text: print results
// through Parse, and tables (threads, registers, memory dumps) through the
// line matchers in this package.
package gdbvalue

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Kind identifies which member of a Value is populated.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindList
	KindDict
	// KindError marks a protocol error reported inside an aggregate, e.g. one
	// element of a register group gdb could not fetch.
	KindError
)

var kindNames = [...]string{"int", "float", "string", "list", "dict", "error"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a parsed gdb value. Integers are arbitrary precision since vector
// and 128-bit registers do not fit a machine word.
type Value struct {
	Kind  Kind
	Int   *big.Int
	Float float64
	Str   string
	List  []Value
	// Keys holds dict keys in the order gdb printed them.
	Keys []string
	Dict map[string]Value
	Err  error
}

// IntValue returns an integer value.
func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: big.NewInt(v)}
}

// UintValue returns an integer value.
func UintValue(v uint64) Value {
	return Value{Kind: KindInt, Int: new(big.Int).SetUint64(v)}
}

// BigValue returns an integer value holding a copy of v.
func BigValue(v *big.Int) Value {
	return Value{Kind: KindInt, Int: new(big.Int).Set(v)}
}

// FloatValue returns a floating point value.
func FloatValue(v float64) Value {
	return Value{Kind: KindFloat, Float: v}
}

// StringValue returns a string value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// ListValue returns a list value.
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}

// ErrorValue wraps a protocol error found inside an aggregate.
func ErrorValue(err error) Value {
	return Value{Kind: KindError, Err: err}
}

// Uint64 returns the value as a uint64. Negative integers are returned in
// two's complement, matching how gdb would show them with /x.
func (v Value) Uint64() (uint64, bool) {
	if v.Kind != KindInt || v.Int == nil {
		return 0, false
	}
	if v.Int.Sign() < 0 {
		if !v.Int.IsInt64() {
			return 0, false
		}
		return uint64(v.Int.Int64()), true
	}
	if !v.Int.IsUint64() {
		return 0, false
	}
	return v.Int.Uint64(), true
}

// Int64 returns the value as an int64.
func (v Value) Int64() (int64, bool) {
	if v.Kind != KindInt || v.Int == nil || !v.Int.IsInt64() {
		return 0, false
	}
	return v.Int.Int64(), true
}

// Field looks up a dict member.
func (v Value) Field(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	f, ok := v.Dict[key]
	return f, ok
}

// Equal compares values structurally. NaN equals NaN so parsed register
// contents can be compared directly.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		if v.Int == nil || o.Int == nil {
			return v.Int == o.Int
		}
		return v.Int.Cmp(o.Int) == 0
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsNaN(o.Float) {
			return math.IsNaN(v.Float) && math.IsNaN(o.Float)
		}
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.Keys) != len(o.Keys) {
			return false
		}
		for i, k := range v.Keys {
			if o.Keys[i] != k || !v.Dict[k].Equal(o.Dict[k]) {
				return false
			}
		}
		return true
	case KindError:
		return v.Err.Error() == o.Err.Error()
	}
	return false
}

// String renders the value in gdb's print syntax, integers in hex.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.Kind {
	case KindInt:
		if v.Int == nil {
			b.WriteString("<invalid>")
			return
		}
		if v.Int.Sign() < 0 {
			b.WriteString(v.Int.String())
			return
		}
		b.WriteString("0x")
		b.WriteString(v.Int.Text(16))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(v.Str))
	case KindList:
		b.WriteByte('{')
		for i, item := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b)
		}
		b.WriteByte('}')
	case KindDict:
		b.WriteByte('{')
		for i, k := range v.Keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(" = ")
			f := v.Dict[k]
			f.format(b)
		}
		b.WriteByte('}')
	case KindError:
		fmt.Fprintf(b, "<%v>", v.Err)
	}
}
