package gdbvalue

import (
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders the value as a YAML node. Integers are written in hex
// unless negative, dicts keep gdb's member order, and nested protocol errors
// become !error scalars.
func (v Value) MarshalYAML() (any, error) {
	return v.node(), nil
}

func (v Value) node() *yaml.Node {
	switch v.Kind {
	case KindInt:
		if v.Int == nil {
			return scalar("!!null", "~")
		}
		s := v.Int.String()
		if v.Int.Sign() >= 0 {
			s = "0x" + v.Int.Text(16)
		}
		return scalar("!!int", s)
	case KindFloat:
		switch {
		case math.IsNaN(v.Float):
			return scalar("!!float", ".nan")
		case math.IsInf(v.Float, 1):
			return scalar("!!float", ".inf")
		case math.IsInf(v.Float, -1):
			return scalar("!!float", "-.inf")
		}
		return scalar("!!float", strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindString:
		return scalar("!!str", v.Str)
	case KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.List {
			n.Content = append(n.Content, item.node())
		}
		if len(n.Content) == 0 {
			n.Style = yaml.FlowStyle
		}
		return n
	case KindDict:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.Keys {
			n.Content = append(n.Content, scalar("!!str", k), v.Dict[k].node())
		}
		return n
	case KindError:
		return scalar("!error", v.Err.Error())
	}
	return scalar("!!null", "null")
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
