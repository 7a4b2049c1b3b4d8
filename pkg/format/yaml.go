package format

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacktea/ffs/pkg/value"
)

// decodeYAML goes through yaml.Node rather than interface{} so mapping
// order and the !!binary / !!timestamp tags survive.
func decodeYAML(data []byte) (value.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return value.Null{}, nil
	}
	return yamlToValue(doc.Content[0])
}

func yamlToValue(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return yamlScalar(n)
	case yaml.SequenceNode:
		list := make(value.List, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := yamlToValue(child)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.MappingNode:
		m := value.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := yamlToValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(key, v)
		}
		return m, nil
	case yaml.AliasNode:
		return yamlToValue(n.Alias)
	default:
		return nil, fmt.Errorf("yaml: unexpected node kind %d", n.Kind)
	}
}

func yamlScalar(n *yaml.Node) (value.Value, error) {
	switch n.Tag {
	case "!!null":
		return value.Null{}, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return value.String(n.Value), nil
		}
		return value.Bool(b), nil
	case "!!int":
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return value.Integer(i), nil
		}
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return value.Float(f), nil
		}
		return value.String(n.Value), nil
	case "!!float":
		switch strings.ToLower(n.Value) {
		case ".inf", "+.inf":
			return value.Float(math.Inf(1)), nil
		case "-.inf":
			return value.Float(math.Inf(-1)), nil
		case ".nan":
			return value.Float(math.NaN()), nil
		}
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return value.Float(f), nil
		}
		return value.String(n.Value), nil
	case "!!timestamp":
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, n.Value); err == nil {
				return value.Datetime(t), nil
			}
		}
		return value.String(n.Value), nil
	case "!!binary":
		raw, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, n.Value))
		if err != nil {
			return nil, fmt.Errorf("yaml: bad !!binary scalar: %w", err)
		}
		return value.Bytes(raw), nil
	default:
		return value.String(n.Value), nil
	}
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r':
		return -1
	}
	return r
}

func encodeYAML(v value.Value) ([]byte, error) {
	node, err := valueToYAML(v)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return out, nil
}

func valueToYAML(v value.Value) (*yaml.Node, error) {
	switch val := v.(type) {
	case value.Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case value.Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(bool(val))}, nil
	case value.Integer:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(int64(val), 10)}, nil
	case value.Float:
		f := float64(val)
		var s string
		switch {
		case math.IsInf(f, 1):
			s = ".inf"
		case math.IsInf(f, -1):
			s = "-.inf"
		case math.IsNaN(f):
			s = ".nan"
		default:
			s = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
	case value.Datetime:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: time.Time(val).Format(time.RFC3339)}, nil
	case value.String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(val)}, nil
	case value.Bytes:
		return &yaml.Node{
			Kind:  yaml.ScalarNode,
			Style: yaml.TaggedStyle,
			Tag:   "!!binary",
			Value: base64.StdEncoding.EncodeToString(val),
		}, nil
	case value.List:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, child := range val {
			c, err := valueToYAML(child)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, c)
		}
		return node, nil
	case *value.Map:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var werr error
		val.Range(func(key string, child value.Value) bool {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
			var c *yaml.Node
			c, werr = valueToYAML(child)
			if werr != nil {
				return false
			}
			node.Content = append(node.Content, keyNode, c)
			return true
		})
		if werr != nil {
			return nil, werr
		}
		return node, nil
	default:
		return nil, fmt.Errorf("yaml: unknown value %T", v)
	}
}
