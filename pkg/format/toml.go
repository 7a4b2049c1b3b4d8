package format

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jacktea/ffs/pkg/value"
)

// decodeTOML goes through go-toml's generic representation. The library
// hands tables back as Go maps, so key order is not preserved; keys are
// sorted to keep decoding deterministic.
func decodeTOML(data []byte) (value.Value, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return tomlToValue(raw)
}

func tomlToValue(raw interface{}) (value.Value, error) {
	switch t := raw.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := value.NewMap()
		for _, k := range keys {
			child, err := tomlToValue(t[k])
			if err != nil {
				return nil, err
			}
			m.Set(k, child)
		}
		return m, nil
	case []interface{}:
		list := make(value.List, 0, len(t))
		for _, item := range t {
			child, err := tomlToValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
		return list, nil
	case []map[string]interface{}:
		list := make(value.List, 0, len(t))
		for _, item := range t {
			child, err := tomlToValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
		return list, nil
	case string:
		return value.String(t), nil
	case bool:
		return value.Bool(t), nil
	case int64:
		return value.Integer(t), nil
	case int:
		return value.Integer(t), nil
	case float64:
		return value.Float(t), nil
	case time.Time:
		return value.Datetime(t), nil
	case toml.LocalDateTime:
		return value.Datetime(t.AsTime(time.UTC)), nil
	case toml.LocalDate:
		return value.Datetime(t.AsTime(time.UTC)), nil
	case toml.LocalTime:
		return value.String(t.String()), nil
	case nil:
		return value.Null{}, nil
	default:
		return nil, fmt.Errorf("toml: unexpected decoded type %T", raw)
	}
}

func encodeTOML(v value.Value) ([]byte, error) {
	root, ok := v.(*value.Map)
	if !ok {
		return nil, fmt.Errorf("toml: top-level value must be a table, got %s", v.Kind())
	}
	raw, err := valueToTOML(root)
	if err != nil {
		return nil, err
	}
	out, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return out, nil
}

func valueToTOML(v value.Value) (interface{}, error) {
	switch val := v.(type) {
	case value.Null:
		return nil, fmt.Errorf("toml: cannot encode null")
	case value.Bool:
		return bool(val), nil
	case value.Integer:
		return int64(val), nil
	case value.Float:
		return float64(val), nil
	case value.Datetime:
		return time.Time(val), nil
	case value.String:
		return string(val), nil
	case value.Bytes:
		return base64.StdEncoding.EncodeToString(val), nil
	case value.List:
		out := make([]interface{}, 0, len(val))
		for _, child := range val {
			item, err := valueToTOML(child)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case *value.Map:
		out := make(map[string]interface{}, val.Len())
		var werr error
		val.Range(func(key string, child value.Value) bool {
			var item interface{}
			item, werr = valueToTOML(child)
			if werr != nil {
				return false
			}
			out[key] = item
			return true
		})
		if werr != nil {
			return nil, werr
		}
		return out, nil
	default:
		return nil, fmt.Errorf("toml: unknown value %T", v)
	}
}
