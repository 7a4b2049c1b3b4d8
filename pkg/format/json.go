package format

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/jacktea/ffs/pkg/value"
)

// decodeJSON walks the token stream directly so object key order
// survives; encoding/json's map decoding would scramble it.
func decodeJSON(data []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("json: trailing data after document")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (value.Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := value.NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, child)
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return nil, err
			}
			return m, nil
		case '[':
			var list value.List
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, child)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return nil, err
			}
			if list == nil {
				list = value.List{}
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return value.Integer(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return value.Float(f), nil
	case string:
		return value.String(t), nil
	case bool:
		return value.Bool(t), nil
	case nil:
		return value.Null{}, nil
	default:
		return nil, fmt.Errorf("unexpected token %T", tok)
	}
}

func encodeJSON(v value.Value, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, pretty, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v value.Value, pretty bool, depth int) error {
	switch val := v.(type) {
	case value.Null:
		buf.WriteString("null")
	case value.Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case value.Integer:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case value.Float:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("json: cannot encode %v", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case value.Datetime:
		return writeJSONString(buf, time.Time(val).Format(time.RFC3339))
	case value.String:
		return writeJSONString(buf, string(val))
	case value.Bytes:
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(val))
	case value.List:
		if len(val) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, child := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			jsonNewline(buf, pretty, depth+1)
			if err := writeJSON(buf, child, pretty, depth+1); err != nil {
				return err
			}
		}
		jsonNewline(buf, pretty, depth)
		buf.WriteByte(']')
	case *value.Map:
		if val.Len() == 0 {
			buf.WriteString("{}")
			return nil
		}
		// Keys are emitted sorted; see the ordering note in format.go.
		keys := append([]string(nil), val.Keys()...)
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			jsonNewline(buf, pretty, depth+1)
			if err := writeJSONString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if pretty {
				buf.WriteByte(' ')
			}
			child, _ := val.Get(key)
			if err := writeJSON(buf, child, pretty, depth+1); err != nil {
				return err
			}
		}
		jsonNewline(buf, pretty, depth)
		buf.WriteByte('}')
	default:
		return fmt.Errorf("json: unknown value %T", v)
	}
	return nil
}

func jsonNewline(buf *bytes.Buffer, pretty bool, depth int) {
	if !pretty {
		return
	}
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}
