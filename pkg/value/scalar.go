package value

import (
	"strconv"
	"time"
	"unicode/utf8"
)

// Render produces the byte payload a scalar value exposes as a mounted
// file. Null is always empty; Bytes are raw; everything else is text
// with an optional trailing newline.
func Render(v Value, addNewline bool) []byte {
	nl := ""
	if addNewline {
		nl = "\n"
	}
	switch val := v.(type) {
	case Null:
		return nil
	case Bool:
		return []byte(strconv.FormatBool(bool(val)) + nl)
	case Integer:
		return []byte(strconv.FormatInt(int64(val), 10) + nl)
	case Float:
		return []byte(strconv.FormatFloat(float64(val), 'g', -1, 64) + nl)
	case Datetime:
		return []byte(time.Time(val).Format(time.RFC3339) + nl)
	case String:
		s := string(val)
		if addNewline && s != "" && s[len(s)-1] != '\n' {
			s += "\n"
		}
		return []byte(s)
	case Bytes:
		return []byte(val)
	default:
		return nil
	}
}

// Auto classifies file contents on save, trying each scalar variant in
// order: Null, Bool, Integer, Float, Datetime, String, Bytes.
func Auto(data []byte) Value {
	if len(data) == 0 {
		return Null{}
	}
	s := string(data)
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	if t, ok := parseDatetime(s); ok {
		return Datetime(t)
	}
	if utf8.Valid(data) {
		return String(s)
	}
	return Bytes(append([]byte(nil), data...))
}

// FromTyped parses file contents as the tagged variant. Parse failures
// fall back to String when the payload is UTF-8, Bytes otherwise.
func FromTyped(t Typ, data []byte) Value {
	switch t {
	case TypAuto:
		return Auto(data)
	case TypNull:
		if len(data) == 0 {
			return Null{}
		}
	case TypBoolean:
		switch string(data) {
		case "true":
			return Bool(true)
		case "false":
			return Bool(false)
		}
	case TypInteger:
		if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return Integer(i)
		}
	case TypFloat:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			return Float(f)
		}
	case TypDatetime:
		if ts, ok := parseDatetime(string(data)); ok {
			return Datetime(ts)
		}
	case TypString:
		if utf8.Valid(data) {
			return String(data)
		}
	case TypBytes:
		return Bytes(append([]byte(nil), data...))
	}
	if utf8.Valid(data) {
		return String(data)
	}
	return Bytes(append([]byte(nil), data...))
}

func parseDatetime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
