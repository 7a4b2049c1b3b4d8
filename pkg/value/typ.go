package value

import "strings"

// Typ classifies an inode's contents. Files carry a scalar Typ or
// TypAuto; directories carry TypNamed or TypList. It is surfaced to
// users through the user.type extended attribute.
type Typ int

const (
	TypAuto Typ = iota
	TypNull
	TypBoolean
	TypInteger
	TypFloat
	TypDatetime
	TypString
	TypBytes
	TypNamed
	TypList
)

func (t Typ) String() string {
	switch t {
	case TypAuto:
		return "auto"
	case TypNull:
		return "null"
	case TypBoolean:
		return "boolean"
	case TypInteger:
		return "integer"
	case TypFloat:
		return "float"
	case TypDatetime:
		return "datetime"
	case TypString:
		return "string"
	case TypBytes:
		return "bytes"
	case TypNamed:
		return "named"
	case TypList:
		return "list"
	default:
		return "invalid"
	}
}

// ParseTyp resolves a user-facing type name, accepting the historical
// aliases.
func ParseTyp(s string) (Typ, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return TypAuto, true
	case "null":
		return TypNull, true
	case "boolean", "bool":
		return TypBoolean, true
	case "integer", "int":
		return TypInteger, true
	case "float", "double", "real":
		return TypFloat, true
	case "datetime", "date", "time":
		return TypDatetime, true
	case "string":
		return TypString, true
	case "bytes":
		return TypBytes, true
	case "named", "map", "object", "dir":
		return TypNamed, true
	case "list", "array":
		return TypList, true
	default:
		return TypAuto, false
	}
}

// IsDirectoryTyp reports whether t only makes sense on a directory.
func (t Typ) IsDirectoryTyp() bool { return t == TypNamed || t == TypList }

// ValidFor reports whether t may tag an inode of the given kind.
func (t Typ) ValidFor(isDir bool) bool {
	if isDir {
		return t.IsDirectoryTyp()
	}
	return !t.IsDirectoryTyp()
}

// TypOf returns the Typ describing a value.
func TypOf(v Value) Typ {
	switch v.Kind() {
	case KindNull:
		return TypNull
	case KindBool:
		return TypBoolean
	case KindInteger:
		return TypInteger
	case KindFloat:
		return TypFloat
	case KindDatetime:
		return TypDatetime
	case KindString:
		return TypString
	case KindBytes:
		return TypBytes
	case KindList:
		return TypList
	case KindMap:
		return TypNamed
	default:
		return TypAuto
	}
}
