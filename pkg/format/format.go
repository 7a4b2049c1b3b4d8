// Package format adapts JSON, YAML, and TOML documents to the value
// model. Decoders preserve document key order where the library allows
// (JSON, YAML); JSON and TOML encoders emit map keys sorted, YAML keeps
// insertion order.
package format

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jacktea/ffs/pkg/value"
)

// Format identifies a supported serialization format.
type Format int

const (
	JSON Format = iota
	TOML
	YAML
)

// Names lists the accepted format names, for CLI help strings.
var Names = []string{"json", "toml", "yaml"}

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case TOML:
		return "toml"
	case YAML:
		return "yaml"
	default:
		return "invalid"
	}
}

// Parse resolves a format name ("yml" is accepted for YAML).
func Parse(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, true
	case "toml":
		return TOML, true
	case "yaml", "yml":
		return YAML, true
	default:
		return JSON, false
	}
}

// FromExtension infers a format from a file path's extension.
func FromExtension(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, true
	case ".toml":
		return TOML, true
	case ".yaml", ".yml":
		return YAML, true
	default:
		return JSON, false
	}
}

// Extension returns the canonical file extension for f.
func (f Format) Extension() string {
	return "." + f.String()
}

// CanBePretty reports whether f distinguishes a pretty-printed form.
func (f Format) CanBePretty() bool {
	return f == JSON || f == TOML
}

// Decode parses a document into the value model.
func (f Format) Decode(data []byte) (value.Value, error) {
	switch f {
	case JSON:
		return decodeJSON(data)
	case TOML:
		return decodeTOML(data)
	case YAML:
		return decodeYAML(data)
	default:
		return nil, fmt.Errorf("decode: unknown format %d", f)
	}
}

// Encode serializes a value. Formats that cannot represent a variant
// (TOML: Null, non-map top level) return an error and write nothing.
func (f Format) Encode(v value.Value, pretty bool) ([]byte, error) {
	switch f {
	case JSON:
		return encodeJSON(v, pretty)
	case TOML:
		return encodeTOML(v)
	case YAML:
		return encodeYAML(v)
	default:
		return nil, fmt.Errorf("encode: unknown format %d", f)
	}
}
