package codec

import (
	"fmt"
	"sort"
	"strings"
)

// ICodec turns typed values into bytes and back. Implementations must be safe for
// concurrent use and must not keep references to the values or buffers they are given.
type ICodec interface {
	// Encode serializes v.
	Encode(v any) ([]byte, error)
	// Decode deserializes data into v, which must be a non-nil pointer.
	Decode(data []byte, v any) error
	// Name returns the name the codec is registered under.
	Name() string
}

var registry = map[string]ICodec{
	JSON.Name():      JSON,
	Gob.Name():       Gob,
	YAML.Name():      YAML,
	Proto.Name():     Proto,
	ProtoJSON.Name(): ProtoJSON,
}

// ByName returns the codec registered under name (case-insensitive)
func ByName(name string) (ICodec, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names returns the names of all registered codecs in alphabetical order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
