// Package codec serializes job payloads. The queue never inspects a payload;
// producers and handlers agree on a schema by sharing a Codec.
package codec

import "fmt"

// Codec defines the serialization contract for job payloads.
type Codec interface {
	// Marshal serializes v to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// Codec names accepted by ByName.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Default is the codec used when none is configured.
var Default Codec = JSON{}

// ByName returns a codec by name. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case NameJSON, "":
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
