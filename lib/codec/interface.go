package codec

import "fmt"

// ICodec is the interface for all value codecs.
// A codec turns Go values into the bytes stored in a datastore and back.
type ICodec interface {
	// Name returns the name of the codec (e.g. "json")
	Name() string
	// Marshal encodes a value into a byte array
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a byte array into the value pointed to by v
	Unmarshal(b []byte, v any) error
}

// ByName returns the codec with the given name
func ByName(name string) (ICodec, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "gob":
		return NewGOBCodec(), nil
	default:
		return nil, fmt.Errorf("unknown codec: %q. must be one of json, gob", name)
	}
}
