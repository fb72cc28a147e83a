// Package codec provides the value codecs used to store typed Go values in a
// byte oriented datastore.
//
// Available implementations:
//
//   - JSON (NewJSONCodec): human-readable, handles nil and dynamic values (any,
//     map[string]any, nested slices).
//
//   - GOB (NewGOBCodec): Go's binary format, compact for concrete struct types.
//
// Example:
//
//	c := codec.NewJSONCodec()
//	b, err := c.Marshal(map[string]any{"a": 1})
//	...
//	var v map[string]any
//	err = c.Unmarshal(b, &v)
package codec
