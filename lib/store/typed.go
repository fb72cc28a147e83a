package store

import (
	"fmt"

	"github.com/ValentinKolb/sKV/lib/codec"
)

// Typed stores values of type T in a store, encoded with a codec.
type Typed[T any] struct {
	store IStore
	codec codec.ICodec
}

// NewTyped creates a typed view of s (c may be nil, then json is used)
func NewTyped[T any](s IStore, c codec.ICodec) *Typed[T] {
	if c == nil {
		c = codec.NewJSONCodec()
	}
	return &Typed[T]{store: s, codec: c}
}

// Set encodes and stores value under key
func (t *Typed[T]) Set(key string, value T) error {
	b, err := t.codec.Marshal(value)
	if err != nil {
		return WrapError(RetCInvalidOperation, fmt.Sprintf("encoding value for %q with %s", key, t.codec.Name()), err)
	}
	_, err = t.store.SetItem(key, b)
	return err
}

// Get loads and decodes the value of key. An absent key returns the zero value and false.
func (t *Typed[T]) Get(key string) (T, bool, error) {
	var value T
	b, found, err := t.store.GetItem(key)
	if err != nil || !found {
		return value, false, err
	}
	if err := t.codec.Unmarshal(b, &value); err != nil {
		return value, false, WrapError(RetCInvalidOperation, fmt.Sprintf("decoding value of %q with %s", key, t.codec.Name()), err)
	}
	return value, true, nil
}

// Remove deletes key
func (t *Typed[T]) Remove(key string) error {
	return t.store.RemoveItem(key)
}
