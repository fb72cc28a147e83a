package store

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedRoundTrip(t *testing.T) {
	h, _ := newTestHandle(t, nil)
	typed := NewTyped[any](h, nil)

	values := map[string]any{
		"number": float64(42.5),
		"string": "hello",
		"null":   nil,
		"object": map[string]any{"a": "b", "n": float64(1)},
		"nested": []any{float64(1), []any{"two", []any{true, nil}}},
	}

	for key, value := range values {
		require.NoError(t, typed.Set(key, value), key)
	}
	for key, want := range values {
		got, found, err := typed.Get(key)
		require.NoError(t, err, key)
		assert.True(t, found, key)
		assert.Equal(t, want, got, key)
	}

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, len(values), n)
}

type point struct {
	X, Y int
	Tags []string
}

func TestTypedGOB(t *testing.T) {
	h, _ := newTestHandle(t, nil)
	typed := NewTyped[point](h, codec.NewGOBCodec())

	p := point{X: 1, Y: -2, Tags: []string{"a"}}
	require.NoError(t, typed.Set("p", p))

	got, found, err := typed.Get("p")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, p, got)

	require.NoError(t, typed.Remove("p"))
	got, found, err = typed.Get("p")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, point{}, got)
}

func TestTypedCodecErrors(t *testing.T) {
	h, _ := newTestHandle(t, nil)

	// json can not encode channels
	chans := NewTyped[chan int](h, nil)
	err := chans.Set("c", make(chan int))
	assert.True(t, IsCode(err, RetCInvalidOperation), "expected invalid operation, got %v", err)

	_, err = h.SetItem("raw", []byte("not json"))
	require.NoError(t, err)
	ints := NewTyped[int](h, nil)
	_, found, err := ints.Get("raw")
	assert.False(t, found)
	assert.True(t, IsCode(err, RetCInvalidOperation), "expected invalid operation, got %v", err)
}
