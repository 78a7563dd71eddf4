package memcwire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scslab/mutated/internal/memcwire"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, memcwire.HeaderSize)
	memcwire.PutHeader(buf, memcwire.OpSet, 10, 8, 100, 0xabcd1234)

	// PutHeader writes a request header; flip the magic byte to simulate
	// the server's response so ParseHeader reads the same fields back.
	buf[0] = memcwire.MagicResponse
	got := memcwire.ParseHeader(buf)

	assert.Equal(t, byte(memcwire.MagicResponse), got.Magic)
	assert.Equal(t, byte(memcwire.OpSet), got.Opcode)
	assert.Equal(t, uint32(100), got.BodyLen)
	assert.Equal(t, uint32(0xabcd1234), got.Opaque)
}

func TestKeyIsFixedWidth(t *testing.T) {
	k := memcwire.Key(42)
	assert.Len(t, k, memcwire.KeySize)
	assert.Equal(t, "key-00000000000000000000000042", k)
}

func TestConcatHandlesUnwrappedAndWrappedSegments(t *testing.T) {
	assert.Equal(t, "abcd", string(memcwire.Concat([]byte("abcd"), nil, 4)))
	assert.Equal(t, "abcd", string(memcwire.Concat([]byte("ab"), []byte("cd"), 4)))
}
