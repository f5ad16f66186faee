package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPadding(t *testing.T) {
	cases := map[int]int{0: 0, 1: 3, 2: 2, 3: 1, 4: 0, 5: 3}
	for in, want := range cases {
		assert.Equal(t, want, getPadding(in))
	}
}

func TestPadByte(t *testing.T) {
	out := padByte([]byte{1, 2, 3}, 2)
	assert.Equal(t, []byte{1, 2, 3, 0, 0}, out)

	out = padByte([]byte{1}, -1)
	assert.Equal(t, []byte{1}, out)
}

func TestSNA32(t *testing.T) {
	assert.True(t, sna32LT(10, 11))
	assert.False(t, sna32LT(11, 10))
	assert.True(t, sna32GT(11, 10))
	assert.True(t, sna32EQ(5, 5))
	assert.True(t, sna32LTE(5, 5))
	assert.True(t, sna32GTE(5, 5))

	// wraparound around the 32-bit boundary
	const max = ^uint32(0)
	assert.True(t, sna32LT(max, 0))
	assert.True(t, sna32GT(0, max))
}

func TestSNA16(t *testing.T) {
	assert.True(t, sna16LT(10, 11))
	assert.False(t, sna16LT(11, 10))
	assert.True(t, sna16GT(11, 10))
	assert.True(t, sna16EQ(5, 5))

	const max = ^uint16(0)
	assert.True(t, sna16LT(max, 0))
	assert.True(t, sna16GT(0, max))
}
