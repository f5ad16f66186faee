package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblyQueueOrderedSingleFragmentMessage(t *testing.T) {
	r := newReassemblyQueue(1)

	c := &chunkPayloadData{
		streamIdentifier:  1,
		beginningFragment: true,
		endingFragment:    true,
		tsn:               10,
		userData:          []byte("hello"),
		payloadType:       PayloadTypeWebRTCString,
	}

	assert.True(t, r.push(c))
	assert.True(t, r.isReadable())

	buf := make([]byte, 16)
	n, ppi, err := r.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, PayloadTypeWebRTCString, ppi)
	assert.False(t, r.isReadable())
}

func TestReassemblyQueueOrderedMultiFragmentMessageReassemblesInTSNOrder(t *testing.T) {
	r := newReassemblyQueue(1)

	last := &chunkPayloadData{streamIdentifier: 1, tsn: 2, endingFragment: true, userData: []byte("rld")}
	first := &chunkPayloadData{streamIdentifier: 1, tsn: 1, beginningFragment: true, userData: []byte("wo")}

	assert.False(t, r.push(last)) // set incomplete until the beginning fragment arrives
	assert.True(t, r.push(first))

	buf := make([]byte, 16)
	n, _, err := r.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestReassemblyQueueHoldsLaterOrderedSetUntilEarlierKeyArrives(t *testing.T) {
	r := newReassemblyQueue(1)

	second := &chunkPayloadData{streamIdentifier: 1, tsn: 5, streamSequenceNumber: 1, beginningFragment: true, endingFragment: true, userData: []byte("b")}
	assert.True(t, r.push(second))
	assert.False(t, r.isReadable()) // nextKey is still 0

	first := &chunkPayloadData{streamIdentifier: 1, tsn: 4, streamSequenceNumber: 0, beginningFragment: true, endingFragment: true, userData: []byte("a")}
	assert.True(t, r.push(first))
	assert.True(t, r.isReadable())

	buf := make([]byte, 4)
	n, _, err := r.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "a", string(buf[:n]))

	assert.True(t, r.isReadable())
	n, _, err = r.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "b", string(buf[:n]))
}

func TestReassemblyQueueUnorderedReassemblesByContiguousTSN(t *testing.T) {
	r := newReassemblyQueue(1)

	end := &chunkPayloadData{streamIdentifier: 1, tsn: 8, unordered: true, endingFragment: true, userData: []byte("yz")}
	begin := &chunkPayloadData{streamIdentifier: 1, tsn: 7, unordered: true, beginningFragment: true, userData: []byte("x")}

	assert.False(t, r.push(end))
	assert.True(t, r.push(begin))
	require.True(t, r.isReadable())

	buf := make([]byte, 8)
	n, _, err := r.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(buf[:n]))
}

func TestReassemblyQueueRejectsChunkForOtherStream(t *testing.T) {
	r := newReassemblyQueue(1)
	c := &chunkPayloadData{streamIdentifier: 2, beginningFragment: true, endingFragment: true, userData: []byte("x")}
	assert.False(t, r.push(c))
}

func TestReassemblyQueueForwardTSNForOrderedDropsIncompleteSets(t *testing.T) {
	r := newReassemblyQueue(1)

	incomplete := &chunkPayloadData{streamIdentifier: 1, tsn: 1, streamSequenceNumber: 0, beginningFragment: true, userData: []byte("a")}
	r.push(incomplete)
	assert.Equal(t, 1, r.getNumBytes())

	r.forwardTSNForOrdered(0)
	assert.Equal(t, 0, r.getNumBytes())
	assert.Equal(t, uint32(1), r.nextKey)
}
