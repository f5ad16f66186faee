package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadQueuePushAndPop(t *testing.T) {
	q := newPayloadQueue()

	c1 := &chunkPayloadData{tsn: 1, userData: []byte("ab")}
	c2 := &chunkPayloadData{tsn: 2, userData: []byte("cd")}

	assert.True(t, q.push(c1, 0))
	assert.True(t, q.push(c2, 0))
	assert.Equal(t, 4, q.getNumBytes())
	assert.Equal(t, 2, q.size())

	popped, ok := q.pop(1)
	assert.True(t, ok)
	assert.Same(t, c1, popped)
	assert.Equal(t, 2, q.getNumBytes())

	_, ok = q.pop(1)
	assert.False(t, ok)
}

func TestPayloadQueueDuplicateAndOlderAreRejected(t *testing.T) {
	q := newPayloadQueue()
	c1 := &chunkPayloadData{tsn: 5, userData: []byte("x")}
	assert.True(t, q.push(c1, 4))

	assert.False(t, q.push(c1, 4)) // already present
	assert.False(t, q.push(&chunkPayloadData{tsn: 4, userData: []byte("y")}, 4)) // at-or-before cumulative

	assert.Equal(t, []uint32{5, 4}, q.popDuplicates())
	assert.Empty(t, q.popDuplicates())
}

func TestPayloadQueueGapAckBlocks(t *testing.T) {
	q := newPayloadQueue()
	for _, tsn := range []uint32{2, 3, 5, 6, 7, 10} {
		q.pushNoCheck(&chunkPayloadData{tsn: tsn})
	}

	blocks := q.getGapAckBlocks(1)
	assert.Equal(t, []gapAckBlock{
		{start: 1, end: 2},
		{start: 4, end: 6},
		{start: 9, end: 9},
	}, blocks)
}

func TestPayloadQueueMarkAsAckedFreesBytes(t *testing.T) {
	q := newPayloadQueue()
	c := &chunkPayloadData{tsn: 1, userData: []byte("hello")}
	q.pushNoCheck(c)

	freed := q.markAsAcked(1)
	assert.Equal(t, 5, freed)
	assert.Equal(t, 0, q.getNumBytes())
	assert.True(t, c.acked)
	assert.Empty(t, c.userData)
}

func TestPayloadQueueMarkAllToRetransmitSkipsAckedAndAbandoned(t *testing.T) {
	q := newPayloadQueue()
	acked := &chunkPayloadData{tsn: 1, acked: true}
	abandoned := &chunkPayloadData{tsn: 2, _allInflight: true}
	abandoned.setAbandoned(true)
	pending := &chunkPayloadData{tsn: 3}

	q.pushNoCheck(acked)
	q.pushNoCheck(abandoned)
	q.pushNoCheck(pending)

	q.markAllToRetrasmit()

	assert.False(t, acked.retransmit)
	assert.False(t, abandoned.retransmit)
	assert.True(t, pending.retransmit)
}

func TestPayloadQueueGetLastTSNReceived(t *testing.T) {
	q := newPayloadQueue()
	_, ok := q.getLastTSNReceived()
	assert.False(t, ok)

	q.pushNoCheck(&chunkPayloadData{tsn: 3})
	q.pushNoCheck(&chunkPayloadData{tsn: 9})
	q.pushNoCheck(&chunkPayloadData{tsn: 5})

	last, ok := q.getLastTSNReceived()
	assert.True(t, ok)
	assert.Equal(t, uint32(9), last)
}
