package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingQueueOrderedFragmentsMustDrainInOrder(t *testing.T) {
	q := newPendingQueue()

	first := &chunkPayloadData{beginningFragment: true, userData: []byte("ab")}
	last := &chunkPayloadData{endingFragment: true, userData: []byte("cd")}
	q.push(first)
	q.push(last)
	assert.Equal(t, 4, q.getNumBytes())
	assert.Equal(t, 2, q.size())

	assert.Same(t, first, q.peek())
	require.NoError(t, q.pop(first))
	assert.Equal(t, 2, q.getNumBytes())

	assert.Same(t, last, q.peek())
	require.NoError(t, q.pop(last))
	assert.Equal(t, 0, q.getNumBytes())
}

func TestPendingQueueRejectsPoppingOutOfOrder(t *testing.T) {
	q := newPendingQueue()

	first := &chunkPayloadData{beginningFragment: true, userData: []byte("a")}
	mid := &chunkPayloadData{userData: []byte("b")}
	last := &chunkPayloadData{endingFragment: true, userData: []byte("c")}
	q.push(first)
	q.push(mid)
	q.push(last)

	require.NoError(t, q.pop(first)) // selects the ordered lane for this message
	assert.Error(t, q.pop(last))     // mid is still queued ahead of last
}

func TestPendingQueueRejectsNonBeginningChunkWhenNothingSelected(t *testing.T) {
	q := newPendingQueue()
	mid := &chunkPayloadData{userData: []byte("b")}
	q.push(mid)

	assert.Error(t, q.pop(mid))
}

func TestPendingQueueUnorderedAndOrderedAreSeparateLanes(t *testing.T) {
	q := newPendingQueue()

	ordered := &chunkPayloadData{beginningFragment: true, endingFragment: true, userData: []byte("o")}
	unordered := &chunkPayloadData{unordered: true, beginningFragment: true, endingFragment: true, userData: []byte("u")}

	q.push(ordered)
	q.push(unordered)
	assert.Equal(t, 2, q.size())

	// unordered lane is drained ahead of the ordered lane when nothing is selected.
	assert.Same(t, unordered, q.peek())
	require.NoError(t, q.pop(unordered))

	assert.Same(t, ordered, q.peek())
	require.NoError(t, q.pop(ordered))
}
