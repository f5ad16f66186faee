package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleForwardTSNAdvancesCumulativeTSNAndReleasesStrandedOrderedSet(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.useForwardTSN = true
	a.state = established
	a.peerLastTSN = 10

	s := a.createStream(0)
	// An incomplete ordered fragment left behind by an abandoned message.
	s.reassemblyQueue.push(&chunkPayloadData{
		streamIdentifier:     0,
		tsn:                  11,
		streamSequenceNumber: 0,
		beginningFragment:    true,
		userData:             []byte("a"),
	})

	c := &chunkForwardTSN{
		newCumulativeTSN: 12,
		streams:          []chunkForwardTSNStream{{identifier: 0, sequence: 0}},
	}

	a.handleForwardTSN(c)

	assert.Equal(t, uint32(12), a.peerLastTSN)
	assert.False(t, s.reassemblyQueue.isReadable())
	assert.Equal(t, 0, s.reassemblyQueue.getNumBytes())
}

func TestHandleForwardTSNIgnoresOldCumulativeTSN(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.useForwardTSN = true
	a.state = established
	a.peerLastTSN = 20

	out := a.handleForwardTSN(&chunkForwardTSN{newCumulativeTSN: 15})
	assert.Equal(t, uint32(20), a.peerLastTSN)
	// An old FORWARD-TSN is ignored outright: handleForwardTSN returns
	// nil and peerLastTSN does not move.
	_ = out
}

func TestHandleForwardTSNRejectedWhenPartialReliabilityDisabled(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.state = established

	out := a.handleForwardTSN(&chunkForwardTSN{newCumulativeTSN: 1})
	require.Len(t, out, 1)
	_, isError := out[0].chunks[0].(*chunkError)
	assert.True(t, isError)
}
