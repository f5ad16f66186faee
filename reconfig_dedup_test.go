package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Replaying the identical Outgoing-SSN-Reset request (same sequence
// number) must answer from cache and must not re-reset a stream that
// was reopened under the same id in the meantime (RFC 6525 §5.2.2).
func TestHandleReconfigParamReplayServesCachedResponseAndSkipsReset(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Server, 1, 1)
	a.state = established
	a.peerLastTSN = 10

	s := a.createStream(7)
	s.state = StreamStateClosing // local Close() already in flight

	req := &paramOutgoingResetRequest{
		reconfigRequestSequenceNumber: 42,
		senderLastTSN:                 5,
		streamIdentifiers:              []uint16{7},
	}

	firstPkt, err := a.handleReconfigParam(req)
	require.NoError(t, err)
	require.Len(t, firstPkt.chunks, 1)
	firstResp, ok := firstPkt.chunks[0].(*chunkReconfig).paramA.(*paramReconfigResponse)
	require.True(t, ok)
	assert.Equal(t, reconfigResultSuccessPerformed, firstResp.result)
	assert.Equal(t, StreamStateClosed, s.state)

	// Simulate the stream id being reopened before the replay arrives.
	reopened := a.createStream(7)
	require.NotSame(t, s, reopened)

	secondPkt, err := a.handleReconfigParam(req)
	require.NoError(t, err)
	require.Len(t, secondPkt.chunks, 1)
	secondResp, ok := secondPkt.chunks[0].(*chunkReconfig).paramA.(*paramReconfigResponse)
	require.True(t, ok)
	assert.Equal(t, firstResp.reconfigResponseSequenceNumber, secondResp.reconfigResponseSequenceNumber)
	assert.Equal(t, firstResp.result, secondResp.result)

	// The replay must not have touched the newly reopened stream.
	assert.NotEqual(t, StreamStateClosed, reopened.state)
}
