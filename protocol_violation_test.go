package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDataAbortsOnOversizeReassembledMessage(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Server, 1, 1)
	a.state = established
	a.peerVerificationTag = 0xABCD
	a.maxMessageSize = 4

	first := &chunkPayloadData{
		streamIdentifier:  0,
		tsn:               1,
		beginningFragment: true,
		userData:          []byte("1234"),
	}
	last := &chunkPayloadData{
		streamIdentifier: 0,
		tsn:              2,
		endingFragment:   true,
		userData:         []byte("5"),
	}

	_, err := a.handleData(first)
	require.NoError(t, err)

	_, err = a.handleData(last)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestHandleChunkAbortsAssociationOnProtocolViolation(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Server, 1, 1)
	a.state = established
	a.peerVerificationTag = 0xABCD
	a.maxMessageSize = 4

	p := &packet{verificationTag: a.myVerificationTag}

	require.NoError(t, a.handleChunk(a.now, p, &chunkPayloadData{
		streamIdentifier:  0,
		tsn:               1,
		beginningFragment: true,
		userData:          []byte("1234"),
	}))

	err := a.handleChunk(a.now, p, &chunkPayloadData{
		streamIdentifier: 0,
		tsn:              2,
		endingFragment:   true,
		userData:         []byte("5"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	// handleChunk only reports the error; Handle is what actually tears
	// the association down and queues the ABORT.
	a.closeWithError(err)
	closed, cerr := a.Closed()
	assert.True(t, closed)
	assert.ErrorIs(t, cerr, ErrProtocolViolation)

	raw, ok := a.PollTransmit(a.now)
	require.True(t, ok)
	var pkt packet
	require.NoError(t, pkt.unmarshal(raw))
	_, isAbort := pkt.chunks[0].(*chunkAbort)
	assert.True(t, isAbort)
}

func TestHandleChunkRejectsDataBeforeEstablished(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.state = cookieEchoed

	err := a.handleChunk(a.now, &packet{}, &chunkPayloadData{streamIdentifier: 0, tsn: 1})
	assert.ErrorIs(t, err, ErrUnexpectedChunk)
}

func TestCloseWithErrorSkipsAbortWithoutPeerVerificationTag(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.state = cookieWait // peerVerificationTag never learned

	a.closeWithError(ErrHandshakeFailed)
	_, ok := a.PollTransmit(a.now)
	assert.False(t, ok)
}
