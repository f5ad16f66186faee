package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestStream(id uint16) *Stream {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	return a.createStream(id)
}

func TestStreamBufferedAmountLowEdgeTriggered(t *testing.T) {
	s := newTestStream(1)
	s.SetBufferedAmountLowThreshold(10)

	s.bufferedAmount = 20
	assert.False(t, s.checkBufferedAmountLow()) // still above

	s.bufferedAmount = 5
	assert.True(t, s.checkBufferedAmountLow()) // edge: crosses to at-or-below

	assert.False(t, s.checkBufferedAmountLow()) // already latched, no repeat fire
}

func TestStreamBufferedAmountHighEdgeTriggered(t *testing.T) {
	s := newTestStream(1)
	s.SetBufferedAmountHighThreshold(100)

	s.bufferedAmount = 50
	assert.False(t, s.checkBufferedAmountHigh())

	s.bufferedAmount = 150
	assert.True(t, s.checkBufferedAmountHigh()) // edge: crosses above

	assert.False(t, s.checkBufferedAmountHigh()) // latched
}

func TestStreamOnBufferReleased(t *testing.T) {
	s := newTestStream(1)
	s.bufferedAmount = 100
	s.SetBufferedAmountLowThreshold(50)

	assert.False(t, s.onBufferReleased(30)) // 70 left, still above 50
	assert.True(t, s.onBufferReleased(30))  // 40 left, crosses at-or-below 50
}

func TestStreamStateTransitionsOnClose(t *testing.T) {
	s := newTestStream(1)
	s.association.state = established
	assert.Equal(t, StreamStateOpen, s.State())

	assert.NoError(t, s.Close())
	assert.Equal(t, StreamStateClosing, s.State())

	s.onInboundStreamReset()
	assert.Equal(t, StreamStateClosed, s.State())
}

func TestStreamWriteSCTPRejectsOversizedMessage(t *testing.T) {
	s := newTestStream(1)
	s.association.maxMessageSize = 4
	_, err := s.WriteSCTP(make([]byte, 5), PayloadTypeWebRTCBinary)
	assert.ErrorIs(t, err, ErrOutboundPacketTooLarge)
}

func TestStreamWriteSCTPWouldBlockBeforeEstablished(t *testing.T) {
	s := newTestStream(1)
	_, err := s.WriteSCTP([]byte("hi"), PayloadTypeWebRTCString)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestStreamWriteAfterCloseFails(t *testing.T) {
	s := newTestStream(1)
	s.association.state = established
	assert.NoError(t, s.Close())
	_, err := s.WriteSCTP([]byte("hi"), PayloadTypeWebRTCString)
	assert.ErrorIs(t, err, ErrStreamClosed)
}
