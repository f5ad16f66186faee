package sctp

import (
	"fmt"
	"io"

	"github.com/pion/logging"
	"github.com/pkg/errors"
)

const (
	// ReliabilityTypeReliable is used for reliable transmission
	ReliabilityTypeReliable byte = 0
	// ReliabilityTypeRexmit is used for partial reliability by retransmission count
	ReliabilityTypeRexmit byte = 1
	// ReliabilityTypeTimed is used for partial reliability by retransmission duration
	ReliabilityTypeTimed byte = 2
)

// StreamState is an enum for SCTP Stream state field
// This field identifies the state of stream.
type StreamState int

// StreamState enums
const (
	StreamStateOpen    StreamState = iota // Stream object starts with StreamStateOpen
	StreamStateClosing                    // Outgoing stream is being reset
	StreamStateClosed                     // Stream has been closed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateOpen:
		return "open"
	case StreamStateClosing:
		return "closing"
	case StreamStateClosed:
		return "closed"
	}
	return "unknown"
}

// SCTP stream errors
var (
	ErrOutboundPacketTooLarge = errors.New("outbound packet larger than maximum message size")
	ErrStreamClosed           = errors.New("stream closed")
	// ErrWouldBlock is returned by WriteSCTP while the association has
	// not reached ESTABLISHED; nothing of the message is buffered, so
	// the caller must write it again once the association is
	// established. There is no queue-capacity limit behind it.
	// ReadSCTP returns it when no complete message is queued yet; the
	// caller should wait for a StreamReadable Event instead of blocking.
	ErrWouldBlock = errors.New("operation would block")
)

// Stream represents a single SCTP stream within an Association. All
// methods assume the caller serializes access the same way it
// serializes Handle/HandleTimeout/Poll* on the owning Association
// (§5): there is no internal locking.
type Stream struct {
	association         *Association
	streamIdentifier    uint16
	defaultPayloadType  PayloadProtocolIdentifier
	reassemblyQueue     *reassemblyQueue
	sequenceNumber      uint16
	readErr             error
	unordered            bool
	reliabilityType      byte
	reliabilityValue     uint32
	bufferedAmount       uint64
	bufferedAmountLow    uint64
	bufferedAmountHigh   uint64
	bufferedAmountLowSet bool  // latch: true once below-or-at threshold, for edge triggering
	wasAboveHigh         bool  // latch for BufferedAmountHigh's edge
	state                StreamState
	log                  logging.LeveledLogger
	name                 string
}

// StreamIdentifier returns the Stream identifier associated to the stream.
func (s *Stream) StreamIdentifier() uint16 {
	return s.streamIdentifier
}

// SetDefaultPayloadType sets the default payload type used by Write.
func (s *Stream) SetDefaultPayloadType(defaultPayloadType PayloadProtocolIdentifier) {
	s.defaultPayloadType = defaultPayloadType
}

// SetReliabilityParams sets reliability parameters for this stream.
func (s *Stream) SetReliabilityParams(unordered bool, relType byte, relVal uint32) {
	s.log.Debugf("[%s] reliability params: ordered=%v type=%d value=%d",
		s.name, !unordered, relType, relVal)
	s.unordered = unordered
	s.reliabilityType = relType
	s.reliabilityValue = relVal
}

// Read reads a packet of len(p) bytes, dropping the Payload Protocol
// Identifier. Returns ErrWouldBlock if no complete message is queued,
// or io.EOF once the stream has been reset by the peer and no complete
// message remains.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(p)
	return n, err
}

// ReadSCTP reads a packet of len(p) bytes and returns the associated
// Payload Protocol Identifier. Non-blocking: callers drive readiness
// from the StreamReadable Event rather than a deadline/notifier.
func (s *Stream) ReadSCTP(p []byte) (int, PayloadProtocolIdentifier, error) {
	n, ppi, err := s.reassemblyQueue.read(p)
	if err == nil {
		return n, ppi, nil
	}
	if errors.Is(err, io.ErrShortBuffer) {
		return 0, PayloadProtocolIdentifier(0), err
	}

	if s.readErr != nil {
		return 0, PayloadProtocolIdentifier(0), s.readErr
	}
	return 0, PayloadProtocolIdentifier(0), ErrWouldBlock
}

// handleData folds a newly-arrived (I-)DATA chunk into the reassembly
// queue and reports whether a StreamReadable Event should be queued.
func (s *Stream) handleData(pd *chunkPayloadData) (readable bool) {
	if s.reassemblyQueue.push(pd) {
		readable = s.reassemblyQueue.isReadable()
		s.log.Debugf("[%s] reassemblyQueue readable=%v", s.name, readable)
	}
	return readable
}

func (s *Stream) handleForwardTSNForOrdered(newCumulativeTSNOrKey uint32) (readable bool) {
	if s.unordered {
		return false // unordered chunks are handled by handleForwardTSNForUnordered
	}
	s.reassemblyQueue.forwardTSNForOrdered(newCumulativeTSNOrKey)
	return s.reassemblyQueue.isReadable()
}

func (s *Stream) handleForwardTSNForUnordered(newCumulativeTSN uint32) (readable bool) {
	if !s.unordered {
		return false // ordered chunks are handled by handleForwardTSNForOrdered
	}
	s.reassemblyQueue.forwardTSNForUnordered(newCumulativeTSN)
	return s.reassemblyQueue.isReadable()
}

// Write writes len(p) bytes from p with the default Payload Protocol Identifier
func (s *Stream) Write(p []byte) (n int, err error) {
	return s.WriteSCTP(p, s.defaultPayloadType)
}

// WriteSCTP enqueues p for transmission on this stream, to be carried
// on a future PollTransmit datagram. It either accepts the whole
// message or returns ErrWouldBlock without buffering any of it; there
// is no partial accept.
func (s *Stream) WriteSCTP(p []byte, ppi PayloadProtocolIdentifier) (int, error) {
	maxMessageSize := s.association.MaxMessageSize()
	if len(p) > int(maxMessageSize) {
		return 0, fmt.Errorf("%w: %v", ErrOutboundPacketTooLarge, maxMessageSize)
	}

	if s.State() != StreamStateOpen {
		return 0, ErrStreamClosed
	}

	chunks := s.packetize(p, ppi)
	if !s.association.sendPayloadData(chunks) {
		s.unpacketize(len(p))
		return 0, ErrWouldBlock
	}
	return len(p), nil
}

func (s *Stream) packetize(raw []byte, ppi PayloadProtocolIdentifier) []*chunkPayloadData {
	i := uint32(0)
	remaining := uint32(len(raw))

	// From draft-ietf-rtcweb-data-protocol-09, section 6:
	//   All Data Channel Establishment Protocol messages MUST be sent using
	//   ordered delivery and reliable transmission.
	unordered := ppi != PayloadTypeWebRTCDCEP && s.unordered

	var chunks []*chunkPayloadData
	var head *chunkPayloadData
	for remaining != 0 {
		fragmentSize := min32(s.association.maxPayloadSize, remaining)

		// Copy the userdata since we'll have to store it until acked
		// and the caller may re-use the buffer in the mean time
		userData := make([]byte, fragmentSize)
		copy(userData, raw[i:i+fragmentSize])

		chunk := &chunkPayloadData{
			streamIdentifier:     s.streamIdentifier,
			userData:             userData,
			unordered:            unordered,
			beginningFragment:    i == 0,
			endingFragment:       remaining-fragmentSize == 0,
			immediateSack:        false,
			payloadType:          ppi,
			streamSequenceNumber: s.sequenceNumber,
			head:                 head,
		}

		if head == nil {
			head = chunk
		}

		chunks = append(chunks, chunk)

		remaining -= fragmentSize
		i += fragmentSize
	}

	// RFC 4960 Sec 6.6
	// Note: When transmitting ordered and unordered data, an endpoint does
	// not increment its Stream Sequence Number when transmitting a DATA
	// chunk with U flag set to 1.
	if !unordered {
		s.sequenceNumber++
	}

	s.bufferedAmount += uint64(len(raw))
	s.log.Tracef("[%s] bufferedAmount = %d", s.name, s.bufferedAmount)
	if s.checkBufferedAmountHigh() {
		s.association.pushEvent(Event{
			Kind:       EventStream,
			StreamKind: StreamBufferedAmountHigh,
			StreamID:   s.streamIdentifier,
			Threshold:  s.bufferedAmountHigh,
		})
	}

	return chunks
}

// unpacketize undoes packetize's bookkeeping when the association
// refused to enqueue the chunks it produced.
func (s *Stream) unpacketize(n int) {
	if s.bufferedAmount < uint64(n) {
		s.bufferedAmount = 0
	} else {
		s.bufferedAmount -= uint64(n)
	}
}

// Close closes the write-direction of the stream.
// Future calls to Write are not permitted after calling Close.
func (s *Stream) Close() error {
	s.log.Debugf("[%s] Close: state=%s", s.name, s.state.String())

	if s.state != StreamStateOpen {
		return nil
	}

	if s.readErr == nil {
		s.state = StreamStateClosing
	} else {
		s.state = StreamStateClosed
	}
	s.log.Debugf("[%s] state change: open => %s", s.name, s.state.String())

	// Reset the outgoing stream, https://tools.ietf.org/html/rfc6525
	return s.association.ResetStream(s.streamIdentifier)
}

// BufferedAmount returns the number of bytes of data currently queued to be sent over this stream.
func (s *Stream) BufferedAmount() uint64 {
	return s.bufferedAmount
}

// BufferedAmountLowThreshold returns the number of bytes of buffered outgoing data that is
// considered "low." Defaults to 0.
func (s *Stream) BufferedAmountLowThreshold() uint64 {
	return s.bufferedAmountLow
}

// SetBufferedAmountLowThreshold is used to update the threshold.
// See BufferedAmountLowThreshold().
func (s *Stream) SetBufferedAmountLowThreshold(th uint64) {
	s.bufferedAmountLow = th
}

// SetBufferedAmountHighThreshold sets the watermark BufferedAmountHigh
// fires on, on the edge-triggered transition from at-or-below to
// above it.
func (s *Stream) SetBufferedAmountHighThreshold(th uint64) {
	s.bufferedAmountHigh = th
}

func (s *Stream) checkBufferedAmountHigh() (fire bool) {
	if s.bufferedAmountHigh == 0 {
		return false
	}
	above := s.bufferedAmount > s.bufferedAmountHigh
	fire = above && !s.wasAboveHigh
	s.wasAboveHigh = above
	return fire
}

func (s *Stream) checkBufferedAmountLow() (fire bool) {
	atOrBelow := s.bufferedAmount <= s.bufferedAmountLow
	fire = atOrBelow && !s.bufferedAmountLowSet
	s.bufferedAmountLowSet = atOrBelow
	return fire
}

// onBufferReleased is called once transmitted data is SACKed or
// abandoned, reporting whether a BufferedAmountLow Event should be
// queued for this transition.
func (s *Stream) onBufferReleased(nBytesReleased int) (lowFired bool) {
	if nBytesReleased <= 0 {
		return false
	}

	if s.bufferedAmount < uint64(nBytesReleased) {
		s.log.Errorf("[%s] released buffer size %d should be <= %d",
			s.name, nBytesReleased, s.bufferedAmount)
		s.bufferedAmount = 0
	} else {
		s.bufferedAmount -= uint64(nBytesReleased)
	}

	s.log.Tracef("[%s] bufferedAmount = %d", s.name, s.bufferedAmount)
	return s.checkBufferedAmountLow()
}

func (s *Stream) getNumBytesInReassemblyQueue() int {
	return s.reassemblyQueue.getNumBytes()
}

// onInboundStreamReset marks the read side closed; the caller observes
// this via ReadSCTP returning io.EOF, not a broadcast notifier.
//
// See RFC 8831 section 6.7: if one side decides to close the data
// channel, it resets the corresponding outgoing stream. When the peer
// sees that an incoming stream was reset, it also resets its
// corresponding outgoing stream. Once this is completed, the data
// channel is closed.
func (s *Stream) onInboundStreamReset() {
	s.log.Debugf("[%s] onInboundStreamReset: state=%s", s.name, s.state.String())

	s.readErr = io.EOF

	if s.state == StreamStateClosing {
		s.log.Debugf("[%s] state change: closing => closed", s.name)
		s.state = StreamStateClosed
	}
}

// State return the stream state.
func (s *Stream) State() StreamState {
	return s.state
}
