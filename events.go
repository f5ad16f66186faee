package sctp

// Event is emitted from Association.Poll. The set of variants is
// non-exhaustive: callers must handle an unrecognized EventKind by
// ignoring it rather than treating it as an error, since future
// versions may add variants.
type EventKind int

// Event kinds.
const (
	// EventConnected is emitted once, by both sides, when the
	// handshake completes and the association reaches ESTABLISHED.
	EventConnected EventKind = iota
	// EventAssociationLost is emitted exactly once when the
	// association reaches CLOSED for any reason other than a failed
	// handshake: the peer aborted or a local fatal condition forced a
	// close (Cause is set), or a graceful shutdown completed (Cause is
	// nil).
	EventAssociationLost
	// EventHandshakeFailed is emitted when the client or server gives
	// up on completing the handshake (T1-INIT/T1-COOKIE exhausted).
	EventHandshakeFailed
	// EventDatagramReceived is emitted once per inbound datagram that
	// was accepted and processed, independent of its chunk contents.
	EventDatagramReceived
	// EventStream wraps a StreamEvent; see StreamEventKind for the
	// sub-kinds and which fields of Event are meaningful.
	EventStream
)

// Event is the tagged-variant value returned by Association.Poll.
// Only the fields relevant to Kind (and, for EventStream, StreamKind)
// are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// Cause is set for EventAssociationLost (peer ABORT or local fatal
	// error) and EventHandshakeFailed.
	Cause error

	// StreamKind, StreamID, and Threshold are set when Kind is
	// EventStream.
	StreamKind StreamEventKind
	StreamID   uint16
	Threshold  uint64
}

// StreamEventKind enumerates the sub-variants carried by EventStream.
// Also non-exhaustive.
type StreamEventKind int

const (
	// StreamOpened fires when a new inbound stream is first observed
	// (the peer sent DATA/I-DATA for a stream id not seen before).
	StreamOpened StreamEventKind = iota
	// StreamReadable fires when the stream's reassembly queue has at
	// least one complete message ready to Read.
	StreamReadable
	// StreamWritable fires for every already-open stream when the
	// association reaches ESTABLISHED, the point from which Write no
	// longer returns ErrWouldBlock.
	StreamWritable
	// StreamBufferedAmountLow fires on the edge-triggered transition
	// of BufferedAmount from above to at-or-below
	// BufferedAmountLowThreshold.
	StreamBufferedAmountLow
	// StreamBufferedAmountHigh fires on the edge-triggered transition
	// of BufferedAmount from at-or-below to above the configured high
	// watermark (Event.Threshold carries that watermark).
	StreamBufferedAmountHigh
	// StreamFinished fires once the stream's outbound RE-CONFIG reset
	// has been acknowledged by the peer.
	StreamFinished
	// StreamReset fires when the peer resets its outgoing stream that
	// corresponds to our inbound stream of the same id.
	StreamReset
)

func (k StreamEventKind) String() string {
	switch k {
	case StreamOpened:
		return "Opened"
	case StreamReadable:
		return "Readable"
	case StreamWritable:
		return "Writable"
	case StreamBufferedAmountLow:
		return "BufferedAmountLow"
	case StreamBufferedAmountHigh:
		return "BufferedAmountHigh"
	case StreamFinished:
		return "Finished"
	case StreamReset:
		return "Reset"
	default:
		return "Unknown"
	}
}
