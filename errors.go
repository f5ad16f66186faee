package sctp

import "github.com/pkg/errors"

// Error kinds from the error-handling design (§7): every association-
// fatal or packet-level condition the engine can surface is one of
// these sentinels, wrapped with call-site context the way pion/sctp
// wraps its own chunk/param errors with github.com/pkg/errors.
var (
	// ErrInvalidPacket covers a malformed common header, a length
	// violation, or a bad CRC. Always handled by a silent drop at the
	// Endpoint/Association boundary; never surfaced as an Event.
	ErrInvalidPacket = errors.New("invalid SCTP packet")

	// ErrInvalidChunk covers an unrecognized chunk type whose action
	// bits request abort-on-unrecognized.
	ErrInvalidChunk = errors.New("invalid or unrecognized SCTP chunk")

	// ErrUnexpectedChunk covers a chunk that is well-formed but
	// illegal in the association's current state (e.g. DATA before
	// ESTABLISHED).
	ErrUnexpectedChunk = errors.New("unexpected chunk for current association state")

	// ErrProtocolViolation covers a violated invariant: an oversize
	// reassembled message, a RE-CONFIG request out of sequence, and
	// similar conditions RFC 4960 calls "protocol violation".
	ErrProtocolViolation = errors.New("SCTP protocol violation")

	// ErrHandshakeFailed covers exhausting the INIT/COOKIE-ECHO retry
	// budget without a response.
	ErrHandshakeFailed = errors.New("SCTP handshake failed")

	// ErrPeerAborted wraps the cause carried in an inbound ABORT
	// chunk.
	ErrPeerAborted = errors.New("peer aborted the association")

	// ErrAssociationTimeout covers exhausting the T3-RTX retransmit
	// budget (max_association_retransmits).
	ErrAssociationTimeout = errors.New("association retransmission timeout")

	// ErrResourceExhausted covers hitting the configured receive
	// buffer ceiling.
	ErrResourceExhausted = errors.New("SCTP resource exhausted")
)
