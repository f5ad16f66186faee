package sctp

import (
	"time"

	"github.com/pion/logging"
)

// Default wire-level ceilings, matching pion/sctp's Config defaults
// where it has an equivalent and RFC 4960's mandated minimums
// elsewhere (a_rwnd floor of 1500 bytes, §3.3.2).
const (
	DefaultMaxMessageSize   = 65536
	DefaultMaxReceiveBuffer = 1024 * 1024
	DefaultMaxPayloadSize   = 1200 // fits common-case MTU after IP/UDP/DTLS/SCTP headers

	DefaultMaxInitRetransmits        = 8
	DefaultMaxAssociationRetransmits = 10
	DefaultMaxPathRetransmits        = 5

	DefaultCookieLifetime = 60 * time.Second
)

// EndpointConfig holds the wire-level ceilings shared by every
// Association a single Endpoint hosts, plus the ambient LoggerFactory
// every component derives its logger from (§6.1).
type EndpointConfig struct {
	// MaxMessageSize aborts the association if a reassembled message
	// would exceed it.
	MaxMessageSize uint32
	// MaxReceiveBuffer is the total a_rwnd ceiling; advertised a_rwnd
	// is this minus bytes currently buffered across all streams.
	MaxReceiveBuffer uint32
	// MaxPayloadSize is the user-data byte budget per DATA/I-DATA
	// fragment, capped at what fits in one MTU-sized packet after the
	// common and DATA chunk headers.
	MaxPayloadSize uint32

	MaxInitRetransmits        uint32
	MaxAssociationRetransmits uint32
	MaxPathRetransmits        uint32

	RTOInitial time.Duration
	RTOMin     time.Duration
	RTOMax     time.Duration

	// Nagle is not read by the engine: outbound DATA chunks ready in
	// the same transmit pass are always bundled into as few MTU-sized
	// datagrams as they fit, whatever its value.
	Nagle bool

	// LoggerFactory is used to derive every logging.LeveledLogger:
	// each Association and its Streams log under the "sctp" scope and
	// the Endpoint under "sctp.endpoint". The scope does not include
	// the association handle.
	LoggerFactory logging.LoggerFactory
}

// DefaultEndpointConfig returns an EndpointConfig populated with this
// module's defaults; callers override only the fields they care about.
func DefaultEndpointConfig() *EndpointConfig {
	return &EndpointConfig{
		MaxMessageSize:            DefaultMaxMessageSize,
		MaxReceiveBuffer:          DefaultMaxReceiveBuffer,
		MaxPayloadSize:            DefaultMaxPayloadSize,
		MaxInitRetransmits:        DefaultMaxInitRetransmits,
		MaxAssociationRetransmits: DefaultMaxAssociationRetransmits,
		MaxPathRetransmits:        DefaultMaxPathRetransmits,
		RTOInitial:                rtoInitialDefault,
		RTOMin:                    rtoMinDefault,
		RTOMax:                    rtoMaxDefault,
		LoggerFactory:             logging.NewDefaultLoggerFactory(),
	}
}

// ServerConfig's mere presence on an Endpoint is what makes that
// Endpoint willing to accept inbound INIT chunks (§4.4.1): an Endpoint
// with a nil ServerConfig silently drops INITs rather than responding.
type ServerConfig struct {
	// CookieLifetime bounds how old a state cookie may be when echoed
	// back in COOKIE-ECHO before it is rejected as stale.
	CookieLifetime time.Duration
	// CookieSecret keys the state-cookie HMAC. If empty, the Endpoint
	// generates one via randutil at construction.
	CookieSecret []byte
}

// ClientConfig holds options for an outbound association. Connect does
// not take one and no code reads it: new streams start reliable and
// ordered, and each stream's policy is set with
// Stream.SetReliabilityParams.
type ClientConfig struct {
	// PartialReliability is a reliability policy; it is not applied to
	// any stream.
	PartialReliability PartialReliabilityPolicy
}

// PartialReliabilityPolicy names one of RFC 3758's abandonment
// policies for a stream's outbound messages.
type PartialReliabilityPolicy struct {
	Unordered bool
	Type      byte   // ReliabilityTypeReliable | ReliabilityTypeRexmit | ReliabilityTypeTimed
	Value     uint32 // retransmit count or lifetime in ms, per Type
}
