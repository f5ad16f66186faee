package sctp

import (
	"crypto/hmac"
	"crypto/sha1" // nolint:gosec
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// cookieData carries the fields an Endpoint needs to complete the
// four-way handshake (RFC 4960 §5.1.3) without keeping any half-open
// association state of its own between INIT-ACK and COOKIE-ECHO. The
// cookie is opaque to the peer but authenticated with an HMAC keyed by
// a secret only the issuing Endpoint knows, so a peer cannot forge one
// and a stale cookie is rejected without server-side session storage.
// A cookie echoed again within its lifetime is not detected as a
// replay.
type cookieData struct {
	peerInitiateTag                uint32
	localInitiateTag               uint32
	peerInitialTSN                 uint32
	localInitialTSN                uint32
	advertisedReceiverWindowCredit uint32
	numOutboundStreams             uint16
	numInboundStreams              uint16
	createdAt                      time.Time
	mac                            []byte
}

const (
	stateCookieFixedLength = 24 // 5*4 + 2*2
	stateCookieMACLength   = sha1.Size
	stateCookieLength      = stateCookieFixedLength + 8 + stateCookieMACLength
)

var (
	// ErrStateCookieTooShort is returned when a COOKIE-ECHO's cookie is
	// too small to contain the fixed fields and MAC.
	ErrStateCookieTooShort = errors.New("state cookie shorter than minimum length")
	// ErrStateCookieMACMismatch is returned when the recomputed HMAC
	// does not match the one carried in the cookie: the cookie was
	// tampered with, or was not issued by this Endpoint's secret.
	ErrStateCookieMACMismatch = errors.New("state cookie MAC mismatch")
	// ErrStateCookieExpired is returned when a cookie's age exceeds the
	// Endpoint's configured cookie lifetime.
	ErrStateCookieExpired = errors.New("state cookie expired")
)

// newStateCookie builds a cookieData and signs it with secret. now is
// the caller's current time, supplied explicitly per the engine's
// sans-IO discipline.
func newStateCookie(
	secret []byte,
	now time.Time,
	peerInitiateTag, localInitiateTag uint32,
	peerInitialTSN, localInitialTSN uint32,
	aRwnd uint32,
	numOutboundStreams, numInboundStreams uint16,
) *cookieData {
	s := &cookieData{
		peerInitiateTag:                peerInitiateTag,
		localInitiateTag:               localInitiateTag,
		peerInitialTSN:                 peerInitialTSN,
		localInitialTSN:                localInitialTSN,
		advertisedReceiverWindowCredit: aRwnd,
		numOutboundStreams:             numOutboundStreams,
		numInboundStreams:              numInboundStreams,
		createdAt:                      now,
	}
	s.mac = s.sign(secret)
	return s
}

func (s *cookieData) fixedFields() []byte {
	raw := make([]byte, stateCookieFixedLength)
	binary.BigEndian.PutUint32(raw[0:], s.peerInitiateTag)
	binary.BigEndian.PutUint32(raw[4:], s.localInitiateTag)
	binary.BigEndian.PutUint32(raw[8:], s.peerInitialTSN)
	binary.BigEndian.PutUint32(raw[12:], s.localInitialTSN)
	binary.BigEndian.PutUint32(raw[16:], s.advertisedReceiverWindowCredit)
	binary.BigEndian.PutUint16(raw[20:], s.numOutboundStreams)
	binary.BigEndian.PutUint16(raw[22:], s.numInboundStreams)
	return raw
}

func (s *cookieData) createdAtBytes() []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(s.createdAt.UnixNano())) // nolint:gosec
	return raw[:]
}

func (s *cookieData) sign(secret []byte) []byte {
	mac := hmac.New(sha1.New, secret) // nolint:gosec
	mac.Write(s.fixedFields())        // nolint:errcheck
	mac.Write(s.createdAtBytes())     // nolint:errcheck
	return mac.Sum(nil)
}

// bytes serializes the cookie to the opaque blob carried inside the
// State Cookie parameter.
func (s *cookieData) bytes() []byte {
	out := make([]byte, 0, stateCookieLength)
	out = append(out, s.fixedFields()...)
	out = append(out, s.createdAtBytes()...)
	out = append(out, s.mac...)
	return out
}

// parseStateCookie decodes and authenticates a cookie echoed back by
// the peer in a COOKIE-ECHO chunk, rejecting it if the MAC does not
// verify or it is older than lifetime.
func parseStateCookie(raw []byte, secret []byte, now time.Time, lifetime time.Duration) (*cookieData, error) {
	if len(raw) < stateCookieLength {
		return nil, errors.Wrapf(ErrStateCookieTooShort, "got %d want at least %d", len(raw), stateCookieLength)
	}

	s := &cookieData{
		peerInitiateTag:                binary.BigEndian.Uint32(raw[0:]),
		localInitiateTag:               binary.BigEndian.Uint32(raw[4:]),
		peerInitialTSN:                 binary.BigEndian.Uint32(raw[8:]),
		localInitialTSN:                binary.BigEndian.Uint32(raw[12:]),
		advertisedReceiverWindowCredit: binary.BigEndian.Uint32(raw[16:]),
		numOutboundStreams:             binary.BigEndian.Uint16(raw[20:]),
		numInboundStreams:              binary.BigEndian.Uint16(raw[22:]),
		createdAt:                      time.Unix(0, int64(binary.BigEndian.Uint64(raw[24:32]))), // nolint:gosec
	}
	theirMAC := raw[32:stateCookieLength]

	ourMAC := s.sign(secret)
	if !hmac.Equal(ourMAC, theirMAC) {
		return nil, ErrStateCookieMACMismatch
	}
	s.mac = theirMAC

	if now.Sub(s.createdAt) > lifetime {
		return nil, errors.Wrapf(ErrStateCookieExpired, "age %s exceeds lifetime %s", now.Sub(s.createdAt), lifetime)
	}

	return s, nil
}

// paramStateCookie is the wire parameter wrapper (RFC 4960 §3.3.3,
// Type = 7) that carries a cookieData's serialized bytes. The cookie
// itself is opaque to the general parameter codec.
type paramStateCookie struct {
	paramHeader
	cookie []byte
}

func (s *paramStateCookie) marshal() ([]byte, error) {
	s.typ = stateCookie
	s.raw = s.cookie
	return s.paramHeader.marshal()
}

func (s *paramStateCookie) unmarshal(raw []byte) (param, error) {
	err := s.paramHeader.unmarshal(raw)
	if err != nil {
		return nil, err
	}
	s.cookie = s.raw
	return s, nil
}

// String makes paramStateCookie printable
func (s *paramStateCookie) String() string {
	return fmt.Sprintf("%s: %s", s.paramHeader, s.cookie)
}
