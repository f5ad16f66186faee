package sctp

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// This chunk is the RFC 8260 counterpart to FORWARD-TSN: same purpose
// (advance the data receiver's cumulative TSN point past abandoned
// chunks) but with per-stream entries keyed by 32-bit Message Identifier
// (MID) rather than 16-bit Stream Sequence Number, and an explicit
// per-entry unordered flag since I-DATA interleaves ordered and
// unordered messages on the same stream.
//
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |   Type = 194  |  Flags = 0x00 |        Length = Variable      |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                   New Cumulative TSN                          |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |       Stream Identifier       |     Flags     |   Reserved   |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                    Message Identifier (MID)                   |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

type chunkIForwardTSN struct {
	chunkHeader

	newCumulativeTSN uint32
	streams          []chunkIForwardTSNStream
}

const (
	iForwardTSNStreamLength = 8
	iForwardTSNUnorderedBit = 0x01
)

func (c *chunkIForwardTSN) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}

	if len(c.raw) < newCumulativeTSNLength {
		return errors.New("chunk to short")
	}

	c.newCumulativeTSN = binary.BigEndian.Uint32(c.raw[0:])

	offset := newCumulativeTSNLength
	remaining := len(c.raw) - offset
	for remaining > 0 {
		s := chunkIForwardTSNStream{}
		if err := s.unmarshal(c.raw[offset:]); err != nil {
			return fmt.Errorf("failed to unmarshal stream: %w", err)
		}
		c.streams = append(c.streams, s)
		offset += s.length()
		remaining -= s.length()
	}

	return nil
}

func (c *chunkIForwardTSN) marshal() ([]byte, error) {
	out := make([]byte, newCumulativeTSNLength)
	binary.BigEndian.PutUint32(out[0:], c.newCumulativeTSN)

	for _, s := range c.streams {
		b, err := s.marshal()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMarshalStreamFailed, err)
		}
		out = append(out, b...)
	}

	c.typ = ctIForwardTSN
	c.raw = out
	return c.chunkHeader.marshal()
}

func (c *chunkIForwardTSN) check() (abort bool, err error) {
	return true, nil
}

// String makes chunkIForwardTSN printable
func (c *chunkIForwardTSN) String() string {
	res := fmt.Sprintf("New Cumulative TSN: %d\n", c.newCumulativeTSN)
	for _, s := range c.streams {
		res += fmt.Sprintf(" - si=%d, unordered=%v, mid=%d\n", s.identifier, s.unordered, s.messageIdentifier)
	}
	return res
}

type chunkIForwardTSNStream struct {
	identifier        uint16
	unordered         bool
	messageIdentifier uint32
}

func (s *chunkIForwardTSNStream) length() int {
	return iForwardTSNStreamLength
}

func (s *chunkIForwardTSNStream) unmarshal(raw []byte) error {
	if len(raw) < iForwardTSNStreamLength {
		return errors.New("stream to short")
	}
	s.identifier = binary.BigEndian.Uint16(raw[0:])
	s.unordered = raw[2]&iForwardTSNUnorderedBit != 0
	s.messageIdentifier = binary.BigEndian.Uint32(raw[4:])

	return nil
}

func (s *chunkIForwardTSNStream) marshal() ([]byte, error) { // nolint:unparam
	out := make([]byte, iForwardTSNStreamLength)

	binary.BigEndian.PutUint16(out[0:], s.identifier)
	if s.unordered {
		out[2] = iForwardTSNUnorderedBit
	}
	binary.BigEndian.PutUint32(out[4:], s.messageIdentifier)

	return out, nil
}
