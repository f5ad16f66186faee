package sctp

import (
	"fmt"
	"math"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pkg/errors"
)

var globalMathRandomGenerator = randutil.NewMathRandomGenerator() // nolint:gochecknoglobals

// Wire-level constants, RFC 4960 §3/§6.10.
const (
	initialMTU          uint32 = 1228
	commonHeaderSize    uint32 = 12
	dataChunkHeaderSize uint32 = 16
)

// Association state, RFC 4960 §4. There is no separate "closed" vs
// "never opened" distinction: an Association always starts past
// CLOSED, either in COOKIE-WAIT (client) or ESTABLISHED (server, once
// the Endpoint has verified the echoed cookie).
const (
	closed uint32 = iota
	cookieWait
	cookieEchoed
	established
	shutdownAckSent
	shutdownPending
	shutdownReceived
	shutdownSent
)

func getAssociationStateString(a uint32) string {
	switch a {
	case closed:
		return "Closed"
	case cookieWait:
		return "CookieWait"
	case cookieEchoed:
		return "CookieEchoed"
	case established:
		return "Established"
	case shutdownPending:
		return "ShutdownPending"
	case shutdownSent:
		return "ShutdownSent"
	case shutdownReceived:
		return "ShutdownReceived"
	case shutdownAckSent:
		return "ShutdownAckSent"
	default:
		return fmt.Sprintf("Invalid association state %d", a)
	}
}

// Side names which peer sent the first INIT.
type Side int

const (
	Client Side = iota
	Server
)

func (s Side) String() string {
	if s == Server {
		return "server"
	}
	return "client"
}

// delayed-SACK transmission state, RFC 4960 §6.2.
const (
	ackStateIdle int = iota
	ackStateImmediate
	ackStateDelay
)

const delayedAckInterval = 200 * time.Millisecond

// Association is a single SCTP association's state machine, congestion
// controller, and stream table. It is sans-IO: it owns no socket, no
// goroutine, and reads no clock of its own. A caller drives it
// entirely through Handle, HandleTimeout, PollTransmit, PollTimeout,
// and Poll, and must serialize all calls into a given Association the
// same way a single-threaded event loop would (no internal locking).
type Association struct {
	side Side
	name string
	log  logging.LeveledLogger

	state uint32

	bytesReceived uint64
	bytesSent     uint64

	peerVerificationTag uint32
	myVerificationTag   uint32

	myNextTSN         uint32
	peerLastTSN       uint32
	minTSN2MeasureRTT uint32

	willSendForwardTSN     bool
	willRetransmitFast     bool
	willRetransmitReconfig bool

	myNextRSN         uint32
	reconfigs         map[uint32]*chunkReconfig
	reconfigRequests  map[uint32]*paramOutgoingResetRequest
	reconfigResponses map[uint32]*paramReconfigResponse

	sourcePort      uint16
	destinationPort uint16

	myMaxNumInboundStreams  uint16
	myMaxNumOutboundStreams uint16

	payloadQueue  *payloadQueue
	inflightQueue *payloadQueue
	pendingQueue  *pendingQueue
	controlQueue  *controlQueue

	mtu            uint32
	maxPayloadSize uint32

	cumulativeTSNAckPoint   uint32
	advancedPeerTSNAckPoint uint32
	useForwardTSN           bool

	maxReceiveBufferSize uint32
	maxMessageSize       uint32

	cwnd                 uint32
	rwnd                 uint32
	ssthresh             uint32
	partialBytesAcked    uint32
	inFastRecovery       bool
	fastRecoverExitPoint uint32

	rtoMgr *rtoManager
	timers timerSet

	maxInitRetransmits        uint32
	maxAssociationRetransmits uint32

	storedInit       *chunkInit
	storedCookieEcho *chunkCookieEcho

	streams map[uint16]*Stream

	events []Event
	outbox [][]byte

	ackState int

	stats *associationStats

	delayedAckTriggered   bool
	immediateAckTriggered bool

	closedErr error

	now time.Time
}

// newAssociation builds the fields every Association shares,
// independent of which side opened the handshake.
func newAssociation(cfg *EndpointConfig, side Side, sourcePort, destinationPort uint16) *Association {
	maxReceiveBufferSize := cfg.MaxReceiveBuffer
	if maxReceiveBufferSize == 0 {
		maxReceiveBufferSize = DefaultMaxReceiveBuffer
	}
	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	maxInitRetransmits := cfg.MaxInitRetransmits
	if maxInitRetransmits == 0 {
		maxInitRetransmits = DefaultMaxInitRetransmits
	}
	maxAssociationRetransmits := cfg.MaxAssociationRetransmits
	if maxAssociationRetransmits == 0 {
		maxAssociationRetransmits = DefaultMaxAssociationRetransmits
	}

	tsn := globalMathRandomGenerator.Uint32()

	a := &Association{
		side:                      side,
		maxReceiveBufferSize:      maxReceiveBufferSize,
		maxMessageSize:            maxMessageSize,
		maxInitRetransmits:        maxInitRetransmits,
		maxAssociationRetransmits: maxAssociationRetransmits,
		myMaxNumOutboundStreams:   math.MaxUint16,
		myMaxNumInboundStreams:    math.MaxUint16,
		payloadQueue:              newPayloadQueue(),
		inflightQueue:             newPayloadQueue(),
		pendingQueue:              newPendingQueue(),
		controlQueue:              newControlQueue(),
		mtu:                       initialMTU,
		maxPayloadSize:            initialMTU - (commonHeaderSize + dataChunkHeaderSize),
		myVerificationTag:         globalMathRandomGenerator.Uint32(),
		myNextTSN:                 tsn,
		myNextRSN:                 tsn,
		minTSN2MeasureRTT:         tsn,
		cumulativeTSNAckPoint:     tsn - 1,
		advancedPeerTSNAckPoint:   tsn - 1,
		reconfigs:                 map[uint32]*chunkReconfig{},
		reconfigRequests:          map[uint32]*paramOutgoingResetRequest{},
		reconfigResponses:         map[uint32]*paramReconfigResponse{},
		streams:                   map[uint16]*Stream{},
		sourcePort:                sourcePort,
		destinationPort:           destinationPort,
		rtoMgr:                    newRTOManager(cfg.RTOInitial, cfg.RTOMin, cfg.RTOMax),
		stats:                     &associationStats{},
		log:                       cfg.LoggerFactory.NewLogger("sctp"),
	}
	a.name = fmt.Sprintf("%s-%p", side, a)
	if cfg.MaxPayloadSize > 0 {
		a.maxPayloadSize = min32(a.maxPayloadSize, cfg.MaxPayloadSize)
	}
	// RFC 4960 §7.2.1: the initial cwnd is min(4*MTU, max(2*MTU, 4380 bytes)).
	a.cwnd = min32(4*a.mtu, max32(2*a.mtu, 4380))
	a.ssthresh = math.MaxUint32
	return a
}

// newClientAssociation starts the active side of the handshake: the
// association enters COOKIE-WAIT and an INIT is queued for the first
// PollTransmit.
func newClientAssociation(cfg *EndpointConfig, now time.Time, sourcePort, destinationPort uint16) *Association {
	a := newAssociation(cfg, Client, sourcePort, destinationPort)
	a.state = cookieWait

	init := &chunkInit{}
	init.initiateTag = a.myVerificationTag
	init.numOutboundStreams = a.myMaxNumOutboundStreams
	init.numInboundStreams = a.myMaxNumInboundStreams
	init.initialTSN = a.myNextTSN
	init.advertisedReceiverWindowCredit = a.maxReceiveBufferSize
	setSupportedExtensions(&init.chunkInitCommon)
	a.storedInit = init

	if err := a.sendInit(); err != nil {
		a.log.Errorf("[%s] failed to send INIT: %s", a.name, err)
	}
	a.timers.start(timerT1Init, now.Add(a.rtoMgr.getRTO()))
	return a
}

// newServerAssociation builds an association already ESTABLISHED from
// a state cookie an Endpoint has just authenticated; the COOKIE-ACK is
// queued immediately. There is no COOKIE-WAIT/COOKIE-ECHOED phase on
// this side: RFC 4960's statelessness means nothing about this
// association existed before the cookie verified.
func newServerAssociation(cfg *EndpointConfig, sourcePort, destinationPort uint16, sc *cookieData) *Association {
	a := newAssociation(cfg, Server, sourcePort, destinationPort)

	a.myVerificationTag = sc.localInitiateTag
	a.peerVerificationTag = sc.peerInitiateTag
	a.myNextTSN = sc.localInitialTSN
	a.myNextRSN = sc.localInitialTSN
	a.minTSN2MeasureRTT = sc.localInitialTSN
	a.cumulativeTSNAckPoint = sc.localInitialTSN - 1
	a.advancedPeerTSNAckPoint = sc.localInitialTSN - 1
	a.peerLastTSN = sc.peerInitialTSN - 1
	a.rwnd = sc.advertisedReceiverWindowCredit
	a.ssthresh = a.rwnd
	a.myMaxNumInboundStreams = min16(sc.numInboundStreams, a.myMaxNumInboundStreams)
	a.myMaxNumOutboundStreams = min16(sc.numOutboundStreams, a.myMaxNumOutboundStreams)
	a.useForwardTSN = true
	a.state = established

	a.controlQueue.push(a.createPacket([]chunk{&chunkCookieAck{}}))
	a.pushEvent(Event{Kind: EventConnected})
	return a
}

// Side reports which peer opened this association's handshake.
func (a *Association) Side() Side {
	return a.side
}

func (a *Association) sendInit() error {
	if a.storedInit == nil {
		return errors.New("no stored INIT to send")
	}
	a.log.Debugf("[%s] sending INIT", a.name)
	a.controlQueue.push(a.createPacket([]chunk{a.storedInit}))
	return nil
}

func (a *Association) sendCookieEcho() error {
	if a.storedCookieEcho == nil {
		return errors.New("no stored COOKIE-ECHO to send")
	}
	a.log.Debugf("[%s] sending COOKIE-ECHO", a.name)
	a.controlQueue.push(a.createPacket([]chunk{a.storedCookieEcho}))
	return nil
}

func (a *Association) pushEvent(e Event) {
	a.events = append(a.events, e)
}

// Poll drains one queued Event in FIFO order, returning false once the
// queue is empty. Call it in a loop after Handle/HandleTimeout until
// it returns false.
func (a *Association) Poll() (Event, bool) {
	if len(a.events) == 0 {
		return Event{}, false
	}
	e := a.events[0]
	a.events = a.events[1:]
	if len(a.events) == 0 {
		a.events = nil
	}
	return e, true
}

func (a *Association) closeWithError(err error) {
	if a.state == closed {
		return
	}
	if err != nil {
		a.log.Warnf("[%s] closing with error: %s", a.name, err)
		// Nothing to abort if we never learned the peer's verification
		// tag (e.g. the handshake's very first INIT never got a reply);
		// an ABORT here would carry tag 0 and reach no association.
		if !errors.Is(err, ErrPeerAborted) && a.peerVerificationTag != 0 {
			a.controlQueue.push(a.createPacket([]chunk{&chunkAbort{
				errorCauses: []errorCause{abortCauseFor(err)},
			}}))
		}
	} else {
		a.log.Debugf("[%s] shutdown complete", a.name)
	}
	a.state = closed
	a.closedErr = err
	kind := EventAssociationLost
	if errors.Is(err, ErrHandshakeFailed) {
		kind = EventHandshakeFailed
	}
	a.pushEvent(Event{Kind: kind, Cause: err})
}

// abortCauseFor maps an association-fatal error to the ABORT error
// cause reported to the peer, per RFC 4960 §3.3.10.
func abortCauseFor(err error) errorCause {
	switch {
	case errors.Is(err, ErrProtocolViolation):
		return &errorCauseProtocolViolation{additionalInformation: []byte(err.Error())}
	case errors.Is(err, ErrInvalidChunk):
		return &errorCauseUnrecognizedChunkType{}
	default:
		return &errorCauseProtocolViolation{additionalInformation: []byte(err.Error())}
	}
}

// Closed reports whether the association has reached its terminal
// state, and the error that caused it if it was not a clean local
// Close.
func (a *Association) Closed() (bool, error) {
	return a.state == closed, a.closedErr
}

func (a *Association) onEstablished() {
	a.pushEvent(Event{Kind: EventConnected})
	for id := range a.streams {
		a.pushEvent(Event{Kind: EventStream, StreamKind: StreamWritable, StreamID: id})
	}
}

// Close begins a graceful shutdown (RFC 4960 §9): once every
// outstanding DATA chunk has been acknowledged, a SHUTDOWN is sent and
// the association moves through SHUTDOWN-SENT to CLOSED once the peer
// answers with SHUTDOWN-ACK. If nothing is outstanding the SHUTDOWN
// goes out on the very next PollTransmit.
func (a *Association) Close() {
	switch a.state {
	case closed, shutdownSent, shutdownAckSent, shutdownPending:
		return
	}
	a.log.Debugf("[%s] closing association", a.name)
	a.state = shutdownPending
}

// Stream looks up an existing stream by identifier.
func (a *Association) Stream(streamIdentifier uint16) (*Stream, bool) {
	s, ok := a.streams[streamIdentifier]
	return s, ok
}

// StreamIDs returns the identifiers of every currently open stream.
func (a *Association) StreamIDs() []uint16 {
	ids := make([]uint16, 0, len(a.streams))
	for id := range a.streams {
		ids = append(ids, id)
	}
	return ids
}

// OpenStream creates a new local stream. Until the association reaches
// ESTABLISHED, WriteSCTP on it returns ErrWouldBlock and queues nothing.
func (a *Association) OpenStream(streamIdentifier uint16, defaultPayloadType PayloadProtocolIdentifier) (*Stream, error) {
	if _, ok := a.streams[streamIdentifier]; ok {
		return nil, errors.Errorf("stream identifier %d already in use", streamIdentifier)
	}
	s := a.createStream(streamIdentifier)
	s.SetDefaultPayloadType(defaultPayloadType)
	return s, nil
}

func (a *Association) createStream(streamIdentifier uint16) *Stream {
	s := &Stream{
		association:      a,
		streamIdentifier: streamIdentifier,
		reassemblyQueue:  newReassemblyQueue(streamIdentifier),
		log:              a.log,
		name:             fmt.Sprintf("%d:%s", streamIdentifier, a.name),
	}
	a.streams[streamIdentifier] = s
	return s
}

func (a *Association) getOrCreateStream(streamIdentifier uint16) (*Stream, bool) {
	if s, ok := a.streams[streamIdentifier]; ok {
		return s, false
	}
	return a.createStream(streamIdentifier), true
}

func (a *Association) unregisterStream(s *Stream, err error) {
	delete(a.streams, s.streamIdentifier)
	s.readErr = err
}

// BytesSent returns the total number of outbound bytes handed to
// PollTransmit.
func (a *Association) BytesSent() uint64 {
	return a.bytesSent
}

// BytesReceived returns the total number of inbound bytes handed to
// Handle.
func (a *Association) BytesReceived() uint64 {
	return a.bytesReceived
}

// MaxMessageSize returns the largest message WriteSCTP accepts.
func (a *Association) MaxMessageSize() uint32 {
	return a.maxMessageSize
}

// SetMaxMessageSize adjusts the largest message WriteSCTP accepts.
func (a *Association) SetMaxMessageSize(maxMsgSize uint32) {
	a.maxMessageSize = maxMsgSize
}

// AssociationStats is a read-only snapshot of an Association's protocol
// event counters.
type AssociationStats struct {
	NumDATAs       uint64
	NumSACKs       uint64
	NumT3Timeouts  uint64
	NumAckTimeouts uint64
	NumFastRetrans uint64
}

// Stats returns a snapshot of this association's protocol counters.
func (a *Association) Stats() AssociationStats {
	return AssociationStats{
		NumDATAs:       a.stats.getNumDATAs(),
		NumSACKs:       a.stats.getNumSACKs(),
		NumT3Timeouts:  a.stats.getNumT3Timeouts(),
		NumAckTimeouts: a.stats.getNumAckTimeouts(),
		NumFastRetrans: a.stats.getNumFastRetrans(),
	}
}

// Handle processes one inbound datagram addressed to this
// association. Malformed or protocol-illegal input is silently
// dropped (logged at Warn) rather than surfaced as a Go error: fatal
// outcomes reach the caller only through Poll's EventAssociationLost.
func (a *Association) Handle(now time.Time, raw []byte) {
	a.now = now
	a.bytesReceived += uint64(len(raw))

	p := &packet{}
	if err := p.unmarshal(raw); err != nil {
		a.log.Warnf("[%s] failed to parse SCTP packet: %s", a.name, err)
		return
	}
	if err := a.checkPacket(p); err != nil {
		a.log.Warnf("[%s] failed validating packet: %s", a.name, err)
		return
	}

	a.handleChunkStart()
	for _, c := range p.chunks {
		if err := a.handleChunk(now, p, c); err != nil {
			a.closeWithError(err)
			return
		}
	}
	a.handleChunkEnd(now)

	a.pushEvent(Event{Kind: EventDatagramReceived})
}

func (a *Association) checkPacket(p *packet) error {
	if p.destinationPort == 0 {
		return errors.Wrap(ErrInvalidPacket, "must not have a destination port of 0")
	}
	if p.sourcePort == 0 {
		return errors.Wrap(ErrInvalidPacket, "must not have a source port of 0")
	}

	if len(p.chunks) < 1 {
		return errors.Wrap(ErrInvalidPacket, "must have at least one chunk")
	}

	if _, ok := p.chunks[0].(*chunkInit); ok {
		if len(p.chunks) > 1 {
			return errors.Wrap(ErrInvalidPacket, "INIT chunk must not be bundled with other chunks")
		}
		if p.verificationTag != 0 {
			return errors.Wrap(ErrInvalidPacket, "INIT chunk expects a verification tag of 0 when out-of-the-blue")
		}
	}

	return nil
}

func (a *Association) handleChunkStart() {
	a.delayedAckTriggered = false
	a.immediateAckTriggered = false
}

func (a *Association) handleChunkEnd(now time.Time) {
	if a.immediateAckTriggered {
		a.ackState = ackStateImmediate
		a.timers.stop(timerDelayedAck)
	} else if a.delayedAckTriggered {
		if a.ackState == ackStateIdle {
			a.timers.start(timerDelayedAck, now.Add(delayedAckInterval))
		}
		a.ackState = ackStateDelay
	}
}

func (a *Association) handleChunk(now time.Time, p *packet, c chunk) error {
	if _, err := c.check(); err != nil {
		a.log.Errorf("[%s] failed validating chunk: %s", a.name, err)
		return nil
	}

	var packets []*packet
	var err error

	switch c := c.(type) {
	case *chunkInit:
		a.log.Debugf("[%s] received INIT while association already exists; simultaneous-open is not supported", a.name)
	case *chunkInitAck:
		err = a.handleInitAck(now, p, c)
	case *chunkAbort:
		var errStr string
		for _, e := range c.errorCauses {
			errStr += fmt.Sprintf("(%s)", e)
		}
		return errors.Wrapf(ErrPeerAborted, "%s", errStr)
	case *chunkError:
		var errStr string
		for _, e := range c.errorCauses {
			errStr += fmt.Sprintf("(%s)", e)
		}
		a.log.Debugf("[%s] received ERROR chunk: %s", a.name, errStr)
	case *chunkHeartbeat:
		packets = a.handleHeartbeat(c)
	case *chunkHeartbeatAck:
		// No per-path RTT probing is implemented; a HEARTBEAT-ACK has
		// nothing further to correlate to.
	case *chunkCookieEcho:
		packets = a.handleCookieEcho(c)
	case *chunkCookieAck:
		a.handleCookieAck()
	case *chunkPayloadData:
		if a.state == closed || a.state == cookieWait || a.state == cookieEchoed {
			err = errors.Wrapf(ErrUnexpectedChunk, "DATA received in state=%s", getAssociationStateString(a.state))
		} else {
			packets, err = a.handleData(c)
		}
	case *chunkSelectiveAck:
		err = a.handleSack(now, c)
	case *chunkReconfig:
		packets, err = a.handleReconfig(c)
	case *chunkForwardTSN:
		packets = a.handleForwardTSN(c)
	case *chunkIForwardTSN:
		packets = a.handleIForwardTSN(c)
	case *chunkShutdown:
		packets = a.handleShutdown(c)
	case *chunkShutdownAck:
		packets = a.handleShutdownAck()
	case *chunkShutdownComplete:
		a.handleShutdownComplete()
	default:
		a.log.Warnf("[%s] unhandled chunk type %T", a.name, c)
	}

	if err != nil {
		a.log.Errorf("[%s] failed to handle chunk: %v", a.name, err)
		return err
	}
	if len(packets) > 0 {
		a.controlQueue.pushAll(packets)
	}
	return nil
}

// setSupportedExtensions advertises the optional chunk types this
// engine understands on the wire, RFC 6525 §6.1 / RFC 3758 §4.
func setSupportedExtensions(init *chunkInitCommon) {
	init.params = append(init.params, &paramSupportedExtensions{
		ChunkTypes: []chunkType{ctReconfig, ctForwardTSN},
	})
}

func (a *Association) handleInitAck(now time.Time, _ *packet, i *chunkInitAck) error {
	if a.state != cookieWait {
		// RFC 4960 §5.2.3: not expected in any other state, discard.
		return nil
	}

	a.peerVerificationTag = i.initiateTag
	a.myMaxNumInboundStreams = min16(i.numInboundStreams, a.myMaxNumInboundStreams)
	a.myMaxNumOutboundStreams = min16(i.numOutboundStreams, a.myMaxNumOutboundStreams)
	a.peerLastTSN = i.initialTSN - 1
	a.rwnd = i.advertisedReceiverWindowCredit
	a.ssthresh = a.rwnd
	a.log.Tracef("[%s] initial rwnd=%d", a.name, a.rwnd)

	a.timers.stop(timerT1Init)
	a.storedInit = nil

	var cookieParam *paramStateCookie
	for _, p := range i.params {
		switch v := p.(type) {
		case *paramStateCookie:
			cookieParam = v
		case *paramSupportedExtensions:
			for _, ct := range v.ChunkTypes {
				if ct == ctForwardTSN {
					a.useForwardTSN = true
				}
			}
		}
	}
	if cookieParam == nil {
		return errors.Wrap(ErrProtocolViolation, "no state cookie in INIT ACK")
	}

	a.storedCookieEcho = &chunkCookieEcho{cookie: cookieParam.cookie}
	if err := a.sendCookieEcho(); err != nil {
		a.log.Errorf("[%s] failed to send COOKIE-ECHO: %s", a.name, err)
	}
	a.timers.start(timerT1Cookie, now.Add(a.rtoMgr.getRTO()))
	a.state = cookieEchoed
	return nil
}

func (a *Association) handleHeartbeat(c *chunkHeartbeat) []*packet {
	a.log.Tracef("[%s] received HEARTBEAT", a.name)
	hbi, ok := c.params[0].(*paramHeartbeatInfo)
	if !ok {
		a.log.Warnf("[%s] failed to handle HEARTBEAT, no heartbeat info param", a.name)
		return nil
	}
	return pack(a.createPacket([]chunk{&chunkHeartbeatAck{params: []param{
		&paramHeartbeatInfo{heartbeatInformation: hbi.heartbeatInformation},
	}}}))
}

// handleCookieEcho replies to a (re)transmitted COOKIE-ECHO. The
// cookie itself was already authenticated statelessly before this
// Association existed (its fields seeded newServerAssociation), so
// reaching this handler at all only happens when the peer resends
// because it never saw our COOKIE-ACK.
func (a *Association) handleCookieEcho(_ *chunkCookieEcho) []*packet {
	switch a.state {
	case established:
	case cookieEchoed, cookieWait:
		a.timers.stop(timerT1Init)
		a.timers.stop(timerT1Cookie)
		a.state = established
		a.onEstablished()
	default:
		return nil
	}
	return pack(a.createPacket([]chunk{&chunkCookieAck{}}))
}

func (a *Association) handleCookieAck() {
	if a.state != cookieEchoed {
		return
	}
	a.timers.stop(timerT1Cookie)
	a.storedCookieEcho = nil
	a.state = established
	a.onEstablished()
}

func (a *Association) getMyReceiverWindowCredit() uint32 {
	var bytesQueued uint32
	for _, s := range a.streams {
		bytesQueued += uint32(s.getNumBytesInReassemblyQueue())
	}
	if bytesQueued >= a.maxReceiveBufferSize {
		return 0
	}
	return a.maxReceiveBufferSize - bytesQueued
}

func (a *Association) handleData(d *chunkPayloadData) ([]*packet, error) {
	a.log.Tracef("[%s] DATA: tsn=%d immediateSack=%v len=%d",
		a.name, d.tsn, d.immediateSack, len(d.userData))
	a.stats.incDATAs()

	if a.payloadQueue.canPush(d, a.peerLastTSN) {
		s, isNew := a.getOrCreateStream(d.streamIdentifier)
		if isNew {
			a.pushEvent(Event{Kind: EventStream, StreamKind: StreamOpened, StreamID: d.streamIdentifier})
		}

		if a.getMyReceiverWindowCredit() > 0 {
			a.payloadQueue.push(d, a.peerLastTSN)
			if s.handleData(d) {
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: d.streamIdentifier})
			}
		} else if lastTSN, ok := a.payloadQueue.getLastTSNReceived(); ok && sna32LT(d.tsn, lastTSN) {
			a.log.Debugf("[%s] receive buffer full, but accepting out-of-order TSN %d anyway", a.name, d.tsn)
			a.payloadQueue.push(d, a.peerLastTSN)
			if s.handleData(d) {
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: d.streamIdentifier})
			}
		} else {
			a.log.Debugf("[%s] receive buffer full, dropping TSN %d", a.name, d.tsn)
		}

		if uint32(s.getNumBytesInReassemblyQueue()) > a.maxMessageSize {
			return nil, errors.Wrapf(ErrProtocolViolation, "reassembled message on stream %d exceeds max_message_size=%d", d.streamIdentifier, a.maxMessageSize)
		}
	}

	return a.handlePeerLastTSNAndAcknowledgement(d.immediateSack), nil
}

func (a *Association) handlePeerLastTSNAndAcknowledgement(sackImmediately bool) []*packet {
	var reply []*packet

	for {
		_, popOk := a.payloadQueue.pop(a.peerLastTSN + 1)
		if !popOk {
			break
		}
		a.peerLastTSN++

		for _, rstReq := range a.reconfigRequests {
			if resp := a.resetStreamsIfAny(rstReq); resp != nil {
				reply = append(reply, resp)
			}
		}
	}

	hasPacketLoss := a.payloadQueue.size() > 0
	if hasPacketLoss {
		a.log.Tracef("[%s] packet loss detected (peerLastTSN=%d size=%d)", a.name, a.peerLastTSN, a.payloadQueue.size())
	}

	switch {
	case a.ackState == ackStateImmediate:
	case sackImmediately, hasPacketLoss:
		a.immediateAckTriggered = true
	default:
		a.delayedAckTriggered = true
	}

	return reply
}

func (a *Association) handleForwardTSN(c *chunkForwardTSN) []*packet {
	a.log.Tracef("[%s] FwdTSN: %s", a.name, c.String())

	if !a.useForwardTSN {
		a.log.Warnf("[%s] received FwdTSN but not enabled", a.name)
		return []*packet{a.createPacket([]chunk{&chunkError{errorCauses: []errorCause{&errorCauseUnrecognizedChunkType{}}}})}
	}

	if sna32LTE(c.newCumulativeTSN, a.peerLastTSN) {
		a.log.Tracef("[%s] old FwdTSN, ignoring", a.name)
		return nil
	}

	for sna32LT(a.peerLastTSN, c.newCumulativeTSN) {
		a.payloadQueue.pop(a.peerLastTSN + 1)
		a.peerLastTSN++
	}

	for _, forwarded := range c.streams {
		if s, ok := a.streams[forwarded.identifier]; ok {
			if s.handleForwardTSNForOrdered(uint32(forwarded.sequence)) {
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: forwarded.identifier})
			}
		}
	}
	for _, s := range a.streams {
		if s.handleForwardTSNForUnordered(c.newCumulativeTSN) {
			a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: s.streamIdentifier})
		}
	}

	return a.handlePeerLastTSNAndAcknowledgement(false)
}

// handleIForwardTSN is RFC 8260's counterpart to handleForwardTSN: the
// same cumulative-TSN advancement, but per-stream entries are keyed by
// Message Identifier rather than Stream Sequence Number, and carry
// their own ordered/unordered flag. I-DATA/I-FORWARD-TSN are decoded
// here on the receive side only; this engine never constructs or
// sends either.
func (a *Association) handleIForwardTSN(c *chunkIForwardTSN) []*packet {
	a.log.Tracef("[%s] I-FwdTSN: %s", a.name, c.String())

	if !a.useForwardTSN {
		a.log.Warnf("[%s] received I-FwdTSN but not enabled", a.name)
		return []*packet{a.createPacket([]chunk{&chunkError{errorCauses: []errorCause{&errorCauseUnrecognizedChunkType{}}}})}
	}

	if sna32LTE(c.newCumulativeTSN, a.peerLastTSN) {
		a.log.Tracef("[%s] old I-FwdTSN, ignoring", a.name)
		return nil
	}

	for sna32LT(a.peerLastTSN, c.newCumulativeTSN) {
		a.payloadQueue.pop(a.peerLastTSN + 1)
		a.peerLastTSN++
	}

	for _, forwarded := range c.streams {
		if forwarded.unordered {
			continue // unordered streams are advanced by the pass below
		}
		if s, ok := a.streams[forwarded.identifier]; ok {
			if s.handleForwardTSNForOrdered(forwarded.messageIdentifier) {
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: forwarded.identifier})
			}
		}
	}
	for _, s := range a.streams {
		if s.handleForwardTSNForUnordered(c.newCumulativeTSN) {
			a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReadable, StreamID: s.streamIdentifier})
		}
	}

	return a.handlePeerLastTSNAndAcknowledgement(false)
}

func (a *Association) handleShutdown(c *chunkShutdown) []*packet {
	switch a.state {
	case established:
		if a.inflightQueue.size() > 0 {
			a.state = shutdownReceived
		} else {
			a.state = shutdownAckSent
			a.cumulativeTSNAckPoint = c.cumulativeTSNAck
			return pack(a.createPacket([]chunk{&chunkShutdownAck{}}))
		}
	case shutdownSent:
		a.state = shutdownAckSent
		a.cumulativeTSNAckPoint = c.cumulativeTSNAck
		return pack(a.createPacket([]chunk{&chunkShutdownAck{}}))
	}
	a.cumulativeTSNAckPoint = c.cumulativeTSNAck
	return nil
}

func (a *Association) handleShutdownAck() []*packet {
	switch a.state {
	case shutdownSent, shutdownAckSent:
		a.timers.stop(timerT2Shutdown)
		a.closeWithError(nil)
		return pack(a.createPacket([]chunk{&chunkShutdownComplete{}}))
	}
	return nil
}

func (a *Association) handleShutdownComplete() {
	if a.state == shutdownAckSent {
		a.timers.stop(timerT2Shutdown)
		a.closeWithError(nil)
	}
}

func (a *Association) generateNextRSN() uint32 {
	rsn := a.myNextRSN
	a.myNextRSN++
	return rsn
}

// ResetStream requests the peer reset its outbound delivery of
// streamIdentifier via RE-CONFIG (RFC 6525 §5.1).
func (a *Association) ResetStream(streamIdentifier uint16) error {
	if a.state != established {
		return errors.Errorf("RE-CONFIG may only be sent in ESTABLISHED state (state=%s)", getAssociationStateString(a.state))
	}

	rsn := a.generateNextRSN()
	rc := &chunkReconfig{
		paramA: &paramOutgoingResetRequest{
			reconfigRequestSequenceNumber: rsn,
			senderLastTSN:                 a.myNextTSN - 1,
			streamIdentifiers:              []uint16{streamIdentifier},
		},
	}
	a.reconfigs[rsn] = rc
	a.controlQueue.push(a.createPacket([]chunk{rc}))
	a.willRetransmitReconfig = true
	return nil
}

func (a *Association) handleReconfig(c *chunkReconfig) ([]*packet, error) {
	var out []*packet

	pkt, err := a.handleReconfigParam(c.paramA)
	if err != nil {
		return nil, err
	}
	if pkt != nil {
		out = append(out, pkt)
	}
	if c.paramB != nil {
		pkt, err = a.handleReconfigParam(c.paramB)
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			out = append(out, pkt)
		}
	}
	return out, nil
}

// handleReconfigParam caches the response sent for a given
// Re-configuration Request Sequence Number, so a retransmitted
// request (the peer never saw our first response) replays the cached
// result rather than resetting already-reset streams a second time:
// RFC 6525 §5.2.2 requires idempotent replies, which the request/
// response sequence-number pairing alone doesn't give you for free.
func (a *Association) handleReconfigParam(raw param) (*packet, error) {
	switch p := raw.(type) {
	case *paramOutgoingResetRequest:
		if cached, ok := a.reconfigResponses[p.reconfigRequestSequenceNumber]; ok {
			return a.createPacket([]chunk{&chunkReconfig{paramA: cached}}), nil
		}

		a.reconfigRequests[p.reconfigRequestSequenceNumber] = p
		respPkt := a.resetStreamsIfAny(p)

		if rc, ok := respPkt.chunks[0].(*chunkReconfig); ok {
			if rr, ok := rc.paramA.(*paramReconfigResponse); ok {
				a.reconfigResponses[p.reconfigRequestSequenceNumber] = rr
				if rr.result == reconfigResultSuccessPerformed {
					for rsn := range a.reconfigResponses {
						if sna32LT(rsn, p.reconfigRequestSequenceNumber) {
							delete(a.reconfigResponses, rsn)
						}
					}
				}
			}
		}
		return respPkt, nil

	case *paramReconfigResponse:
		if rc, ok := a.reconfigs[p.reconfigResponseSequenceNumber]; ok {
			if req, ok := rc.paramA.(*paramOutgoingResetRequest); ok {
				for _, id := range req.streamIdentifiers {
					if s, ok := a.streams[id]; ok {
						a.unregisterStream(s, nil)
						a.pushEvent(Event{Kind: EventStream, StreamKind: StreamFinished, StreamID: id})
					}
				}
			}
			delete(a.reconfigs, p.reconfigResponseSequenceNumber)
		}
		if len(a.reconfigs) == 0 {
			a.timers.stop(timerReconfig)
			a.willRetransmitReconfig = false
		}
		return nil, nil

	default:
		return nil, errors.Errorf("unexpected parameter type %T in RE-CONFIG", p)
	}
}

func (a *Association) resetStreamsIfAny(p *paramOutgoingResetRequest) *packet {
	result := reconfigResultSuccessPerformed
	if sna32LTE(p.senderLastTSN, a.peerLastTSN) {
		for _, id := range p.streamIdentifiers {
			if s, ok := a.streams[id]; ok {
				s.onInboundStreamReset()
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamReset, StreamID: id})
			}
		}
		delete(a.reconfigRequests, p.reconfigRequestSequenceNumber)
	} else {
		result = reconfigResultInProgress
	}

	return a.createPacket([]chunk{&chunkReconfig{
		paramA: &paramReconfigResponse{
			reconfigResponseSequenceNumber: p.reconfigRequestSequenceNumber,
			result:                         result,
		},
	}})
}

func (a *Association) createPacket(cs []chunk) *packet {
	return &packet{
		verificationTag: a.peerVerificationTag,
		sourcePort:      a.sourcePort,
		destinationPort: a.destinationPort,
		chunks:          cs,
	}
}

func pack(p *packet) []*packet {
	return []*packet{p}
}

func (a *Association) generateNextTSN() uint32 {
	tsn := a.myNextTSN
	a.myNextTSN++
	return tsn
}

// sendPayloadData enqueues chunks for a future PollTransmit, reporting
// false (without enqueueing anything) while the handshake has not yet
// completed. The pending queue itself has no capacity ceiling: once
// ESTABLISHED, every Write succeeds and is paced out by the congestion
// controller rather than rejected.
func (a *Association) sendPayloadData(chunks []*chunkPayloadData) bool {
	if a.state != established {
		return false
	}
	for _, c := range chunks {
		a.pendingQueue.push(c)
	}
	return true
}

func (a *Association) movePendingDataChunkToInflightQueue(c *chunkPayloadData) {
	c.tsn = a.generateNextTSN()
	c.since = a.now
	c.nSent = 1
	a.checkPartialReliabilityStatus(c)
	a.inflightQueue.pushNoCheck(c)
}

func (a *Association) checkPartialReliabilityStatus(c *chunkPayloadData) {
	if !a.useForwardTSN {
		return
	}

	s, ok := a.streams[c.streamIdentifier]
	if !ok {
		return
	}

	switch s.reliabilityType {
	case ReliabilityTypeRexmit:
		if c.nSent >= s.reliabilityValue {
			c.setAbandoned(true)
		}
	case ReliabilityTypeTimed:
		if uint32(a.now.Sub(c.since).Milliseconds()) >= s.reliabilityValue {
			c.setAbandoned(true)
		}
	}
}

func (a *Association) popPendingDataChunksToSend() ([]*chunkPayloadData, []uint16) {
	var chunks []*chunkPayloadData
	var sisToReset []uint16

	if a.pendingQueue.size() == 0 {
		return chunks, sisToReset
	}

	for {
		c := a.pendingQueue.peek()
		if c == nil {
			break
		}

		if len(c.userData) == 0 {
			sisToReset = append(sisToReset, c.streamIdentifier)
			if err := a.pendingQueue.pop(c); err != nil {
				a.log.Errorf("[%s] failed to pop from pending queue: %s", a.name, err)
			}
			continue
		}

		dataLen := uint32(len(c.userData))
		if a.inflightQueue.getNumBytes()+int(dataLen) > int(a.cwnd) {
			break
		}
		if dataLen > a.rwnd {
			break
		}
		a.rwnd -= dataLen

		a.movePendingDataChunkToInflightQueue(c)
		chunks = append(chunks, c)

		if err := a.pendingQueue.pop(c); err != nil {
			a.log.Errorf("[%s] failed to pop from pending queue: %s", a.name, err)
			break
		}
	}

	return chunks, sisToReset
}

func (a *Association) bundleDataChunksIntoPackets(chunks []*chunkPayloadData) []*packet {
	var packets []*packet
	var chunksToSend []chunk
	bytesInPacket := int(commonHeaderSize)

	for _, c := range chunks {
		if bytesInPacket+len(c.userData) > int(a.mtu) {
			packets = append(packets, a.createPacket(chunksToSend))
			chunksToSend = nil
			bytesInPacket = int(commonHeaderSize)
		}
		chunksToSend = append(chunksToSend, c)
		bytesInPacket += int(dataChunkHeaderSize) + len(c.userData)
	}

	if len(chunksToSend) > 0 {
		packets = append(packets, a.createPacket(chunksToSend))
	}
	return packets
}

func (a *Association) gatherOutboundDataAndReconfigPackets(rawPackets [][]byte) [][]byte {
	chunks, sisToReset := a.popPendingDataChunksToSend()
	if len(chunks) > 0 {
		for _, p := range a.bundleDataChunksIntoPackets(chunks) {
			if raw, err := p.marshal(); err != nil {
				a.log.Warnf("[%s] failed to marshal data packet: %s", a.name, err)
			} else {
				rawPackets = append(rawPackets, raw)
			}
		}
		if !a.timers.isRunning(timerT3RTX) {
			a.timers.start(timerT3RTX, a.now.Add(a.rtoMgr.getRTO()))
		}
	}

	if len(sisToReset) > 0 || a.willRetransmitReconfig {
		a.willRetransmitReconfig = false
		rsn := a.generateNextRSN()
		rc := &chunkReconfig{
			paramA: &paramOutgoingResetRequest{
				reconfigRequestSequenceNumber: rsn,
				senderLastTSN:                 a.myNextTSN - 1,
				streamIdentifiers:              sisToReset,
			},
		}
		a.reconfigs[rsn] = rc
		if raw, err := a.createPacket([]chunk{rc}).marshal(); err == nil {
			rawPackets = append(rawPackets, raw)
		}
		a.timers.start(timerReconfig, a.now.Add(a.rtoMgr.getRTO()))
	}

	return rawPackets
}

func (a *Association) getDataPacketsToRetransmit() []*packet {
	awnd := min32(a.cwnd, a.rwnd)
	var chunks []*chunkPayloadData
	var bytesToSend int

	for i := 0; ; i++ {
		c, ok := a.inflightQueue.get(a.cumulativeTSNAckPoint + uint32(i) + 1)
		if !ok {
			break
		}
		if !c.retransmit {
			continue
		}
		if i == 0 && int(a.rwnd) < len(c.userData) {
			break
		}
		if bytesToSend+len(c.userData) > int(awnd) {
			break
		}
		bytesToSend += len(c.userData)
		c.nSent++
		a.checkPartialReliabilityStatus(c)
		c.retransmit = false
		chunks = append(chunks, c)
	}

	return a.bundleDataChunksIntoPackets(chunks)
}

func (a *Association) gatherOutboundFastRetransmissionPackets(rawPackets [][]byte) [][]byte {
	if !a.willRetransmitFast {
		return rawPackets
	}
	a.willRetransmitFast = false

	for _, p := range a.getDataPacketsToRetransmit() {
		if raw, err := p.marshal(); err == nil {
			rawPackets = append(rawPackets, raw)
		}
	}
	return rawPackets
}

func (a *Association) createSelectiveAckChunk() *chunkSelectiveAck {
	sack := &chunkSelectiveAck{}
	sack.cumulativeTSNAck = a.peerLastTSN
	sack.advertisedReceiverWindowCredit = a.getMyReceiverWindowCredit()
	sack.duplicateTSN = a.payloadQueue.popDuplicates()
	sack.gapAckBlocks = a.payloadQueue.getGapAckBlocks(a.peerLastTSN)
	return sack
}

func (a *Association) gatherOutboundSackPackets(rawPackets [][]byte) [][]byte {
	switch a.ackState {
	case ackStateImmediate, ackStateDelay:
		a.ackState = ackStateIdle
		a.timers.stop(timerDelayedAck)
		a.stats.incSACKs()
		if raw, err := a.createPacket([]chunk{a.createSelectiveAckChunk()}).marshal(); err == nil {
			rawPackets = append(rawPackets, raw)
		}
	}
	return rawPackets
}

func (a *Association) createForwardTSN() *chunkForwardTSN {
	streamMap := map[uint16]uint16{}

	for i := a.cumulativeTSNAckPoint + 1; sna32LTE(i, a.advancedPeerTSNAckPoint); i++ {
		c, ok := a.inflightQueue.get(i)
		if !ok || c.unordered {
			continue
		}
		if ssn, ok := streamMap[c.streamIdentifier]; !ok || sna16LT(ssn, c.streamSequenceNumber) {
			streamMap[c.streamIdentifier] = c.streamSequenceNumber
		}
	}

	fwdtsn := &chunkForwardTSN{newCumulativeTSN: a.advancedPeerTSNAckPoint}
	for si, ssn := range streamMap {
		fwdtsn.streams = append(fwdtsn.streams, chunkForwardTSNStream{identifier: si, sequence: ssn})
	}
	return fwdtsn
}

func (a *Association) gatherOutboundForwardTSNPackets(rawPackets [][]byte) [][]byte {
	if !a.willSendForwardTSN {
		return rawPackets
	}
	a.willSendForwardTSN = false

	if sna32GT(a.advancedPeerTSNAckPoint, a.cumulativeTSNAckPoint) {
		if raw, err := a.createPacket([]chunk{a.createForwardTSN()}).marshal(); err == nil {
			rawPackets = append(rawPackets, raw)
		}
	}
	return rawPackets
}

func (a *Association) gatherOutboundShutdownPackets(rawPackets [][]byte) [][]byte {
	if a.state == shutdownPending && a.inflightQueue.size() == 0 {
		a.state = shutdownSent
		if raw, err := a.createPacket([]chunk{&chunkShutdown{cumulativeTSNAck: a.cumulativeTSNAckPoint}}).marshal(); err == nil {
			rawPackets = append(rawPackets, raw)
		}
		a.timers.start(timerT2Shutdown, a.now.Add(a.rtoMgr.getRTO()))
	}
	return rawPackets
}

func (a *Association) gatherOutbound() [][]byte {
	var rawPackets [][]byte

	if a.controlQueue.size() > 0 {
		for _, p := range a.controlQueue.popAll() {
			if raw, err := p.marshal(); err != nil {
				a.log.Warnf("[%s] failed to marshal control packet: %s", a.name, err)
			} else {
				rawPackets = append(rawPackets, raw)
			}
		}
	}

	if a.state == established {
		rawPackets = a.gatherOutboundDataAndReconfigPackets(rawPackets)
		rawPackets = a.gatherOutboundFastRetransmissionPackets(rawPackets)
		rawPackets = a.gatherOutboundSackPackets(rawPackets)
		rawPackets = a.gatherOutboundForwardTSNPackets(rawPackets)
	}
	rawPackets = a.gatherOutboundShutdownPackets(rawPackets)

	for _, raw := range rawPackets {
		a.bytesSent += uint64(len(raw))
	}
	return rawPackets
}

// PollTransmit returns the next outbound datagram ready to send, and
// false once none remain. Call it in a loop after Handle/HandleTimeout
// until it returns false.
func (a *Association) PollTransmit(now time.Time) ([]byte, bool) {
	a.now = now
	if len(a.outbox) == 0 {
		a.outbox = a.gatherOutbound()
	}
	if len(a.outbox) == 0 {
		return nil, false
	}
	raw := a.outbox[0]
	a.outbox = a.outbox[1:]
	if len(a.outbox) == 0 {
		a.outbox = nil
	}
	return raw, true
}

// PollTimeout returns the earliest deadline across every running
// timer, and false if none are running.
func (a *Association) PollTimeout() (time.Time, bool) {
	return a.timers.earliest()
}

// HandleTimeout fires every timer whose deadline is at or before now.
func (a *Association) HandleTimeout(now time.Time) {
	a.now = now

	if a.timers.isExpired(timerT1Init, now) {
		a.onT1InitTimeout(now)
	}
	if a.timers.isExpired(timerT1Cookie, now) {
		a.onT1CookieTimeout(now)
	}
	if a.timers.isExpired(timerT2Shutdown, now) {
		a.onT2ShutdownTimeout(now)
	}
	if a.timers.isExpired(timerT3RTX, now) {
		a.onT3RTXTimeout(now)
	}
	if a.timers.isExpired(timerReconfig, now) {
		a.onReconfigTimeout(now)
	}
	if a.timers.isExpired(timerDelayedAck, now) {
		a.onAckTimeout()
	}
}

func (a *Association) onT1InitTimeout(now time.Time) {
	n := a.timers.incRTO(timerT1Init)
	if n > a.maxInitRetransmits {
		a.timers.stop(timerT1Init)
		a.closeWithError(errors.Wrap(ErrHandshakeFailed, "T1-init retransmission limit exceeded"))
		return
	}
	a.log.Debugf("[%s] T1-init timed out, retransmitting (n=%d)", a.name, n)
	a.rtoMgr.backoff()
	if err := a.sendInit(); err != nil {
		a.log.Debugf("[%s] failed to retransmit INIT: %s", a.name, err)
	}
	a.timers.start(timerT1Init, now.Add(a.rtoMgr.getRTO()))
}

func (a *Association) onT1CookieTimeout(now time.Time) {
	n := a.timers.incRTO(timerT1Cookie)
	if n > a.maxInitRetransmits {
		a.timers.stop(timerT1Cookie)
		a.closeWithError(errors.Wrap(ErrHandshakeFailed, "T1-cookie retransmission limit exceeded"))
		return
	}
	a.log.Debugf("[%s] T1-cookie timed out, retransmitting (n=%d)", a.name, n)
	a.rtoMgr.backoff()
	if err := a.sendCookieEcho(); err != nil {
		a.log.Debugf("[%s] failed to retransmit COOKIE-ECHO: %s", a.name, err)
	}
	a.timers.start(timerT1Cookie, now.Add(a.rtoMgr.getRTO()))
}

func (a *Association) onT2ShutdownTimeout(now time.Time) {
	a.timers.incRTO(timerT2Shutdown)
	a.rtoMgr.backoff()
	switch a.state {
	case shutdownSent:
		a.controlQueue.push(a.createPacket([]chunk{&chunkShutdown{cumulativeTSNAck: a.cumulativeTSNAckPoint}}))
	case shutdownAckSent:
		a.controlQueue.push(a.createPacket([]chunk{&chunkShutdownAck{}}))
	default:
		a.timers.stop(timerT2Shutdown)
		return
	}
	a.timers.start(timerT2Shutdown, now.Add(a.rtoMgr.getRTO()))
}

// onT3RTXTimeout is RFC 4960 §6.3.3's retransmission-timer expiry:
// halve ssthresh, collapse cwnd to one MTU, and mark every inflight
// chunk for retransmission. Giving up after maxAssociationRetransmits
// consecutive expiries is this engine's own addition: the transport
// underneath has no connectivity-loss signal of its own, so SCTP has
// to be the one to time the association out.
func (a *Association) onT3RTXTimeout(now time.Time) {
	n := a.timers.incRTO(timerT3RTX)
	if n > a.maxAssociationRetransmits {
		a.timers.stop(timerT3RTX)
		a.closeWithError(errors.Wrap(ErrAssociationTimeout, "T3-rtx retransmission limit exceeded"))
		return
	}

	a.stats.incT3Timeouts()
	a.rtoMgr.backoff()

	a.fastRecoverExitPoint = 0
	a.inFastRecovery = false
	a.ssthresh = max32(a.cwnd/2, 4*a.mtu)
	a.cwnd = a.mtu
	a.partialBytesAcked = 0
	a.log.Tracef("[%s] T3-rtx timeout: cwnd=%d ssthresh=%d", a.name, a.cwnd, a.ssthresh)

	a.inflightQueue.markAllToRetrasmit()
	a.willRetransmitFast = true

	if a.useForwardTSN {
		a.willSendForwardTSN = true
	}
}

func (a *Association) onReconfigTimeout(now time.Time) {
	a.timers.incRTO(timerReconfig)
	a.rtoMgr.backoff()
	a.willRetransmitReconfig = true
	a.timers.start(timerReconfig, now.Add(a.rtoMgr.getRTO()))
}

func (a *Association) onAckTimeout() {
	a.log.Tracef("[%s] delayed-ack timer expired", a.name)
	a.ackState = ackStateImmediate
	a.stats.incAckTimeouts()
}

func (a *Association) onCumulativeTSNAckPointAdvanced(totalBytesAcked int) {
	// RFC 4960 §7.2.1/§7.2.2: slow start while below ssthresh, additive
	// increase (one MTU per RTT) above it.
	if a.cwnd <= a.ssthresh {
		a.cwnd += min32(uint32(totalBytesAcked), a.mtu)
		a.log.Tracef("[%s] slow start: cwnd=%d ssthresh=%d", a.name, a.cwnd, a.ssthresh)
	} else {
		a.partialBytesAcked += uint32(totalBytesAcked)
		if a.partialBytesAcked >= a.cwnd && a.partialBytesAcked >= a.mtu {
			a.partialBytesAcked -= a.cwnd
			a.cwnd += a.mtu
		}
		a.log.Tracef("[%s] congestion avoidance: cwnd=%d ssthresh=%d", a.name, a.cwnd, a.ssthresh)
	}
}

func (a *Association) processFastRetransmission(cumTSNAckPoint, htna uint32, cumTSNAckPointAdvanced bool) {
	if a.inFastRecovery && cumTSNAckPointAdvanced && sna32GTE(cumTSNAckPoint, a.fastRecoverExitPoint) {
		a.inFastRecovery = false
	}

	if !a.inFastRecovery {
		const missIndicatorThreshold = 3
		var missIndicatorSum int
		for i := cumTSNAckPoint + 1; sna32LTE(i, htna); i++ {
			c, ok := a.inflightQueue.get(i)
			if !ok || c.acked || c._abandoned {
				continue
			}
			if c.missIndicator < missIndicatorThreshold {
				c.missIndicator++
				if c.missIndicator == missIndicatorThreshold {
					missIndicatorSum++
				}
			}
		}

		if missIndicatorSum > 0 {
			a.inFastRecovery = true
			a.fastRecoverExitPoint = htna
			a.ssthresh = max32(a.cwnd/2, 4*a.mtu)
			a.cwnd = a.ssthresh
			a.partialBytesAcked = 0
			a.willRetransmitFast = true
			a.stats.incFastRetrans()
			a.log.Tracef("[%s] entering fast-recovery: cwnd=%d ssthresh=%d", a.name, a.cwnd, a.ssthresh)
		}
	}
}

func (a *Association) processSelectiveAck(d *chunkSelectiveAck) (map[uint16]int, uint32) {
	bytesAckedPerStream := map[uint16]int{}

	if sna32GT(a.cumulativeTSNAckPoint, d.cumulativeTSNAck) {
		return bytesAckedPerStream, 0
	}

	var totalBytesAcked int
	var htna uint32

	for i := a.cumulativeTSNAckPoint + 1; sna32LTE(i, d.cumulativeTSNAck); i++ {
		c, ok := a.inflightQueue.pop(i)
		if !ok {
			continue
		}
		if !c.acked {
			nBytesAcked := len(c.userData)
			bytesAckedPerStream[c.streamIdentifier] += nBytesAcked
			totalBytesAcked += nBytesAcked
			c.acked = true

			if c.nSent == 1 && sna32GTE(c.tsn, a.minTSN2MeasureRTT) {
				a.rtoMgr.observeRTT(a.now.Sub(c.since))
			}
		}
		htna = i
	}

	for _, block := range d.gapAckBlocks {
		for i := block.start; i <= block.end; i++ {
			tsn := d.cumulativeTSNAck + uint32(i)
			c, ok := a.inflightQueue.get(tsn)
			if !ok {
				continue
			}
			if !c.acked {
				nBytesAcked := a.inflightQueue.markAsAcked(tsn)
				bytesAckedPerStream[c.streamIdentifier] += nBytesAcked
				totalBytesAcked += nBytesAcked

				if c.nSent == 1 && sna32GTE(c.tsn, a.minTSN2MeasureRTT) {
					a.rtoMgr.observeRTT(a.now.Sub(c.since))
				}
			}
			if sna32GT(tsn, htna) {
				htna = tsn
			}
		}
	}

	return bytesAckedPerStream, htna
}

func (a *Association) handleSack(now time.Time, d *chunkSelectiveAck) error {
	a.log.Tracef("[%s] %s", a.name, d.String())
	a.stats.incSACKs()

	if sna32GT(a.cumulativeTSNAckPoint, d.cumulativeTSNAck) {
		return nil
	}

	bytesAckedPerStream, htna := a.processSelectiveAck(d)

	var totalBytesAcked int
	for _, acked := range bytesAckedPerStream {
		totalBytesAcked += acked
	}

	cumTSNAckPointAdvanced := false
	if sna32LT(a.cumulativeTSNAckPoint, d.cumulativeTSNAck) {
		a.cumulativeTSNAckPoint = d.cumulativeTSNAck
		cumTSNAckPointAdvanced = true
	}

	for si, nBytesAcked := range bytesAckedPerStream {
		if s, ok := a.streams[si]; ok {
			if s.onBufferReleased(nBytesAcked) {
				a.pushEvent(Event{Kind: EventStream, StreamKind: StreamBufferedAmountLow, StreamID: si})
			}
		}
	}

	if totalBytesAcked > 0 {
		a.onCumulativeTSNAckPointAdvanced(totalBytesAcked)
	}

	a.processFastRetransmission(d.cumulativeTSNAck, htna, cumTSNAckPointAdvanced)

	if a.useForwardTSN && a.inflightQueue.size() > 0 {
		if p, ok := a.inflightQueue.get(a.cumulativeTSNAckPoint + 1); !ok || p._abandoned {
			a.advancedPeerTSNAckPoint = a.cumulativeTSNAckPoint
			a.willSendForwardTSN = true
		}
	}

	a.rwnd = d.advertisedReceiverWindowCredit

	if a.inflightQueue.size() > 0 {
		if cumTSNAckPointAdvanced {
			// New data was acknowledged, so earlier T3-RTX expiries no
			// longer count as consecutive.
			a.timers.stop(timerT3RTX)
		}
		a.timers.start(timerT3RTX, now.Add(a.rtoMgr.getRTO()))
	} else {
		a.timers.stop(timerT3RTX)
	}

	return nil
}

func (a *Association) bufferedAmount() int {
	return a.pendingQueue.getNumBytes() + a.inflightQueue.getNumBytes()
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
