package sctp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/pion/logging"
)

// AssociationHandle is a small integer newtype identifying an
// Association owned by an Endpoint. Associations never hold a
// back-reference to their Endpoint or to each other; all cross-
// association lookups go through the Endpoint's own tables, keyed by
// this handle, which avoids an ownership cycle between the two.
type AssociationHandle uint64

// RemoteAddr is an opaque, comparable identifier for a datagram's
// remote peer. The engine is transport-agnostic: callers supply
// whatever string uniquely names a peer on their transport (a UDP
// host:port, an ICE candidate-pair id, a DTLS session id) and the
// Endpoint never interprets it beyond equality and map-key use.
type RemoteAddr string

type addrPacket struct {
	addr RemoteAddr
	raw  []byte
}

// Endpoint is a process-local multiplexer over zero or more
// Associations sharing one local listening identity. It owns the
// association table, the routing indices that demultiplex inbound
// datagrams to the right Association, and (on the server side) the
// HMAC secret used to authenticate state cookies statelessly, without
// ever allocating an Association before a handshake has verified a
// genuine peer.
type Endpoint struct {
	cfg       *EndpointConfig
	serverCfg *ServerConfig
	log       logging.LeveledLogger

	cookieSecret []byte

	associations map[AssociationHandle]*Association
	addrs        map[AssociationHandle]RemoteAddr
	order        []AssociationHandle

	// routes maps (remote address, our local verification tag) to a
	// handle; this is the primary lookup for every inbound packet
	// whose first chunk is not INIT or COOKIE-ECHO.
	routes map[string]AssociationHandle

	// peerRoutes maps (remote address, the peer's verification tag) to
	// a handle, used only as a fallback for ABORT/SHUTDOWN-COMPLETE
	// chunks with the T-bit set, which carry the peer's own tag
	// reflected back rather than ours (RFC 4960 §8.5.1).
	peerRoutes map[string]AssociationHandle

	nextHandle AssociationHandle
	outbox     []addrPacket
}

// NewEndpoint constructs an Endpoint. serverCfg may be nil: an
// Endpoint with no ServerConfig silently drops inbound INIT chunks
// rather than responding, i.e. it is a client-only Endpoint.
func NewEndpoint(cfg *EndpointConfig, serverCfg *ServerConfig) *Endpoint {
	if cfg == nil {
		cfg = DefaultEndpointConfig()
	}
	e := &Endpoint{
		cfg:          cfg,
		serverCfg:    serverCfg,
		log:          cfg.LoggerFactory.NewLogger("sctp.endpoint"),
		associations: map[AssociationHandle]*Association{},
		addrs:        map[AssociationHandle]RemoteAddr{},
		routes:       map[string]AssociationHandle{},
		peerRoutes:   map[string]AssociationHandle{},
	}
	if serverCfg != nil {
		if len(serverCfg.CookieSecret) > 0 {
			e.cookieSecret = serverCfg.CookieSecret
		} else {
			e.cookieSecret = generateCookieSecret()
		}
	}
	return e
}

func generateCookieSecret() []byte {
	secret := make([]byte, 24)
	for i := 0; i < len(secret); i += 8 {
		binary.BigEndian.PutUint64(secret[i:], globalMathRandomGenerator.Uint64())
	}
	return secret
}

func routeKey(addr RemoteAddr, tag uint32) string {
	return fmt.Sprintf("%s|%d", addr, tag)
}

func (e *Endpoint) cookieLifetime() time.Duration {
	if e.serverCfg != nil && e.serverCfg.CookieLifetime > 0 {
		return e.serverCfg.CookieLifetime
	}
	return DefaultCookieLifetime
}

func (e *Endpoint) register(a *Association, addr RemoteAddr) AssociationHandle {
	e.nextHandle++
	h := e.nextHandle
	e.associations[h] = a
	e.addrs[h] = addr
	e.order = append(e.order, h)
	e.routes[routeKey(addr, a.myVerificationTag)] = h
	e.syncPeerRoute(h, a)
	return h
}

func (e *Endpoint) unregister(h AssociationHandle) {
	a, ok := e.associations[h]
	if !ok {
		return
	}
	addr := e.addrs[h]
	delete(e.routes, routeKey(addr, a.myVerificationTag))
	if a.peerVerificationTag != 0 {
		delete(e.peerRoutes, routeKey(addr, a.peerVerificationTag))
	}
	delete(e.associations, h)
	delete(e.addrs, h)
	for i, hh := range e.order {
		if hh == h {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Endpoint) syncPeerRoute(h AssociationHandle, a *Association) {
	if a.peerVerificationTag == 0 {
		return
	}
	key := routeKey(e.addrs[h], a.peerVerificationTag)
	if e.peerRoutes[key] != h {
		e.peerRoutes[key] = h
	}
}

// reapIfClosed drops a closed association, first moving whatever it
// still has queued (the SHUTDOWN-COMPLETE or ABORT it sent on its way
// to CLOSED) into the Endpoint's own outbox.
func (e *Endpoint) reapIfClosed(h AssociationHandle, a *Association) {
	if done, _ := a.Closed(); done {
		addr := e.addrs[h]
		for {
			raw, ok := a.PollTransmit(a.now)
			if !ok {
				break
			}
			e.outbox = append(e.outbox, addrPacket{addr, raw})
		}
		e.unregister(h)
	}
}

// Connect starts the client side of a new association toward addr.
func (e *Endpoint) Connect(now time.Time, addr RemoteAddr, sourcePort, destinationPort uint16) AssociationHandle {
	a := newClientAssociation(e.cfg, now, sourcePort, destinationPort)
	return e.register(a, addr)
}

// Association looks up a previously returned handle.
func (e *Endpoint) Association(h AssociationHandle) (*Association, bool) {
	a, ok := e.associations[h]
	return a, ok
}

// Handles returns every handle this Endpoint currently hosts, in the
// order they were created. Callers drive PollTransmit/PollTimeout/
// HandleTimeout/PollEvent across this set themselves; the Endpoint
// does not run its own loop.
func (e *Endpoint) Handles() []AssociationHandle {
	out := make([]AssociationHandle, len(e.order))
	copy(out, e.order)
	return out
}

// Accept acknowledges a server-side handshake that Handle just
// completed. Since a server Association only ever comes into being
// once its COOKIE-ECHO has already verified (RFC 4960's statelessness
// means there is no earlier, unauthenticated point to accept or reject
// from), Accept is purely an accessor: it exists so callers that want
// an explicit acceptance step in their own code have one to call.
func (e *Endpoint) Accept(h AssociationHandle) (*Association, bool) {
	return e.Association(h)
}

// Reject tears down a just-created server Association immediately,
// sending ABORT to the peer. The handshake has already completed on
// the server side by then (see Accept), so the peer sees an
// association that was accepted and then aborted.
func (e *Endpoint) Reject(h AssociationHandle, reason string) {
	a, ok := e.associations[h]
	if !ok {
		return
	}
	cause := &errorCauseUserInitiatedAbort{upperLayerAbortReason: []byte(reason)}
	if raw, err := a.createPacket([]chunk{&chunkAbort{errorCauses: []errorCause{cause}}}).marshal(); err == nil {
		e.outbox = append(e.outbox, addrPacket{e.addrs[h], raw})
	}
	e.unregister(h)
}

// Close begins a graceful shutdown of the association behind h.
func (e *Endpoint) Close(h AssociationHandle) {
	if a, ok := e.associations[h]; ok {
		a.Close()
	}
}

// Handle classifies and dispatches one inbound datagram. It returns
// the handle it was routed to (or created) and whether that handle is
// a newly created server Association, so the caller can immediately
// inspect or Reject it. A return of (0, false) means the datagram
// reached no association: it was an INIT (answered statelessly with an
// INIT-ACK when a ServerConfig is present), or it was silently dropped
// because it was unroutable or malformed, which is not this Endpoint's
// concern to report, mirroring the wire codec's own CRC-failure drop
// behavior.
func (e *Endpoint) Handle(now time.Time, addr RemoteAddr, raw []byte) (AssociationHandle, bool) {
	p := &packet{}
	if err := p.unmarshal(raw); err != nil {
		e.log.Debugf("[endpoint] dropping malformed packet from %s: %s", addr, err)
		return 0, false
	}
	if len(p.chunks) == 0 {
		return 0, false
	}

	switch c := p.chunks[0].(type) {
	case *chunkInit:
		e.handleInboundInit(now, addr, p, c)
		return 0, false
	case *chunkCookieEcho:
		return e.handleInboundCookieEcho(now, addr, raw, p, c)
	default:
		return e.routeAndHandle(now, addr, raw, p, c)
	}
}

func (e *Endpoint) routeAndHandle(now time.Time, addr RemoteAddr, raw []byte, p *packet, first chunk) (AssociationHandle, bool) {
	if h, ok := e.routes[routeKey(addr, p.verificationTag)]; ok {
		if a, ok := e.associations[h]; ok {
			a.Handle(now, raw)
			e.syncPeerRoute(h, a)
			e.reapIfClosed(h, a)
			return h, false
		}
	}

	if isTagReflected(first) {
		if h, ok := e.peerRoutes[routeKey(addr, p.verificationTag)]; ok {
			if a, ok := e.associations[h]; ok {
				a.Handle(now, raw)
				e.reapIfClosed(h, a)
				return h, false
			}
		}
	}

	e.log.Tracef("[endpoint] dropping unroutable packet from %s (tag=%d)", addr, p.verificationTag)
	return 0, false
}

func isTagReflected(c chunk) bool {
	switch v := c.(type) {
	case *chunkAbort:
		return v.tagReflected
	case *chunkShutdownComplete:
		return v.tagReflected
	default:
		return false
	}
}

// handleInboundInit is the stateless half of the four-way handshake
// (RFC 4960 §5.1.1/§5.1.3): no Association is created. A freshly
// signed state cookie is embedded in the INIT-ACK so nothing about
// this candidate association needs to be remembered until the peer
// echoes it back.
func (e *Endpoint) handleInboundInit(now time.Time, addr RemoteAddr, p *packet, c *chunkInit) {
	if e.serverCfg == nil {
		e.log.Debugf("[endpoint] dropping INIT from %s: not accepting connections", addr)
		return
	}
	if _, err := c.check(); err != nil {
		e.log.Debugf("[endpoint] dropping invalid INIT from %s: %s", addr, err)
		return
	}

	localTag := globalMathRandomGenerator.Uint32()
	localTSN := globalMathRandomGenerator.Uint32()
	numOutbound := min16(c.numInboundStreams, math.MaxUint16)
	numInbound := min16(c.numOutboundStreams, math.MaxUint16)

	sc := newStateCookie(e.cookieSecret, now, c.initiateTag, localTag, c.initialTSN, localTSN,
		e.cfg.MaxReceiveBuffer, numOutbound, numInbound)

	ack := &chunkInitAck{}
	ack.initiateTag = localTag
	ack.advertisedReceiverWindowCredit = e.cfg.MaxReceiveBuffer
	ack.numOutboundStreams = numOutbound
	ack.numInboundStreams = numInbound
	ack.initialTSN = localTSN
	setSupportedExtensions(&ack.chunkInitCommon)
	ack.params = append(ack.params, &paramStateCookie{cookie: sc.bytes()})

	reply := &packet{
		sourcePort:      p.destinationPort,
		destinationPort: p.sourcePort,
		verificationTag: c.initiateTag,
		chunks:          []chunk{ack},
	}
	raw, err := reply.marshal()
	if err != nil {
		e.log.Warnf("[endpoint] failed to marshal INIT-ACK for %s: %s", addr, err)
		return
	}
	e.outbox = append(e.outbox, addrPacket{addr, raw})
}

// handleInboundCookieEcho authenticates the echoed cookie and either
// creates the server-side Association it describes, or — if one
// already exists under that tag pair, meaning our COOKIE-ACK never
// reached the peer — forwards to it so it can retransmit COOKIE-ACK.
func (e *Endpoint) handleInboundCookieEcho(now time.Time, addr RemoteAddr, raw []byte, p *packet, c *chunkCookieEcho) (AssociationHandle, bool) {
	sc, err := parseStateCookie(c.cookie, e.cookieSecret, now, e.cookieLifetime())
	if err != nil {
		e.log.Debugf("[endpoint] rejecting COOKIE-ECHO from %s: %s", addr, err)
		return 0, false
	}

	if h, ok := e.routes[routeKey(addr, sc.localInitiateTag)]; ok {
		if a, ok := e.associations[h]; ok {
			a.Handle(now, raw)
			e.reapIfClosed(h, a)
			return h, false
		}
	}

	a := newServerAssociation(e.cfg, p.destinationPort, p.sourcePort, sc)
	h := e.register(a, addr)
	return h, true
}

// PollTransmit returns the next outbound datagram this Endpoint has
// ready, paired with the remote address to send it to, and false once
// none remain. It drains its own stateless replies (INIT-ACK, ABORT)
// first, then pulls from every hosted Association in creation order.
func (e *Endpoint) PollTransmit(now time.Time) (RemoteAddr, []byte, bool) {
	if len(e.outbox) == 0 {
		e.gatherOutbound(now)
	}
	if len(e.outbox) == 0 {
		return "", nil, false
	}
	p := e.outbox[0]
	e.outbox = e.outbox[1:]
	if len(e.outbox) == 0 {
		e.outbox = nil
	}
	return p.addr, p.raw, true
}

func (e *Endpoint) gatherOutbound(now time.Time) {
	for _, h := range e.order {
		a, ok := e.associations[h]
		if !ok {
			continue
		}
		addr := e.addrs[h]
		for {
			raw, ok := a.PollTransmit(now)
			if !ok {
				break
			}
			e.outbox = append(e.outbox, addrPacket{addr, raw})
		}
		e.reapIfClosed(h, a)
	}
}

// PollTimeout returns the earliest timer deadline for the association
// behind h. It does not require exclusive access to the Endpoint's
// association table: it only reads the one Association's timer set.
func (e *Endpoint) PollTimeout(h AssociationHandle) (time.Time, bool) {
	a, ok := e.associations[h]
	if !ok {
		return time.Time{}, false
	}
	return a.PollTimeout()
}

// HandleTimeout fires every expired timer on the association behind h.
func (e *Endpoint) HandleTimeout(now time.Time, h AssociationHandle) {
	a, ok := e.associations[h]
	if !ok {
		return
	}
	a.HandleTimeout(now)
	e.reapIfClosed(h, a)
}

// PollEvent drains one queued Event from the association behind h.
func (e *Endpoint) PollEvent(h AssociationHandle) (Event, bool) {
	a, ok := e.associations[h]
	if !ok {
		return Event{}, false
	}
	return a.Poll()
}
