package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointHandshakeAndRouting(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client:1", "server:1"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientH := clientEP.Connect(now, serverAddr, 100, 200)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	clientAssoc, ok := clientEP.Association(clientH)
	require.True(t, ok)
	closed, _ := clientAssoc.Closed()
	assert.False(t, closed)

	require.Len(t, serverEP.Handles(), 1)
	assert.Len(t, clientEP.routes, 1)
	assert.Len(t, serverEP.routes, 1)
}

func TestEndpointDropsMalformedDatagram(t *testing.T) {
	ep := NewEndpoint(nil, &ServerConfig{})
	h, created := ep.Handle(time.Now(), "peer", []byte{1, 2, 3})
	assert.Equal(t, AssociationHandle(0), h)
	assert.False(t, created)
	assert.Len(t, ep.Handles(), 0)
}

func TestEndpointDropsUnroutableChunk(t *testing.T) {
	ep := NewEndpoint(nil, &ServerConfig{})
	p := &packet{sourcePort: 1, destinationPort: 2, verificationTag: 0xDEAD, chunks: []chunk{&chunkCookieAck{}}}
	raw, err := p.marshal()
	require.NoError(t, err)

	h, created := ep.Handle(time.Now(), "peer", raw)
	assert.Equal(t, AssociationHandle(0), h)
	assert.False(t, created)
}

func TestEndpointRejectSendsAbortAndTearsDown(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client:2", "server:2"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientEP.Connect(now, serverAddr, 100, 200)

	// Relay both directions up through COOKIE-ECHO, stopping the instant
	// the server creates its Association — before its COOKIE-ACK can
	// reach the client — so Reject runs against a handshake the client
	// still believes is in flight.
	created := false
	for i := 0; i < 8 && !created; i++ {
		for {
			addr, raw, ok := clientEP.PollTransmit(now)
			if !ok {
				break
			}
			assert.Equal(t, serverAddr, addr)
			if _, c := serverEP.Handle(now, clientAddr, raw); c {
				created = true
			}
		}
		if created {
			break
		}
		for {
			addr, raw, ok := serverEP.PollTransmit(now)
			if !ok {
				break
			}
			assert.Equal(t, clientAddr, addr)
			clientEP.Handle(now, serverAddr, raw)
		}
	}

	handles := serverEP.Handles()
	require.Len(t, handles, 1)

	serverEP.Reject(handles[0], "no thanks")
	assert.Len(t, serverEP.Handles(), 0)

	addr, raw, ok := serverEP.PollTransmit(now)
	require.True(t, ok)
	assert.Equal(t, clientAddr, addr)

	p := &packet{}
	require.NoError(t, p.unmarshal(raw))
	require.Len(t, p.chunks, 1)
	_, isAbort := p.chunks[0].(*chunkAbort)
	assert.True(t, isAbort)
}

func TestEndpointWithoutServerConfigDropsInit(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client:3", "server:3"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, nil)

	clientEP.Connect(now, serverAddr, 100, 200)
	addr, raw, ok := clientEP.PollTransmit(now)
	require.True(t, ok)
	assert.Equal(t, serverAddr, addr)

	h, created := serverEP.Handle(now, clientAddr, raw)
	assert.Equal(t, AssociationHandle(0), h)
	assert.False(t, created)

	_, _, ok = serverEP.PollTransmit(now)
	assert.False(t, ok)
}
