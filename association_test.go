package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pumpEndpoints relays whatever each Endpoint has queued for
// PollTransmit into the other's Handle until neither side has
// anything left to send, simulating a lossless, zero-latency link
// between two Endpoints under direct control of the test.
func pumpEndpoints(t *testing.T, client, server *Endpoint, clientAddr, serverAddr RemoteAddr, now time.Time) {
	t.Helper()
	for i := 0; i < 64; i++ {
		moved := false
		for {
			addr, raw, ok := client.PollTransmit(now)
			if !ok {
				break
			}
			require.Equal(t, serverAddr, addr)
			server.Handle(now, clientAddr, raw)
			moved = true
		}
		for {
			addr, raw, ok := server.PollTransmit(now)
			if !ok {
				break
			}
			require.Equal(t, clientAddr, addr)
			client.Handle(now, serverAddr, raw)
			moved = true
		}
		if !moved {
			return
		}
	}
	t.Fatal("pumpEndpoints did not settle")
}

func drainConnected(a *Association) bool {
	saw := false
	for {
		e, ok := a.Poll()
		if !ok {
			return saw
		}
		if e.Kind == EventConnected {
			saw = true
		}
	}
}

func TestHandshakeCompletesBothSides(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client", "server"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientH := clientEP.Connect(now, serverAddr, 5000, 5000)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	clientAssoc, ok := clientEP.Association(clientH)
	require.True(t, ok)
	closed, _ := clientAssoc.Closed()
	assert.False(t, closed)
	assert.True(t, drainConnected(clientAssoc))
	assert.Equal(t, Client, clientAssoc.Side())

	serverHandles := serverEP.Handles()
	require.Len(t, serverHandles, 1)
	serverAssoc, ok := serverEP.Association(serverHandles[0])
	require.True(t, ok)
	assert.True(t, drainConnected(serverAssoc))
	assert.Equal(t, Server, serverAssoc.Side())
}

func TestDataTransferEndToEnd(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client", "server"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientH := clientEP.Connect(now, serverAddr, 5000, 5000)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	clientAssoc, _ := clientEP.Association(clientH)
	serverAssoc, _ := serverEP.Association(serverEP.Handles()[0])

	clientStream, err := clientAssoc.OpenStream(0, PayloadTypeWebRTCString)
	require.NoError(t, err)

	n, err := clientStream.Write([]byte("hello sctp"))
	require.NoError(t, err)
	assert.Equal(t, len("hello sctp"), n)

	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	serverStream, ok := serverAssoc.Stream(0)
	require.True(t, ok)

	buf := make([]byte, 64)
	n, err = serverStream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello sctp", string(buf[:n]))
}

func TestGracefulShutdown(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client", "server"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientH := clientEP.Connect(now, serverAddr, 5000, 5000)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	clientAssoc, _ := clientEP.Association(clientH)
	// Look the server association up now: the Endpoint drops closed
	// associations from its tables as soon as they reach CLOSED.
	serverAssoc, _ := serverEP.Association(serverEP.Handles()[0])
	clientAssoc.Close()

	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	closed, err := clientAssoc.Closed()
	assert.True(t, closed)
	assert.NoError(t, err)

	closed, err = serverAssoc.Closed()
	assert.True(t, closed)
	assert.NoError(t, err)
}

func TestStreamResetEndToEnd(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client", "server"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, &ServerConfig{})

	clientH := clientEP.Connect(now, serverAddr, 5000, 5000)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	clientAssoc, _ := clientEP.Association(clientH)
	serverAssoc, _ := serverEP.Association(serverEP.Handles()[0])

	clientStream, err := clientAssoc.OpenStream(0, PayloadTypeWebRTCString)
	require.NoError(t, err)
	_, err = clientStream.Write([]byte("hi"))
	require.NoError(t, err)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	serverStream, ok := serverAssoc.Stream(0)
	require.True(t, ok)
	buf := make([]byte, 16)
	_, err = serverStream.Read(buf)
	require.NoError(t, err)

	require.NoError(t, clientStream.Close())
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	sawReset := false
	for {
		e, ok := serverAssoc.Poll()
		if !ok {
			break
		}
		if e.Kind == EventStream && e.StreamKind == StreamReset {
			sawReset = true
		}
	}
	assert.True(t, sawReset)

	sawFinished := false
	for {
		e, ok := clientAssoc.Poll()
		if !ok {
			break
		}
		if e.Kind == EventStream && e.StreamKind == StreamFinished {
			sawFinished = true
		}
	}
	assert.True(t, sawFinished)

	_, stillOpen := clientAssoc.Stream(0)
	assert.False(t, stillOpen)
}

func TestServerDropsInitWithoutServerConfig(t *testing.T) {
	now := time.Now()
	const clientAddr, serverAddr RemoteAddr = "client", "server"

	clientEP := NewEndpoint(nil, nil)
	serverEP := NewEndpoint(nil, nil) // no ServerConfig: client-only

	clientEP.Connect(now, serverAddr, 5000, 5000)
	pumpEndpoints(t, clientEP, serverEP, clientAddr, serverAddr, now)

	assert.Len(t, serverEP.Handles(), 0)
}
