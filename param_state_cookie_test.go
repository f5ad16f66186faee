package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCookieRoundTrip(t *testing.T) {
	secret := []byte("top-secret-key")
	now := time.Now()

	sc := newStateCookie(secret, now, 0xAAAABBBB, 0xCCCCDDDD, 111, 222, 1024, 10, 20)
	raw := sc.bytes()

	parsed, err := parseStateCookie(raw, secret, now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, sc.peerInitiateTag, parsed.peerInitiateTag)
	assert.Equal(t, sc.localInitiateTag, parsed.localInitiateTag)
	assert.Equal(t, sc.peerInitialTSN, parsed.peerInitialTSN)
	assert.Equal(t, sc.localInitialTSN, parsed.localInitialTSN)
	assert.Equal(t, sc.advertisedReceiverWindowCredit, parsed.advertisedReceiverWindowCredit)
	assert.Equal(t, sc.numOutboundStreams, parsed.numOutboundStreams)
	assert.Equal(t, sc.numInboundStreams, parsed.numInboundStreams)
}

func TestStateCookieRejectsWrongSecret(t *testing.T) {
	sc := newStateCookie([]byte("secret-a"), time.Now(), 1, 2, 3, 4, 1024, 1, 1)
	_, err := parseStateCookie(sc.bytes(), []byte("secret-b"), time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrStateCookieMACMismatch)
}

func TestStateCookieRejectsTamperedBytes(t *testing.T) {
	secret := []byte("secret")
	sc := newStateCookie(secret, time.Now(), 1, 2, 3, 4, 1024, 1, 1)
	raw := sc.bytes()
	raw[0] ^= 0xFF

	_, err := parseStateCookie(raw, secret, time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrStateCookieMACMismatch)
}

func TestStateCookieRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued := time.Now()
	sc := newStateCookie(secret, issued, 1, 2, 3, 4, 1024, 1, 1)

	_, err := parseStateCookie(sc.bytes(), secret, issued.Add(2*time.Minute), time.Minute)
	assert.ErrorIs(t, err, ErrStateCookieExpired)
}

func TestStateCookieRejectsTooShort(t *testing.T) {
	_, err := parseStateCookie([]byte{1, 2, 3}, []byte("secret"), time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrStateCookieTooShort)
}

func TestParamStateCookieMarshalUnmarshal(t *testing.T) {
	p := &paramStateCookie{cookie: []byte{1, 2, 3, 4}}
	raw, err := p.marshal()
	require.NoError(t, err)

	out := &paramStateCookie{}
	parsed, err := out.unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, parsed.(*paramStateCookie).cookie)
}
