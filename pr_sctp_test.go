package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckPartialReliabilityStatusRexmitAbandonsAfterLimit(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.useForwardTSN = true

	s := a.createStream(0)
	s.SetReliabilityParams(false, ReliabilityTypeRexmit, 2)

	c := &chunkPayloadData{streamIdentifier: 0, nSent: 1, _allInflight: true}
	a.checkPartialReliabilityStatus(c)
	assert.False(t, c.abandoned())

	c.nSent = 2
	a.checkPartialReliabilityStatus(c)
	assert.True(t, c.abandoned())
}

func TestCheckPartialReliabilityStatusTimedAbandonsAfterDeadline(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	a.useForwardTSN = true
	a.now = time.Now()

	s := a.createStream(0)
	s.SetReliabilityParams(false, ReliabilityTypeTimed, 100) // ms

	c := &chunkPayloadData{streamIdentifier: 0, since: a.now, _allInflight: true}
	a.checkPartialReliabilityStatus(c)
	assert.False(t, c.abandoned())

	a.now = c.since.Add(200 * time.Millisecond)
	a.checkPartialReliabilityStatus(c)
	assert.True(t, c.abandoned())
}

func TestCheckPartialReliabilityStatusNoopWithoutForwardTSN(t *testing.T) {
	a := newAssociation(DefaultEndpointConfig(), Client, 1, 1)
	s := a.createStream(0)
	s.SetReliabilityParams(false, ReliabilityTypeRexmit, 1)

	c := &chunkPayloadData{streamIdentifier: 0, nSent: 5, _allInflight: true}
	a.checkPartialReliabilityStatus(c)
	assert.False(t, c.abandoned())
}
