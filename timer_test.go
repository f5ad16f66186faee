package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerSetStartStop(t *testing.T) {
	var ts timerSet
	now := time.Now()

	_, ok := ts.earliest()
	assert.False(t, ok)

	ts.start(timerT3RTX, now.Add(time.Second))
	assert.True(t, ts.isRunning(timerT3RTX))
	assert.False(t, ts.isExpired(timerT3RTX, now))
	assert.True(t, ts.isExpired(timerT3RTX, now.Add(2*time.Second)))

	ts.stop(timerT3RTX)
	assert.False(t, ts.isRunning(timerT3RTX))
}

func TestTimerSetEarliestPicksSmallest(t *testing.T) {
	var ts timerSet
	now := time.Now()
	ts.start(timerT3RTX, now.Add(5*time.Second))
	ts.start(timerDelayedAck, now.Add(time.Second))
	ts.start(timerHeartbeat, now.Add(10*time.Second))

	d, ok := ts.earliest()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Second), d)
}

func TestTimerSetRTOCounter(t *testing.T) {
	var ts timerSet
	assert.Equal(t, uint32(0), ts.numRTOs(timerT1Init))
	assert.Equal(t, uint32(1), ts.incRTO(timerT1Init))
	assert.Equal(t, uint32(2), ts.incRTO(timerT1Init))
	ts.stop(timerT1Init)
	assert.Equal(t, uint32(0), ts.numRTOs(timerT1Init))
}

func TestTimerIDString(t *testing.T) {
	assert.Equal(t, "T3-RTX", timerT3RTX.String())
	assert.Equal(t, "unknown-timer", timerID(999).String())
}
