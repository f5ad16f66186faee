package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTOManagerDefaults(t *testing.T) {
	m := newRTOManager(0, 0, 0)
	assert.Equal(t, rtoInitialDefault, m.getRTO())
}

func TestRTOManagerObserveRTT(t *testing.T) {
	m := newRTOManager(3*time.Second, 1*time.Second, 60*time.Second)
	m.observeRTT(200 * time.Millisecond)
	first := m.getRTO()
	assert.True(t, first >= m.rtoMin)

	m.observeRTT(210 * time.Millisecond)
	assert.True(t, m.getRTO() >= m.rtoMin)
}

func TestRTOManagerBackoffDoublesAndClamps(t *testing.T) {
	m := newRTOManager(1*time.Second, 1*time.Second, 4*time.Second)
	m.rto = 3 * time.Second
	m.backoff()
	assert.Equal(t, 4*time.Second, m.getRTO()) // clamped to rtoMax
}

func TestRTOManagerReset(t *testing.T) {
	m := newRTOManager(3*time.Second, 1*time.Second, 60*time.Second)
	m.observeRTT(500 * time.Millisecond)
	m.backoff()
	m.reset(0)
	assert.Equal(t, rtoInitialDefault, m.getRTO())
	assert.True(t, m.noSRTT)
}

func TestClampDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, clampDuration(1*time.Second, 2*time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, clampDuration(9*time.Second, 2*time.Second, 5*time.Second))
	assert.Equal(t, 3*time.Second, clampDuration(3*time.Second, 2*time.Second, 5*time.Second))
}
