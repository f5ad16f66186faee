package sctp

import "time"

// RTO bounds and initial value, RFC 4960 §15.
const (
	rtoInitialDefault = 3 * time.Second
	rtoMinDefault     = 1 * time.Second
	rtoMaxDefault     = 60 * time.Second

	// rtoGranularity is SCTP's clock granularity G (RFC 6298's RTTVAR
	// floor term), taken at RFC 4960 §15's 1 second.
	rtoGranularity = 1 * time.Second

	rtoAlphaNum, rtoAlphaDen = 1, 8 // RFC 6298 α = 1/8
	rtoBetaNum, rtoBetaDen   = 1, 4 // RFC 6298 β = 1/4
)

// rtoManager estimates the retransmission timeout per RFC 6298, using
// SCTP's constants from RFC 4960 §15. There is no surviving reference
// implementation of this in the teacher repo's vendor snapshot
// (rto_manager.go/rtx_timer.go are absent); this is a clean-room
// implementation of the RFC's formulas.
type rtoManager struct {
	srtt   time.Duration
	rttvar time.Duration
	rto    time.Duration
	rtoMin time.Duration
	rtoMax time.Duration
	noSRTT bool // true until the first sample has been folded in
}

func newRTOManager(rtoInitial, rtoMin, rtoMax time.Duration) *rtoManager {
	if rtoInitial <= 0 {
		rtoInitial = rtoInitialDefault
	}
	if rtoMin <= 0 {
		rtoMin = rtoMinDefault
	}
	if rtoMax <= 0 {
		rtoMax = rtoMaxDefault
	}
	return &rtoManager{
		rto:    clampDuration(rtoInitial, rtoMin, rtoMax),
		rtoMin: rtoMin,
		rtoMax: rtoMax,
		noSRTT: true,
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// getRTO returns the current retransmission timeout.
func (m *rtoManager) getRTO() time.Duration {
	return m.rto
}

// observeRTT folds a fresh round-trip-time sample into the SRTT/RTTVAR
// estimators and recomputes RTO. Must only be called with a sample
// taken from a chunk that was not retransmitted (Karn's algorithm).
func (m *rtoManager) observeRTT(r time.Duration) {
	if r < 0 {
		return
	}

	if m.noSRTT {
		// RFC 6298 §2.2: SRTT = R; RTTVAR = R/2.
		m.srtt = r
		m.rttvar = r / 2
		m.noSRTT = false
	} else {
		// RFC 6298 §2.3.
		diff := m.srtt - r
		if diff < 0 {
			diff = -diff
		}
		m.rttvar = m.rttvar - m.rttvar/rtoBetaDen + diff/rtoBetaDen
		m.srtt = m.srtt - m.srtt/rtoAlphaDen + r/rtoAlphaDen
	}

	rttvarTerm := 4 * m.rttvar
	if rttvarTerm < rtoGranularity {
		// RFC 6298's RTO formula takes max(G, 4*RTTVAR).
		rttvarTerm = rtoGranularity
	}
	m.rto = clampDuration(m.srtt+rttvarTerm, m.rtoMin, m.rtoMax)
}

// backoff doubles the current RTO on a T3-RTX expiry (RFC 6298 §5.5),
// without folding the doubled value back into SRTT/RTTVAR.
func (m *rtoManager) backoff() {
	m.rto = clampDuration(m.rto*2, m.rtoMin, m.rtoMax)
}

// reset restores RTO to its initial state and discards the RTT
// history, for when that history is no longer trustworthy (e.g. after
// an idle period per RFC 6298 §5.7). Nothing in the engine calls it; a
// new association gets a fresh rtoManager instead.
func (m *rtoManager) reset(rtoInitial time.Duration) {
	if rtoInitial <= 0 {
		rtoInitial = rtoInitialDefault
	}
	m.rto = clampDuration(rtoInitial, m.rtoMin, m.rtoMax)
	m.srtt = 0
	m.rttvar = 0
	m.noSRTT = true
}
