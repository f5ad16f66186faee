package sctp

// associationStats counts protocol events for diagnostics. The engine
// is single-threaded and caller-serialized (see Association's Handle/
// HandleTimeout/Poll contract), so these counters need no atomics.
type associationStats struct {
	nDATAs       uint64
	nSACKs       uint64
	nT3Timeouts  uint64
	nAckTimeouts uint64
	nFastRetrans uint64
}

func (s *associationStats) incDATAs() {
	s.nDATAs++
}

func (s *associationStats) getNumDATAs() uint64 {
	return s.nDATAs
}

func (s *associationStats) incSACKs() {
	s.nSACKs++
}

func (s *associationStats) getNumSACKs() uint64 {
	return s.nSACKs
}

func (s *associationStats) incT3Timeouts() {
	s.nT3Timeouts++
}

func (s *associationStats) getNumT3Timeouts() uint64 {
	return s.nT3Timeouts
}

func (s *associationStats) incAckTimeouts() {
	s.nAckTimeouts++
}

func (s *associationStats) getNumAckTimeouts() uint64 {
	return s.nAckTimeouts
}

func (s *associationStats) incFastRetrans() {
	s.nFastRetrans++
}

func (s *associationStats) getNumFastRetrans() uint64 {
	return s.nFastRetrans
}

func (s *associationStats) reset() {
	s.nDATAs = 0
	s.nSACKs = 0
	s.nT3Timeouts = 0
	s.nAckTimeouts = 0
	s.nFastRetrans = 0
}
