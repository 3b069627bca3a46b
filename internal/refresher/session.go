package refresher

import (
	"sync"
	"time"

	"loanwatch/models"
)

// Session is the mutable state behind one watched position: the address
// being followed, the cached price, the inputs last applied and when the
// position was last fetched. Sessions are independent of each other.
type Session struct {
	mu         sync.RWMutex
	address    string
	price      *models.PriceQuote
	snapshot   models.PositionSnapshot
	lastFetch  time.Time
	evaluation *models.Evaluation
}

// NewSession returns an empty session whose APR starts at defaultAPR until a
// position is fetched.
func NewSession(defaultAPR float64) *Session {
	return &Session{snapshot: models.PositionSnapshot{InterestRateAPRPercent: defaultAPR}}
}

func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// LastFetch is the time of the last fetch that reached the loan API, zero
// if none has.
func (s *Session) LastFetch() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch
}

func (s *Session) Price() *models.PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil {
		return nil
	}
	p := *s.price
	return &p
}

// Snapshot returns a copy of the current inputs with the cached price applied.
func (s *Session) Snapshot() models.PositionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Evaluation returns the last evaluation produced for this session.
func (s *Session) Evaluation() (models.Evaluation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.evaluation == nil {
		return models.Evaluation{}, false
	}
	return *s.evaluation, true
}

func (s *Session) snapshotLocked() models.PositionSnapshot {
	snap := s.snapshot
	if s.price != nil {
		p := s.price.PriceUSD
		snap.CollateralPriceUSD = &p
	} else {
		snap.CollateralPriceUSD = nil
	}
	return snap
}

// setAddress switches the watched address. A new address starts with no
// fetch time so the next poll is due immediately.
func (s *Session) setAddress(address string) {
	s.mu.Lock()
	if s.address != address {
		s.lastFetch = time.Time{}
	}
	s.address = address
	s.mu.Unlock()
}

func (s *Session) clearAddress() {
	s.setAddress("")
}

func (s *Session) markFetched(address string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != address {
		return false
	}
	s.lastFetch = at
	return true
}

// applyPosition stores freshly fetched position values, keeping the
// additional borrow the user already picked. It refuses the update when the
// session moved on to another address while the fetch was running.
func (s *Session) applyPosition(address string, fetched models.PositionSnapshot) (models.PositionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != address {
		return models.PositionSnapshot{}, false
	}
	fetched.AdditionalBorrow = s.snapshot.AdditionalBorrow
	s.snapshot = fetched
	s.lastFetch = fetched.FetchedAt
	return s.snapshotLocked(), true
}

func (s *Session) setPrice(q models.PriceQuote) models.PositionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = &q
	return s.snapshotLocked()
}

func (s *Session) setAdditionalBorrow(v float64) models.PositionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.AdditionalBorrow = v
	return s.snapshotLocked()
}

func (s *Session) setEvaluation(ev models.Evaluation) {
	s.mu.Lock()
	s.evaluation = &ev
	s.mu.Unlock()
}
