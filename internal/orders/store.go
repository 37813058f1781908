package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

// defaultTicketTTL bounds how long a checked order stays confirmable.
// The broker expires confirmation ids server-side on roughly this horizon.
const defaultTicketTTL = 2 * time.Minute

// Ticket is one pass through the check/confirm lifecycle. The draft is
// stored verbatim so the confirm call replays exactly what was checked.
type Ticket struct {
	ConfirmationID string
	Draft          broker.OrderDraft
	State          types.OrderState
	TransactionFee *decimal.Decimal
	FreeSpaceNew   *decimal.Decimal
	Reasons        []string
	OrderID        string
	CreatedAt      time.Time
}

// Store holds checked tickets in memory, keyed by confirmation id.
// Tickets are short-lived; there is nothing to persist across restarts
// because the broker invalidates confirmation ids anyway.
type Store struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	ttl     time.Duration
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		tickets: make(map[string]Ticket),
		ttl:     defaultTicketTTL,
		now:     time.Now,
	}
}

func (s *Store) Save(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.tickets[t.ConfirmationID] = t
}

func (s *Store) Get(confirmationID string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[confirmationID]
	if !ok {
		return Ticket{}, false
	}
	if s.now().Sub(t.CreatedAt) > s.ttl {
		delete(s.tickets, confirmationID)
		return Ticket{}, false
	}
	return t, true
}

func (s *Store) Update(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ConfirmationID]; ok {
		s.tickets[t.ConfirmationID] = t
	}
}

func (s *Store) Delete(confirmationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, confirmationID)
}

func (s *Store) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, t := range s.tickets {
		if t.CreatedAt.Before(cutoff) {
			delete(s.tickets, id)
		}
	}
}
