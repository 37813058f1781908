package watchlist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("watchlist entry not found")

// Entry is one watched instrument. The catalog identity is captured at
// add time so scans never need a search round-trip per entry.
type Entry struct {
	ProductID   string    `json:"product_id"`
	Symbol      string    `json:"symbol,omitempty"`
	Name        string    `json:"name"`
	QuoteFeedID string    `json:"quote_feed_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, productID string) error
	List(ctx context.Context) ([]Entry, error)
}

// PGStore persists the watch list in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the watchlist table when it does not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		create table if not exists watchlist (
			product_id text primary key,
			symbol text not null default '',
			name text not null,
			quote_feed_id text not null default '',
			created_at timestamptz not null default now()
		)
	`)
	return err
}

func (s *PGStore) Add(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		"insert into watchlist (product_id, symbol, name, quote_feed_id, created_at) values ($1,$2,$3,$4,$5) on conflict (product_id) do update set symbol = $2, name = $3, quote_feed_id = $4",
		e.ProductID, e.Symbol, e.Name, e.QuoteFeedID, time.Now().UTC())
	return err
}

func (s *PGStore) Remove(ctx context.Context, productID string) error {
	tag, err := s.pool.Exec(ctx, "delete from watchlist where product_id = $1", productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, "select product_id, symbol, name, quote_feed_id, created_at from watchlist order by created_at asc")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ProductID, &e.Symbol, &e.Name, &e.QuoteFeedID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, productID string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, "select product_id, symbol, name, quote_feed_id, created_at from watchlist where product_id = $1", productID).
		Scan(&e.ProductID, &e.Symbol, &e.Name, &e.QuoteFeedID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// MemoryStore keeps the watch list in process memory. Used when no
// database is configured; contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[e.ProductID]; ok {
		e.CreatedAt = existing.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[e.ProductID] = e
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[productID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, productID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
