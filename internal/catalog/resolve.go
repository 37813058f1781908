package catalog

import (
	"context"
	"strings"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
)

// resolveCandidates caps how many search rows the resolver inspects.
const resolveCandidates = 20

// UnderlyingResolver maps a free-text query to one canonical instrument.
// It is deliberately best-effort: an ambiguous query resolves to the first
// strategy that matches, never to an error.
type UnderlyingResolver struct {
	searcher *Searcher
}

func NewUnderlyingResolver(searcher *Searcher) *UnderlyingResolver {
	return &UnderlyingResolver{searcher: searcher}
}

// Resolve tries, in order: exact ISIN, exact symbol, query contained in
// the name, query contained in the symbol, then the first search result.
// It returns nil when the search yields no candidates at all.
func (r *UnderlyingResolver) Resolve(ctx context.Context, query string) (*model.Instrument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	results := r.searcher.SearchStocks(ctx, query, resolveCandidates)
	rows := results.Collect(resolveCandidates)
	if len(rows) == 0 {
		if err := results.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)

	for _, row := range rows {
		if row.ISIN == query {
			return instrumentPtr(row), nil
		}
	}
	for _, row := range rows {
		if row.Symbol == upper {
			return instrumentPtr(row), nil
		}
	}
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Name), lower) {
			return instrumentPtr(row), nil
		}
	}
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Symbol), lower) {
			return instrumentPtr(row), nil
		}
	}
	return instrumentPtr(rows[0]), nil
}

func instrumentPtr(row broker.ProductRow) *model.Instrument {
	instrument := InstrumentFromRow(row)
	return &instrument
}
