package catalog

import (
	"context"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

// overFetchFactor controls how many rows are requested per wanted match
// when filtering leveraged products. The search endpoint cannot filter by
// leverage range, so pages must be over-requested and filtered here.
const overFetchFactor = 5

// SearchClient is the slice of the broker client the catalog needs.
type SearchClient interface {
	SearchStocks(ctx context.Context, q broker.StocksQuery) (broker.SearchPage, error)
	SearchLeverageds(ctx context.Context, q broker.LeveragedsQuery) (broker.SearchPage, error)
}

// Searcher runs exhaustive, paginated catalog searches.
type Searcher struct {
	client SearchClient
}

func NewSearcher(client SearchClient) *Searcher {
	return &Searcher{client: client}
}

// Results streams catalog rows page by page. The sequence is lazy, finite
// and cannot be restarted; a page failure ends it with whatever was
// already fetched, reported through Err.
type Results struct {
	fetch      func(offset, limit int) (broker.SearchPage, error)
	pageSize   int
	buf        []broker.ProductRow
	pos        int
	offset     int
	fetched    int
	total      int
	totalKnown bool
	done       bool
	err        error
}

// Next returns the next row, pulling the next page from the server when
// the buffer runs out. It returns false once the catalog is exhausted or a
// page request failed.
func (r *Results) Next() (broker.ProductRow, bool) {
	for r.pos >= len(r.buf) {
		if r.done {
			return broker.ProductRow{}, false
		}
		page, err := r.fetch(r.offset, r.pageSize)
		if err != nil {
			r.err = err
			r.done = true
			return broker.ProductRow{}, false
		}
		if page.Total > 0 {
			r.total = page.Total
			r.totalKnown = true
		}
		r.buf = page.Products
		r.pos = 0
		r.offset += len(page.Products)
		r.fetched += len(page.Products)
		// Stop when the server sent a short page or we have the
		// reported total; pages are assumed disjoint.
		if len(page.Products) < r.pageSize || (r.totalKnown && r.fetched >= r.total) {
			r.done = true
		}
		if len(page.Products) == 0 {
			return broker.ProductRow{}, false
		}
	}
	row := r.buf[r.pos]
	r.pos++
	return row, true
}

// Err reports the page failure that ended the sequence early, if any.
func (r *Results) Err() error {
	return r.err
}

// Collect drains up to max rows (0 for all).
func (r *Results) Collect(max int) []broker.ProductRow {
	var rows []broker.ProductRow
	for {
		if max > 0 && len(rows) >= max {
			return rows
		}
		row, ok := r.Next()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

// SearchStocks starts an exhaustive stock search for the query text.
func (s *Searcher) SearchStocks(ctx context.Context, text string, pageSize int) *Results {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Results{
		pageSize: pageSize,
		fetch: func(offset, limit int) (broker.SearchPage, error) {
			return s.client.SearchStocks(ctx, broker.StocksQuery{
				SearchText:   text,
				Offset:       offset,
				Limit:        limit,
				SortColumns:  "name",
				SortTypes:    "asc",
				RequireTotal: true,
			})
		},
	}
}

// LeveragedCriteria selects derivatives of one underlying.
type LeveragedCriteria struct {
	UnderlyingID   int64
	Direction      types.Direction
	MinLeverage    float64
	MaxLeverage    float64
	TargetLeverage float64
	Subtype        types.ProductSubtype
	Limit          int
}

// SearchLeveraged pages through the leveraged catalog for the underlying
// and applies the leverage/direction/tradability predicate after the
// fetch, over-requesting rows until either enough products match or
// pagination is exhausted. Matches come back ranked so the first element
// is the best pick for the target leverage.
func (s *Searcher) SearchLeveraged(ctx context.Context, c LeveragedCriteria) ([]model.LeveragedInstrument, error) {
	limit := c.Limit
	if limit <= 0 {
		limit = 50
	}
	target := c.TargetLeverage
	if target == 0 {
		target = (c.MinLeverage + c.MaxLeverage) / 2
	}

	results := &Results{
		pageSize: limit * overFetchFactor,
		fetch: func(offset, pageLimit int) (broker.SearchPage, error) {
			return s.client.SearchLeverageds(ctx, broker.LeveragedsQuery{
				Offset:              offset,
				Limit:               pageLimit,
				SortColumns:         "name",
				SortTypes:           "asc",
				RequireTotal:        true,
				UnderlyingProductID: c.UnderlyingID,
				ShortLong:           shortLongParam(c.Direction),
			})
		},
	}

	var matches []model.LeveragedInstrument
	for len(matches) < limit {
		row, ok := results.Next()
		if !ok {
			break
		}
		product, ok := leveragedFromRow(row)
		if !ok {
			continue
		}
		if !product.Tradable || product.Direction != c.Direction {
			continue
		}
		if product.Leverage < c.MinLeverage || product.Leverage > c.MaxLeverage {
			continue
		}
		if !MatchesSubtype(product.Name, c.Subtype) {
			continue
		}
		matches = append(matches, product)
	}
	if len(matches) == 0 && results.Err() != nil {
		return nil, results.Err()
	}
	RankByLeverage(matches, target)
	return matches, nil
}

func shortLongParam(d types.Direction) string {
	switch d {
	case types.DirectionLong:
		return "L"
	case types.DirectionShort:
		return "S"
	default:
		return ""
	}
}

// InstrumentFromRow converts a raw catalog row to an immutable snapshot.
func InstrumentFromRow(row broker.ProductRow) model.Instrument {
	feedID := row.QuoteFeedID
	if feedID == "" {
		feedID = row.QuoteFeedIDSecondary
	}
	return model.Instrument{
		ID:          row.ID.String(),
		ISIN:        row.ISIN,
		Symbol:      row.Symbol,
		Name:        row.Name,
		Currency:    row.Currency,
		ExchangeID:  row.ExchangeID.String(),
		Tradable:    row.Tradable,
		QuoteFeedID: feedID,
	}
}

func leveragedFromRow(row broker.ProductRow) (model.LeveragedInstrument, bool) {
	var direction types.Direction
	switch row.ShortLong {
	case "L":
		direction = types.DirectionLong
	case "S":
		direction = types.DirectionShort
	default:
		return model.LeveragedInstrument{}, false
	}
	return model.LeveragedInstrument{
		Instrument: InstrumentFromRow(row),
		Leverage:   row.Leverage,
		Direction:  direction,
		Expiry:     row.ExpirationDate,
		Issuer:     ExtractIssuer(row.Name),
		Subtype:    ClassifySubtype(row.Name),
	}, true
}
