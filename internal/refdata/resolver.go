package refdata

import (
	"context"
	"log"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

// BatchLimit is the broker's cap on ids per metadata lookup. Larger inputs
// are chunked transparently.
const BatchLimit = 50

// MetadataClient is the slice of the broker client the resolver needs.
type MetadataClient interface {
	ProductsInfo(ctx context.Context, ids []string) (map[string]broker.ProductRow, error)
}

// Resolver maps catalog instrument ids to the quote-feed ids the streaming
// protocol addresses instruments by.
type Resolver struct {
	client MetadataClient
}

func NewResolver(client MetadataClient) *Resolver {
	return &Resolver{client: client}
}

// Resolve batch-resolves feed ids for the given instrument ids. Instruments
// without a feed id genuinely have no live-quote support and are silently
// excluded. A failed metadata chunk degrades to an empty contribution so
// the pipeline can keep pricing whatever subset resolved.
func (r *Resolver) Resolve(ctx context.Context, ids []string) map[string]string {
	resolved := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += BatchLimit {
		end := start + BatchLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		info, err := r.client.ProductsInfo(ctx, chunk)
		if err != nil {
			log.Printf("refdata: metadata lookup failed for %d ids: %v", len(chunk), err)
			continue
		}
		for _, id := range chunk {
			row, ok := info[id]
			if !ok {
				continue
			}
			if feedID := feedIDFor(row); feedID != "" {
				resolved[id] = feedID
			}
		}
	}
	return resolved
}

func feedIDFor(row broker.ProductRow) string {
	if row.QuoteFeedID != "" {
		return row.QuoteFeedID
	}
	return row.QuoteFeedIDSecondary
}
