package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/catalog"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/quotecast"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/refdata"
)

// Watch-list scans fan out over a small pool. Each worker sleeps a
// random slice of scanJitter before its request so scan traffic never
// arrives as a burst.
const (
	scanWorkers   = 5
	scanChunkSize = 10
	scanJitter    = 1500 * time.Millisecond
)

var ErrNoQuoteData = errors.New("no quote data for instrument")

// QuoteFetcher is the slice of the quote feed the service needs.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, requests map[string][]string) (map[string]map[string]quotecast.Value, error)
}

type Service struct {
	resolver *catalog.UnderlyingResolver
	refdata  *refdata.Resolver
	quotes   QuoteFetcher
}

func NewService(resolver *catalog.UnderlyingResolver, refdataResolver *refdata.Resolver, quotes QuoteFetcher) *Service {
	return &Service{resolver: resolver, refdata: refdataResolver, quotes: quotes}
}

var priceFields = []string{
	quotecast.FieldLastPrice,
	quotecast.FieldBidPrice,
	quotecast.FieldAskPrice,
	quotecast.FieldLastTime,
	quotecast.FieldLastDate,
}

var volumeFields = []string{
	quotecast.FieldLastVolume,
	quotecast.FieldCumulativeVolume,
}

// CurrentPrice resolves a free-text query to one instrument and returns
// its live quote. ErrNoQuoteData means the feed had nothing for it.
func (s *Service) CurrentPrice(ctx context.Context, query string) (model.Instrument, model.PriceQuote, error) {
	instrument, err := s.lookup(ctx, query)
	if err != nil {
		return model.Instrument{}, model.PriceQuote{}, err
	}
	quotes, err := s.fetchPrices(ctx, []model.Instrument{instrument})
	if err != nil {
		return instrument, model.PriceQuote{}, err
	}
	quote, ok := quotes[instrument.ID]
	if !ok {
		return instrument, model.PriceQuote{}, fmt.Errorf("%s: %w", instrument.Symbol, ErrNoQuoteData)
	}
	return instrument, quote, nil
}

// OpeningVolume returns the volume fields observed for the instrument.
func (s *Service) OpeningVolume(ctx context.Context, query string) (model.Instrument, model.VolumeSnapshot, error) {
	instrument, err := s.lookup(ctx, query)
	if err != nil {
		return model.Instrument{}, model.VolumeSnapshot{}, err
	}
	idsByFeed, err := s.feedIDs(ctx, []model.Instrument{instrument})
	if err != nil {
		return instrument, model.VolumeSnapshot{}, err
	}
	requests := make(map[string][]string, len(idsByFeed))
	for feedID := range idsByFeed {
		requests[feedID] = volumeFields
	}
	decoded, err := s.quotes.FetchQuotes(ctx, requests)
	if err != nil {
		return instrument, model.VolumeSnapshot{}, err
	}
	snapshots := quotecast.CorrelateVolumes(decoded, idsByFeed)
	snap, ok := snapshots[instrument.ID]
	if !ok {
		return instrument, model.VolumeSnapshot{}, fmt.Errorf("%s: %w", instrument.Symbol, ErrNoQuoteData)
	}
	return instrument, snap, nil
}

// ScanQuotes fetches live quotes for a batch of instruments. The batch is
// split into chunks worked by a fixed pool; a failed chunk is logged and
// dropped so one bad feed id cannot sink the whole scan. Instruments with
// no decoded price are absent from the result.
func (s *Service) ScanQuotes(ctx context.Context, instruments []model.Instrument) map[string]model.PriceQuote {
	chunks := chunkInstruments(instruments, scanChunkSize)
	if len(chunks) == 0 {
		return map[string]model.PriceQuote{}
	}

	var mu sync.Mutex
	merged := make(map[string]model.PriceQuote)

	jobs := make(chan []model.Instrument)
	var wg sync.WaitGroup
	workers := scanWorkers
	if len(chunks) < workers {
		workers = len(chunks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(rand.Int63n(int64(scanJitter)))):
				}
				quotes, err := s.fetchPrices(ctx, chunk)
				if err != nil {
					log.Printf("marketdata: scan chunk of %d failed: %v", len(chunk), err)
					continue
				}
				mu.Lock()
				for id, q := range quotes {
					merged[id] = q
				}
				mu.Unlock()
			}
		}()
	}
	// Canceled workers stop reading, so the producer must not block on a
	// send nobody will receive.
feed:
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- chunk:
		}
	}
	close(jobs)
	wg.Wait()
	return merged
}

func (s *Service) lookup(ctx context.Context, query string) (model.Instrument, error) {
	instrument, err := s.resolver.Resolve(ctx, query)
	if err != nil {
		return model.Instrument{}, err
	}
	if instrument == nil {
		return model.Instrument{}, fmt.Errorf("no instrument matches %q", query)
	}
	return *instrument, nil
}

func (s *Service) fetchPrices(ctx context.Context, instruments []model.Instrument) (map[string]model.PriceQuote, error) {
	idsByFeed, err := s.feedIDs(ctx, instruments)
	if err != nil {
		return nil, err
	}
	requests := make(map[string][]string, len(idsByFeed))
	for feedID := range idsByFeed {
		requests[feedID] = priceFields
	}
	decoded, err := s.quotes.FetchQuotes(ctx, requests)
	if err != nil {
		return nil, err
	}
	return quotecast.Correlate(decoded, idsByFeed), nil
}

// feedIDs maps feed id to instrument id, resolving through the metadata
// endpoint for instruments whose search row had no feed id.
func (s *Service) feedIDs(ctx context.Context, instruments []model.Instrument) (map[string]string, error) {
	idsByFeed := make(map[string]string, len(instruments))
	var missing []string
	for _, inst := range instruments {
		if inst.HasQuoteFeed() {
			idsByFeed[inst.QuoteFeedID] = inst.ID
			continue
		}
		missing = append(missing, inst.ID)
	}
	if len(missing) > 0 {
		for productID, feedID := range s.refdata.Resolve(ctx, missing) {
			idsByFeed[feedID] = productID
		}
	}
	if len(idsByFeed) == 0 {
		return nil, broker.ErrNoQuoteFeed
	}
	return idsByFeed, nil
}

func chunkInstruments(instruments []model.Instrument, size int) [][]model.Instrument {
	var chunks [][]model.Instrument
	for start := 0; start < len(instruments); start += size {
		end := start + size
		if end > len(instruments) {
			end = len(instruments)
		}
		chunks = append(chunks, instruments[start:end])
	}
	return chunks
}
