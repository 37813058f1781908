package quotecast

import (
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
	"github.com/shopspring/decimal"
)

// Correlate reassembles decoded wire values into per-instrument quotes,
// keyed strictly by feed id. An instrument is emitted only when its feed
// delivered a real LastPrice; bid and ask are attached only when present.
// Instruments whose feed produced nothing are left out of the map — a
// missing key means "no real-time price available", never zero.
func Correlate(decoded map[string]map[string]Value, idsByFeed map[string]string) map[string]model.PriceQuote {
	quotes := make(map[string]model.PriceQuote)
	now := time.Now().UTC()
	for feedID, instrumentID := range idsByFeed {
		fields, ok := decoded[feedID]
		if !ok {
			continue
		}
		last := numberField(fields, FieldLastPrice)
		if last == nil {
			continue
		}
		quotes[instrumentID] = model.PriceQuote{
			InstrumentID: instrumentID,
			Last:         last,
			Bid:          numberField(fields, FieldBidPrice),
			Ask:          numberField(fields, FieldAskPrice),
			ObservedAt:   now,
		}
	}
	return quotes
}

// CorrelateVolumes is the volume counterpart of Correlate. An instrument
// is emitted when either volume field decoded.
func CorrelateVolumes(decoded map[string]map[string]Value, idsByFeed map[string]string) map[string]model.VolumeSnapshot {
	snapshots := make(map[string]model.VolumeSnapshot)
	now := time.Now().UTC()
	for feedID, instrumentID := range idsByFeed {
		fields, ok := decoded[feedID]
		if !ok {
			continue
		}
		lastVolume := numberField(fields, FieldLastVolume)
		cumulative := numberField(fields, FieldCumulativeVolume)
		if lastVolume == nil && cumulative == nil {
			continue
		}
		snapshots[instrumentID] = model.VolumeSnapshot{
			InstrumentID:     instrumentID,
			LastVolume:       lastVolume,
			CumulativeVolume: cumulative,
			ObservedAt:       now,
		}
	}
	return snapshots
}

func numberField(fields map[string]Value, name string) *decimal.Decimal {
	v, ok := fields[name]
	if !ok || v.Number == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v.Number)
	return &d
}
