package model

import (
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
	"github.com/shopspring/decimal"
)

// Instrument is an immutable snapshot of a catalog search row.
type Instrument struct {
	ID          string `json:"product_id"`
	ISIN        string `json:"isin"`
	Symbol      string `json:"symbol,omitempty"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	ExchangeID  string `json:"exchange_id"`
	Tradable    bool   `json:"tradable"`
	QuoteFeedID string `json:"quote_feed_id,omitempty"`
}

// HasQuoteFeed reports whether the instrument supports live quotes.
func (i Instrument) HasQuoteFeed() bool {
	return i.QuoteFeedID != ""
}

// LeveragedInstrument is a derivative tracking an underlying with a
// multiplier and a direction. Subtype is inferred from the product name
// and may be SubtypeUnknown.
type LeveragedInstrument struct {
	Instrument
	Leverage  float64              `json:"leverage"`
	Direction types.Direction      `json:"direction"`
	Expiry    string               `json:"expiration_date,omitempty"`
	Issuer    string               `json:"issuer"`
	Subtype   types.ProductSubtype `json:"subtype"`
}

// PriceQuote carries the real-time values decoded for one instrument.
// A field is set only when a real wire value decoded successfully;
// absent fields stay nil and are never derived from other fields.
type PriceQuote struct {
	InstrumentID string           `json:"product_id"`
	Bid          *decimal.Decimal `json:"bid,omitempty"`
	Ask          *decimal.Decimal `json:"ask,omitempty"`
	Last         *decimal.Decimal `json:"last,omitempty"`
	ObservedAt   time.Time        `json:"observed_at"`
}

// VolumeSnapshot carries the volume fields decoded for one instrument.
type VolumeSnapshot struct {
	InstrumentID     string           `json:"product_id"`
	LastVolume       *decimal.Decimal `json:"last_volume,omitempty"`
	CumulativeVolume *decimal.Decimal `json:"cumulative_volume,omitempty"`
	ObservedAt       time.Time        `json:"observed_at"`
}
