package catalog

import (
	"context"
	"testing"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

func newResolver(rows []broker.ProductRow) *UnderlyingResolver {
	return NewUnderlyingResolver(NewSearcher(&fakeSearchClient{stocks: rows}))
}

func TestResolvePrefersExactISIN(t *testing.T) {
	rows := []broker.ProductRow{
		stockRow(1, "Cisco Systems Inc", "CSCO", "US17275R1023"),
		stockRow(2, "Cisco Tracker", "CIS", "NL0000000001"),
	}
	got, err := newResolver(rows).Resolve(context.Background(), "NL0000000001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "2" {
		t.Fatalf("got %v, want product 2 by ISIN", got)
	}
}

func TestResolveExactSymbolBeatsNameMatch(t *testing.T) {
	rows := []broker.ProductRow{
		stockRow(1, "Tracker on CSCO basket", "XBC", ""),
		stockRow(2, "Some Holding", "CSCO", ""),
	}
	got, err := newResolver(rows).Resolve(context.Background(), "csco")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "2" {
		t.Fatalf("got %v, want product 2 by symbol", got)
	}
}

func TestResolveNameSubstring(t *testing.T) {
	rows := []broker.ProductRow{
		stockRow(1, "Unrelated Corp", "UNR", ""),
		stockRow(2, "Cisco Systems Inc", "XYZ", ""),
	}
	got, err := newResolver(rows).Resolve(context.Background(), "cisco")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "2" {
		t.Fatalf("got %v, want product 2 by name substring", got)
	}
}

func TestResolveFallsBackToFirstResult(t *testing.T) {
	rows := []broker.ProductRow{
		stockRow(7, "Alpha Corp", "ALP", ""),
		stockRow(8, "Beta Corp", "BET", ""),
	}
	got, err := newResolver(rows).Resolve(context.Background(), "gamma")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != "7" {
		t.Fatalf("got %v, want the first result", got)
	}
}

func TestResolveNoCandidates(t *testing.T) {
	got, err := newResolver(nil).Resolve(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil for an empty catalog", got)
	}
}
