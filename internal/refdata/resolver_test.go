package refdata

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

type fakeMetadata struct {
	rows      map[string]broker.ProductRow
	calls     [][]string
	failCalls map[int]bool
}

func (f *fakeMetadata) ProductsInfo(_ context.Context, ids []string) (map[string]broker.ProductRow, error) {
	call := len(f.calls)
	f.calls = append(f.calls, ids)
	if f.failCalls[call] {
		return nil, errors.New("metadata endpoint down")
	}
	out := make(map[string]broker.ProductRow)
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

func TestResolvePrefersPrimaryFeedID(t *testing.T) {
	client := &fakeMetadata{rows: map[string]broker.ProductRow{
		"1": {QuoteFeedID: "F1", QuoteFeedIDSecondary: "S1"},
		"2": {QuoteFeedIDSecondary: "S2"},
		"3": {}, // no feed at all
	}}
	got := NewResolver(client).Resolve(context.Background(), []string{"1", "2", "3"})
	if got["1"] != "F1" {
		t.Fatalf("id 1 resolved to %q, want primary F1", got["1"])
	}
	if got["2"] != "S2" {
		t.Fatalf("id 2 resolved to %q, want secondary S2", got["2"])
	}
	if _, ok := got["3"]; ok {
		t.Fatal("id without any feed must be excluded")
	}
}

func TestResolveChunksAtBatchLimit(t *testing.T) {
	rows := make(map[string]broker.ProductRow, BatchLimit+10)
	ids := make([]string, 0, BatchLimit+10)
	for i := 0; i < BatchLimit+10; i++ {
		id := fmt.Sprintf("%d", i)
		ids = append(ids, id)
		rows[id] = broker.ProductRow{QuoteFeedID: "F" + id}
	}
	client := &fakeMetadata{rows: rows}
	got := NewResolver(client).Resolve(context.Background(), ids)
	if len(client.calls) != 2 {
		t.Fatalf("made %d metadata calls, want 2", len(client.calls))
	}
	if len(client.calls[0]) != BatchLimit {
		t.Fatalf("first chunk has %d ids, want %d", len(client.calls[0]), BatchLimit)
	}
	if len(got) != BatchLimit+10 {
		t.Fatalf("resolved %d ids, want %d", len(got), BatchLimit+10)
	}
}

func TestResolveDegradesOnChunkFailure(t *testing.T) {
	rows := make(map[string]broker.ProductRow)
	ids := make([]string, 0, BatchLimit*2)
	for i := 0; i < BatchLimit*2; i++ {
		id := fmt.Sprintf("%d", i)
		ids = append(ids, id)
		rows[id] = broker.ProductRow{QuoteFeedID: "F" + id}
	}
	client := &fakeMetadata{rows: rows, failCalls: map[int]bool{0: true}}
	got := NewResolver(client).Resolve(context.Background(), ids)
	if len(got) != BatchLimit {
		t.Fatalf("resolved %d ids, want the %d from the surviving chunk", len(got), BatchLimit)
	}
}

func TestResolveFailedLookupReturnsEmpty(t *testing.T) {
	client := &fakeMetadata{failCalls: map[int]bool{0: true}}
	got := NewResolver(client).Resolve(context.Background(), []string{"1", "2"})
	if len(got) != 0 {
		t.Fatalf("resolved %v from a failed lookup", got)
	}
}
