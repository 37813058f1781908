package quotecast

import (
	"errors"
	"testing"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

func TestDecodeRegistrationThenValue(t *testing.T) {
	frame := []byte(`[
		{"m":"a_req","v":["X1.LastPrice",7]},
		{"m":"a_req","v":["X1.BidPrice",8]},
		{"m":"un","v":[7,101.25]}
	]`)
	decoded, err := Decode(frame, map[string]bool{"X1": true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fields, ok := decoded["X1"]
	if !ok {
		t.Fatal("feed X1 missing from result")
	}
	last, ok := fields[FieldLastPrice]
	if !ok || last.Number == nil || *last.Number != 101.25 {
		t.Fatalf("LastPrice = %+v, want 101.25", last)
	}
	// BidPrice was registered but never valued: absent, not zero
	if _, ok := fields[FieldBidPrice]; ok {
		t.Fatal("BidPrice present without a wire value")
	}
}

func TestDecodeValueBeforeRegistration(t *testing.T) {
	// field ids are frame-scoped, so a value may precede its a_req
	frame := []byte(`[
		{"m":"un","v":[7,99.5]},
		{"m":"a_req","v":["X1.LastPrice",7]}
	]`)
	decoded, err := Decode(frame, map[string]bool{"X1": true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	last := decoded["X1"][FieldLastPrice]
	if last.Number == nil || *last.Number != 99.5 {
		t.Fatalf("LastPrice = %+v, want 99.5", last)
	}
}

func TestDecodeIgnoresUnrequestedFeeds(t *testing.T) {
	frame := []byte(`[
		{"m":"a_req","v":["OTHER.LastPrice",3]},
		{"m":"un","v":[3,50]}
	]`)
	decoded, err := Decode(frame, map[string]bool{"X1": true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("decoded unrequested feed: %v", decoded)
	}
}

func TestDecodeTextValue(t *testing.T) {
	frame := []byte(`[
		{"m":"a_req","v":["X1.LastTime",4]},
		{"m":"us","v":[4,"17:35:02"]}
	]`)
	decoded, err := Decode(frame, map[string]bool{"X1": true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v := decoded["X1"][FieldLastTime]
	if v.Text == nil || *v.Text != "17:35:02" {
		t.Fatalf("LastTime = %+v, want 17:35:02", v)
	}
}

func TestDecodeSessionEnd(t *testing.T) {
	frame := []byte(`[{"m":"sr","v":[]}]`)
	_, err := Decode(frame, map[string]bool{"X1": true})
	if !errors.Is(err, broker.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
}

func TestDecodeHeartbeatOnly(t *testing.T) {
	frame := []byte(`[{"m":"h","v":[]}]`)
	decoded, err := Decode(frame, map[string]bool{"X1": true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("heartbeat frame produced values: %v", decoded)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte(`{"not":"an array"}`), nil); err == nil {
		t.Fatal("expected error on malformed frame")
	}
}

func TestSplitComposite(t *testing.T) {
	cases := []struct {
		composite string
		feedID    string
		field     string
		ok        bool
	}{
		{"360015751.LastPrice", "360015751", "LastPrice", true},
		{"AAPL.BATS,E.BidPrice", "AAPL.BATS,E", "BidPrice", true},
		{"noseparator", "", "", false},
		{".LastPrice", "", "", false},
		{"X1.", "", "", false},
	}
	for _, tc := range cases {
		feedID, field, ok := splitComposite(tc.composite)
		if feedID != tc.feedID || field != tc.field || ok != tc.ok {
			t.Fatalf("splitComposite(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.composite, feedID, field, ok, tc.feedID, tc.field, tc.ok)
		}
	}
}
