package quotecast

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

// Quote field names understood by the feed.
const (
	FieldLastPrice        = "LastPrice"
	FieldBidPrice         = "BidPrice"
	FieldAskPrice         = "AskPrice"
	FieldLastVolume       = "LastVolume"
	FieldCumulativeVolume = "CumulativeVolume"
	FieldLastTime         = "LastTime"
	FieldLastDate         = "LastDate"
)

// Wire message kinds. a_req binds a composite field name to a numeric
// field id valid only within the same response; un and us carry a numeric
// or string value keyed by that id.
const (
	msgRegister   = "a_req"
	msgUnregister = "a_rel"
	msgNumber     = "un"
	msgText       = "us"
	msgHeartbeat  = "h"
	msgSessionEnd = "sr"
)

// Value is one decoded wire value: numeric or textual, never both.
type Value struct {
	Number *float64
	Text   *string
}

type rawMessage struct {
	Kind   string            `json:"m"`
	Values []json.RawMessage `json:"v"`
}

type fieldRef struct {
	feedID string
	field  string
}

// Decode runs the two-pass decoding of a quote frame for the feeds of
// interest. Field ids are scoped to this one frame, and value records may
// precede their registration, so the whole frame is buffered: pass one
// indexes every a_req, pass two resolves un/us records through that index.
// A feed appears in the result only if at least one of its fields was
// registered; a registered field whose value never arrived is simply
// absent from the inner map.
func Decode(frame []byte, feeds map[string]bool) (map[string]map[string]Value, error) {
	var messages []rawMessage
	if err := json.Unmarshal(frame, &messages); err != nil {
		return nil, fmt.Errorf("malformed quote frame: %w", err)
	}

	refs := make(map[int64]fieldRef)
	decoded := make(map[string]map[string]Value)
	for _, msg := range messages {
		switch msg.Kind {
		case msgSessionEnd:
			return nil, fmt.Errorf("%w: quote feed requested a new session", broker.ErrAuthExpired)
		case msgRegister:
			if len(msg.Values) < 2 {
				continue
			}
			var composite string
			var fieldID int64
			if err := json.Unmarshal(msg.Values[0], &composite); err != nil {
				continue
			}
			if err := json.Unmarshal(msg.Values[1], &fieldID); err != nil {
				continue
			}
			feedID, field, ok := splitComposite(composite)
			if !ok || !feeds[feedID] {
				continue
			}
			refs[fieldID] = fieldRef{feedID: feedID, field: field}
			if decoded[feedID] == nil {
				decoded[feedID] = make(map[string]Value)
			}
		}
	}

	for _, msg := range messages {
		if msg.Kind != msgNumber && msg.Kind != msgText {
			continue
		}
		if len(msg.Values) < 2 {
			continue
		}
		var fieldID int64
		if err := json.Unmarshal(msg.Values[0], &fieldID); err != nil {
			continue
		}
		ref, ok := refs[fieldID]
		if !ok {
			continue
		}
		var value Value
		if msg.Kind == msgNumber {
			var n float64
			if err := json.Unmarshal(msg.Values[1], &n); err != nil {
				continue
			}
			value.Number = &n
		} else {
			var s string
			if err := json.Unmarshal(msg.Values[1], &s); err != nil {
				continue
			}
			value.Text = &s
		}
		decoded[ref.feedID][ref.field] = value
	}
	return decoded, nil
}

// splitComposite separates "<feedId>.<FieldName>" on the last dot, since
// feed ids themselves may contain dots.
func splitComposite(composite string) (feedID, field string, ok bool) {
	idx := strings.LastIndex(composite, ".")
	if idx <= 0 || idx == len(composite)-1 {
		return "", "", false
	}
	return composite[:idx], composite[idx+1:], true
}
