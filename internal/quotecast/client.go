package quotecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

const (
	protocolVersion = "1.0.20201211"
	referrer        = "https://trading.degiro.nl"
)

// session is an immutable quote-session handle. Reconnects publish a whole
// new value through the client's atomic pointer.
type session struct {
	id string
}

// Client holds one streaming-quote session keyed by the account's user
// token and performs subscribe-then-fetch round trips against it. The
// session is created lazily and rebuilt at most once per logical request
// when the feed reports it gone.
type Client struct {
	http      *http.Client
	baseURL   string
	userToken string
	current   atomic.Pointer[session]
}

func NewClient(baseURL, userToken string) *Client {
	return &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userToken: userToken,
	}
}

// FetchQuotes subscribes the given feed-id to field-name requests and
// performs one synchronous fetch of the accumulated frame, returning the
// decoded values per feed. Feeds that registered nothing are absent from
// the result.
func (c *Client) FetchQuotes(ctx context.Context, requests map[string][]string) (map[string]map[string]Value, error) {
	if len(requests) == 0 {
		return map[string]map[string]Value{}, nil
	}
	if c.userToken == "" {
		return nil, fmt.Errorf("%w: no user token for quote session", broker.ErrSessionUnavailable)
	}

	feeds := make(map[string]bool, len(requests))
	for feedID := range requests {
		feeds[feedID] = true
	}

	var decoded map[string]map[string]Value
	err := broker.WithRetry(2, func(attempt int) error {
		var s session
		var err error
		if attempt == 0 {
			s, err = c.getSession(ctx)
		} else {
			s, err = c.replaceSession(ctx)
		}
		if err != nil {
			return err
		}
		if err := c.subscribe(ctx, s, requests); err != nil {
			return err
		}
		frame, err := c.fetch(ctx, s)
		if err != nil {
			return err
		}
		decoded, err = Decode(frame, feeds)
		return err
	}, broker.IsAuthExpired)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func (c *Client) getSession(ctx context.Context) (session, error) {
	if s := c.current.Load(); s != nil {
		return *s, nil
	}
	return c.replaceSession(ctx)
}

func (c *Client) replaceSession(ctx context.Context) (session, error) {
	endpoint := fmt.Sprintf("%s/request_session?version=%s&userToken=%s", c.baseURL, protocolVersion, c.userToken)
	body, err := json.Marshal(map[string]string{"referrer": referrer})
	if err != nil {
		return session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return session{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return session{}, fmt.Errorf("quote session request failed: status %d: %s", resp.StatusCode, string(raw))
	}
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return session{}, fmt.Errorf("quote session response: %w", err)
	}
	if payload.SessionID == "" {
		return session{}, fmt.Errorf("quote session response carried no session id")
	}
	s := session{id: payload.SessionID}
	c.current.Store(&s)
	return s, nil
}

// subscribe registers the requested feed fields on the session. The wire
// format is a semicolon-joined list of req(<feedId>.<FieldName>) entries.
func (c *Client) subscribe(ctx context.Context, s session, requests map[string][]string) error {
	var control strings.Builder
	for _, feedID := range sortedKeys(requests) {
		for _, field := range requests[feedID] {
			control.WriteString("req(")
			control.WriteString(feedID)
			control.WriteString(".")
			control.WriteString(field)
			control.WriteString(");")
		}
	}
	body, err := json.Marshal(map[string]string{"controlData": control.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+s.id, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return c.checkStatus(resp, "quote subscribe")
}

// fetch performs the single synchronous read of the accumulated frame.
func (c *Client) fetch(ctx context.Context, s session) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+s.id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(resp, "quote fetch"); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d", broker.ErrAuthExpired, op, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", broker.ErrRateLimited, op)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s failed: status %d", op, resp.StatusCode)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
