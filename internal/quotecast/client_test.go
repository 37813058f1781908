package quotecast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
)

// quoteFeedServer simulates the quote feed: request_session hands out
// numbered session ids, subscribes are acknowledged, fetches replay the
// configured frames in order (the last frame repeats).
type quoteFeedServer struct {
	mu       sync.Mutex
	sessions int
	fetches  int
	frames   []string
}

func (s *quoteFeedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/request_session"):
		s.sessions++
		fmt.Fprintf(w, `{"sessionId":"qs-%d"}`, s.sessions)
	case r.Method == http.MethodPost:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		idx := s.fetches
		if idx >= len(s.frames) {
			idx = len(s.frames) - 1
		}
		s.fetches++
		fmt.Fprint(w, s.frames[idx])
	}
}

func (s *quoteFeedServer) counts() (sessions, fetches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, s.fetches
}

const goodFrame = `[{"m":"a_req","v":["AAPL.BATS,E.LastPrice",7]},{"m":"un","v":[7,187.5]}]`
const sessionEndFrame = `[{"m":"sr","v":[]}]`

func TestFetchQuotesRebuildsSessionOnce(t *testing.T) {
	feed := &quoteFeedServer{frames: []string{sessionEndFrame, goodFrame}}
	srv := httptest.NewServer(feed)
	defer srv.Close()

	client := NewClient(srv.URL, "user-token-1")
	decoded, err := client.FetchQuotes(context.Background(), map[string][]string{
		"AAPL.BATS,E": {FieldLastPrice},
	})
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	v, ok := decoded["AAPL.BATS,E"][FieldLastPrice]
	if !ok || v.Number == nil || *v.Number != 187.5 {
		t.Fatalf("decoded = %v, want LastPrice 187.5", decoded)
	}
	sessions, fetches := feed.counts()
	if sessions != 2 {
		t.Fatalf("built %d sessions, want 2 (original plus one rebuild)", sessions)
	}
	if fetches != 2 {
		t.Fatalf("made %d fetches, want 2", fetches)
	}
}

func TestFetchQuotesReconnectBound(t *testing.T) {
	feed := &quoteFeedServer{frames: []string{sessionEndFrame}}
	srv := httptest.NewServer(feed)
	defer srv.Close()

	client := NewClient(srv.URL, "user-token-1")
	_, err := client.FetchQuotes(context.Background(), map[string][]string{
		"AAPL.BATS,E": {FieldLastPrice},
	})
	if !errors.Is(err, broker.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	sessions, fetches := feed.counts()
	if sessions != 2 || fetches != 2 {
		t.Fatalf("sessions=%d fetches=%d, want exactly 2 each", sessions, fetches)
	}
}

func TestFetchQuotesReusesLiveSession(t *testing.T) {
	feed := &quoteFeedServer{frames: []string{goodFrame}}
	srv := httptest.NewServer(feed)
	defer srv.Close()

	client := NewClient(srv.URL, "user-token-1")
	requests := map[string][]string{"AAPL.BATS,E": {FieldLastPrice}}
	for i := 0; i < 2; i++ {
		if _, err := client.FetchQuotes(context.Background(), requests); err != nil {
			t.Fatalf("FetchQuotes #%d: %v", i+1, err)
		}
	}
	sessions, _ := feed.counts()
	if sessions != 1 {
		t.Fatalf("built %d sessions across two calls, want the one shared session", sessions)
	}
}

func TestFetchQuotesRequiresUserToken(t *testing.T) {
	client := NewClient("http://unused", "")
	_, err := client.FetchQuotes(context.Background(), map[string][]string{"X1": {FieldLastPrice}})
	if !errors.Is(err, broker.ErrSessionUnavailable) {
		t.Fatalf("err = %v, want ErrSessionUnavailable", err)
	}
}
