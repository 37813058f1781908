package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/auth"
)

func TestWithAuthPassesThroughWhenDisabled(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := Subject(r); ok {
			t.Fatal("open mode must not attach a subject")
		}
	})
	handler := WithAuth(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/watchlist", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("request did not reach the handler")
	}
}

func TestWithAuthAttachesSubject(t *testing.T) {
	svc := auth.NewService("test-issuer", []byte("test-secret"), time.Hour, "", "k-1")
	token, err := svc.IssueToken("k-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Subject(r)
	})
	handler := WithAuth(svc)(AccessLog(next))

	req := httptest.NewRequest(http.MethodGet, "/api/watchlist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "connector" {
		t.Fatalf("subject = %q, want connector", got)
	}
}

func TestWithAuthAcceptsRawKey(t *testing.T) {
	svc := auth.NewService("test-issuer", []byte("test-secret"), time.Hour, "", "k-1")

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Subject(r)
	})
	handler := WithAuth(svc)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/watchlist", nil)
	req.Header.Set("Authorization", "Bearer k-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "api-key" {
		t.Fatalf("subject = %q, want api-key", got)
	}
}

func TestWithAuthRejectsBadCredential(t *testing.T) {
	svc := auth.NewService("test-issuer", []byte("test-secret"), time.Hour, "", "k-1")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("rejected request must not reach the handler")
	})
	handler := WithAuth(svc)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/watchlist", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
