package broker

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		text string
		want ErrorKind
	}{
		{"status 401: not allowed", KindAuthExpired},
		{"Unauthorized", KindAuthExpired},
		{"please login again", KindAuthExpired},
		{"invalid credentials", KindAuthExpired},
		{"your session has expired", KindAuthExpired},
		{"429 Too Many Requests", KindRateLimited},
		{"rate limit exceeded", KindRateLimited},
		{"connection reset by peer", KindUnknown},
		{"", KindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.text); got != tc.want {
			t.Fatalf("ClassifyError(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestIsAuthExpired(t *testing.T) {
	if !IsAuthExpired(ErrAuthExpired) {
		t.Fatal("sentinel must classify as expired")
	}
	if !IsAuthExpired(fmt.Errorf("wrapped: %w", ErrAuthExpired)) {
		t.Fatal("wrapped sentinel must classify as expired")
	}
	if !IsAuthExpired(errors.New("got 401 from upstream")) {
		t.Fatal("text with an auth marker must classify as expired")
	}
	if IsAuthExpired(errors.New("timeout")) {
		t.Fatal("plain timeout must not classify as expired")
	}
	if IsAuthExpired(nil) {
		t.Fatal("nil is not an error")
	}
}

func TestWithRetryBoundedAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(2, func(attempt int) error {
		calls++
		if attempt != calls-1 {
			t.Fatalf("attempt = %d on call %d", attempt, calls)
		}
		return ErrAuthExpired
	}, IsAuthExpired)
	if calls != 2 {
		t.Fatalf("op ran %d times, want exactly 2", calls)
	}
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want wrapped ErrAuthExpired", err)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := WithRetry(2, func(int) error {
		calls++
		return permanent
	}, IsAuthExpired)
	if calls != 1 {
		t.Fatalf("op ran %d times, want 1", calls)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
}

func TestWithRetrySucceedsSecondAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(2, func(attempt int) error {
		calls++
		if attempt == 0 {
			return ErrAuthExpired
		}
		return nil
	}, IsAuthExpired)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 2 {
		t.Fatalf("op ran %d times, want 2", calls)
	}
}

func TestValidationErrorText(t *testing.T) {
	e := &ValidationError{Reasons: []string{"insufficient funds", "market closed"}}
	want := "order validation rejected: insufficient funds; market closed"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
	if (&ValidationError{}).Error() != "order validation rejected" {
		t.Fatalf("empty reason list renders %q", (&ValidationError{}).Error())
	}
}
