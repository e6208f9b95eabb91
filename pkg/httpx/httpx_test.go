package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoDecodesJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "is:unread" {
			t.Errorf("query q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	c := New(Options{Timeout: 2 * time.Second})
	var out struct {
		Count int `json:"count"`
	}
	err := c.Get(context.Background(), srv.URL, "tok", map[string]string{"q": "is:unread"}, &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Count != 3 {
		t.Fatalf("count = %d, want 3", out.Count)
	}
}

func TestDoPostSendsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(Options{})
	err := c.Post(context.Background(), srv.URL, "", map[string]string{"title": "hi"}, nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestDoStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Options{})
	err := c.Get(context.Background(), srv.URL, "", nil, nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Status != http.StatusForbidden {
		t.Fatalf("status = %d", se.Status)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &StatusError{Status: 429}, true},
		{"server error", &StatusError{Status: 502}, true},
		{"forbidden", &StatusError{Status: 403}, false},
		{"bad request", &StatusError{Status: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestLimiterSmoothsBursts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// Burst 1 at 20 rps: the 3rd call must wait roughly 100ms.
	c := New(Options{RPS: 20, Burst: 1})
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := c.Get(context.Background(), srv.URL, "", nil, nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("3 calls finished in %v, limiter not applied", elapsed)
	}
}
