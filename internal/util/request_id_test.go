package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDEchoesIncoming(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-Id", "req-abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "req-abc" {
		t.Fatalf("context id = %q, want incoming id", seen)
	}
	if got := w.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Fatalf("response header = %q", got)
	}
}

func TestWithRequestIDMintsWhenMissingOrOversized(t *testing.T) {
	for name, incoming := range map[string]string{
		"missing":   "",
		"oversized": strings.Repeat("x", 200),
	} {
		t.Run(name, func(t *testing.T) {
			var seen string
			h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromRequest(r)
			}))
			r := httptest.NewRequest("GET", "/", nil)
			if incoming != "" {
				r.Header.Set("X-Request-Id", incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if seen == "" || seen == incoming {
				t.Fatalf("expected a freshly minted id, got %q", seen)
			}
			if w.Header().Get("X-Request-Id") != seen {
				t.Fatalf("header and context ids differ")
			}
		})
	}
}
