package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPDirectPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	// No trusted proxies: forwarded headers are ignored.
	if got := ClientIP(r, nil); got != "203.0.113.7" {
		t.Fatalf("got %q, want direct peer", got)
	}
}

func TestClientIPWalksForwardedChain(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.9")

	if got := ClientIP(r, trusted); got != "198.51.100.1" {
		t.Fatalf("got %q, want first untrusted hop", got)
	}
}

func TestClientIPRealIPFallback(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.5"})
	if err != nil {
		t.Fatalf("NewTrustedProxies: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ClientIP(r, trusted); got != "198.51.100.2" {
		t.Fatalf("got %q, want X-Real-IP value", got)
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected parse error")
	}
	trusted, err := NewTrustedProxies([]string{"", "  "})
	if err != nil || trusted != nil {
		t.Fatalf("empty list should yield nil, got %v err %v", trusted, err)
	}
}
