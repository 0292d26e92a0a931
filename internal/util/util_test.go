package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip     string
		public bool
	}{
		{"8.8.8.8", true},
		{"93.184.216.34", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"192.168.1.1", false},
		{"172.16.0.5", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"2001:4860:4860::8888", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := IsPublicIP(net.ParseIP(tt.ip)); got != tt.public {
				t.Errorf("IsPublicIP(%s) = %v, want %v", tt.ip, got, tt.public)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url       string
		allowPriv bool
		wantErr   bool
		blocked   bool
	}{
		{"https://example.com/a", false, false, false},
		{"ftp://example.com/a", false, true, false},
		{"http://127.0.0.1:8080/", false, true, true},
		{"http://localhost/", false, true, true},
		{"http://169.254.169.254/latest/meta-data", false, true, true},
		{"http://127.0.0.1:8080/", true, false, false},
		{"https:///nohost", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := ValidateURL(tt.url, tt.allowPriv)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if tt.blocked && !errors.Is(err, ErrBlockedAddress) {
				t.Errorf("expected ErrBlockedAddress, got %v", err)
			}
		})
	}
}

func TestHTTPClientBlocksLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "secret")
	}))
	defer server.Close()

	client := NewHTTPClient(ClientOptions{Timeout: 2 * time.Second, MaxRedirects: 5})
	_, err := client.Get(server.URL)
	if err == nil {
		t.Fatal("expected loopback dial to be blocked")
	}
	if !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("expected ErrBlockedAddress, got %v", err)
	}

	allowed := NewHTTPClient(ClientOptions{Timeout: 2 * time.Second, MaxRedirects: 5, AllowPrivate: true})
	resp, err := allowed.Get(server.URL)
	if err != nil {
		t.Fatalf("expected success with AllowPrivate, got %v", err)
	}
	_ = resp.Body.Close()
}

func TestHTTPClientRedirectCap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	client := NewHTTPClient(ClientOptions{Timeout: 2 * time.Second, MaxRedirects: 2, AllowPrivate: true})
	_, err := client.Get(server.URL + "/")
	if err == nil {
		t.Fatal("expected redirect cap error")
	}
}

func TestRobotsChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: factlens\nDisallow: /private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "factlens/0.1 (+https://example.com)")

	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/public/page")
	if err != nil || !allowed {
		t.Errorf("expected public path allowed, got allowed=%v err=%v", allowed, err)
	}
	if delay != 2*time.Second {
		t.Errorf("expected crawl delay 2s, got %v", delay)
	}

	allowed, _, _ = checker.CanFetch(context.Background(), server.URL+"/private/doc")
	if allowed {
		t.Error("expected private path disallowed")
	}
}

func TestRobotsCheckerMissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "factlens")
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/anything")
	if err != nil || !allowed {
		t.Errorf("expected allow when robots.txt missing, got allowed=%v err=%v", allowed, err)
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	if got := NormalizeUserAgent("factlens/0.1 (+https://x)"); got != "factlens" {
		t.Errorf("got %q", got)
	}
}
