package util

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a fetch targets a private, loopback,
// link-local or otherwise non-public address
var ErrBlockedAddress = errors.New("blocked non-public address")

// IsPublicIP reports whether ip is routable on the public internet
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		isCGNAT(ip))
}

func isCGNAT(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] == 100 && v4[1]&0xC0 == 64
}

// ValidateURL checks that a URL is an absolute http(s) URL and, unless
// allowPrivate is set, that a literal IP host is public
func ValidateURL(rawURL string, allowPrivate bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host in %q", rawURL)
	}
	if allowPrivate {
		return u, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if ip := net.ParseIP(host); ip != nil && !IsPublicIP(ip) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return u, nil
}

// guardControl rejects connections to non-public addresses after DNS
// resolution, which also covers redirects and rebinding
func guardControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !IsPublicIP(net.ParseIP(host)) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// ClientOptions configures NewHTTPClient
type ClientOptions struct {
	Timeout      time.Duration
	MaxRedirects int
	AllowPrivate bool
	Proxy        string
}

// NewHTTPClient builds an HTTP client with a redirect cap and, unless
// AllowPrivate is set, a dialer that refuses non-public addresses
func NewHTTPClient(opts ClientOptions) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !opts.AllowPrivate {
		dialer.Control = guardControl
	}

	transport := &http.Transport{
		Proxy:                 NewProxyFunc(opts.Proxy),
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	maxRedirects := opts.MaxRedirects
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if _, err := ValidateURL(req.URL.String(), opts.AllowPrivate); err != nil {
				return err
			}
			return nil
		},
	}
}
