package util

import (
	"net/http"
	"net/url"
)

// NewProxyFunc returns a proxy function for the configured proxy URL.
// An empty or invalid value falls back to the environment.
func NewProxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return http.ProxyFromEnvironment
	}
	fixed, err := url.Parse(proxy)
	if err != nil {
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(fixed)
}
