package common

import (
	_ "embed"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

//go:embed VERSION
var version string

// Version is the release of this module.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent is sent on every outgoing request made through HTTPClient.
func UserAgent() string {
	return "growatt-go/" + Version()
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper. A User-Agent already set on the
// request is left untouched.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.transport.RoundTrip(req)
}

// NewCookieJar returns an empty jar that scopes cookies by public suffix.
func NewCookieJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil PublicSuffixList
		panic(err)
	}
	return jar
}

// HTTPClient returns a default http client with a default user-agent set. If
// jar is nil the client does not store cookies.
func HTTPClient(timeout time.Duration, jar http.CookieJar) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Jar:     jar,
		Timeout: timeout,
	}
}
