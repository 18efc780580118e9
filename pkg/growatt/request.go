package growatt

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// newRequest builds a request against baseURL/endpoint. query is encoded into
// the URL and, when non-nil, form is sent as a urlencoded body.
func newRequest(ctx context.Context, method, baseURL, endpoint string, query, form url.Values) (*http.Request, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", formContentType)
	}
	return req, nil
}

// is2xx reports whether code is a success status.
func is2xx(code int) bool {
	return code >= 200 && code < 300
}
