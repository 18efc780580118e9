package growatt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/raterudder/growatt/pkg/log"
)

// call describes one authenticated request.
type call struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	header http.Header
	// field is the path of object keys leading to the part of the response
	// handed back. Empty means the whole body.
	field []string
}

// Request sends an authenticated request to path and returns the raw body.
// params are sent as the query string for GET and as a urlencoded form
// otherwise. It is the escape hatch for endpoints without a typed method and
// follows the same session rules as those.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	cl := call{method: method, path: path}
	if method == http.MethodGet || method == http.MethodHead {
		cl.query = params
	} else {
		if params == nil {
			params = url.Values{}
		}
		cl.form = params
	}
	return c.dispatch(ctx, cl)
}

// dispatch makes sure there is a session, sends the call and returns the
// selected payload. When the answer looks like Growatt forgot the session the
// session is dropped and the call is retried exactly once after a fresh login.
func (c *Client) dispatch(ctx context.Context, cl call) (json.RawMessage, error) {
	ctx = log.WithAttrs(ctx, slog.String("path", cl.path))
	if err := c.session.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}

	// we try up to 2 times because the session might have expired on
	// Growatt's side before ours
	for i := 0; i < 2; i++ {
		body, err := c.send(ctx, cl)
		if err != nil {
			return nil, err
		}

		payload, err := selectPayload(body, cl.field)
		if err != errSessionExpired {
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "unexpected growatt response", slog.Any("error", err), slog.String("body", string(body)))
			}
			return payload, err
		}

		if i == 0 {
			log.Ctx(ctx).DebugContext(ctx, "growatt session rejected, logging in again")
			if err := c.session.forceLogin(ctx); err != nil {
				return nil, err
			}
		}
	}

	log.Ctx(ctx).WarnContext(ctx, "growatt session rejected after logging in again")
	c.session.invalidate()
	return nil, kindError(ErrNotLoggedIn, "session rejected after logging in again")
}

func (c *Client) send(ctx context.Context, cl call) ([]byte, error) {
	req, err := newRequest(ctx, cl.method, c.session.BaseURL(), cl.path, cl.query, cl.form)
	if err != nil {
		return nil, wrapError(ErrRequest, cl.path, err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.session.client.Do(req)
	if err != nil {
		return nil, wrapError(ErrRequest, cl.path, err)
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return nil, kindError(ErrRequest, "%s: status %d", cl.path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(ErrRequest, cl.path, err)
	}
	return body, nil
}

// selectPayload returns the part of body at field, or errSessionExpired when
// the body or that part is what Growatt sends instead of data once a session
// is gone: nothing, an HTML page, null or an empty object or array.
func selectPayload(body []byte, field []string) (json.RawMessage, error) {
	if sessionMarker(body) {
		return nil, errSessionExpired
	}
	if !json.Valid(body) {
		var v any
		return nil, decodeJSON(body, &v)
	}

	raw := json.RawMessage(body)
	for _, key := range field {
		var obj map[string]json.RawMessage
		if err := decodeJSON(raw, &obj); err != nil {
			return nil, err
		}
		next, ok := obj[key]
		if !ok {
			return nil, kindError(ErrInvalidResponse, "response missing %q", key)
		}
		if sessionMarker(next) {
			return nil, errSessionExpired
		}
		raw = next
	}
	return raw, nil
}

func sessionMarker(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '<' {
		return true
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, b); err != nil {
		return false
	}
	switch compact.String() {
	case "null", "{}", "[]":
		return true
	}
	return false
}

// fetch dispatches cl and decodes the selected payload into T.
func fetch[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var out T
	raw, err := c.dispatch(ctx, cl)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
