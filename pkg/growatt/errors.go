package growatt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Every error returned by this package wraps exactly one of these, so callers
// can branch with errors.Is. The underlying cause, when there is one, is
// wrapped as well.
var (
	// ErrAuth means the credentials were rejected, either locally because
	// they were empty or by Growatt during an automatic login.
	ErrAuth = errors.New("authentication failed")
	// ErrRequest means the HTTP round trip failed: connection, TLS, timeout,
	// DNS or a non-2xx status.
	ErrRequest = errors.New("http request failed")
	// ErrJSON means the response body was not valid JSON.
	ErrJSON = errors.New("json deserialization error")
	// ErrInvalidResponse means the body was valid JSON but not in the shape
	// expected for the call.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrNotLoggedIn means no session could be established: either no
	// credentials were ever supplied or Growatt kept rejecting the session
	// after logging in again.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrInvalidArgument means a caller supplied argument was rejected before
	// anything was sent.
	ErrInvalidArgument = errors.New("invalid argument")
)

// errSessionExpired is internal to the dispatcher and never escapes it.
var errSessionExpired = errors.New("session expired")

func kindError(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func wrapError(kind error, what string, err error) error {
	return fmt.Errorf("%w: %s: %w", kind, what, err)
}

// decodeJSON unmarshals data into v and classifies failures: syntax errors
// are ErrJSON, everything else (type mismatches, bad values) is
// ErrInvalidResponse.
func decodeJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return wrapError(ErrJSON, "decode", err)
	}
	return wrapError(ErrInvalidResponse, "decode", err)
}
