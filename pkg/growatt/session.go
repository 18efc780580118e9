package growatt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raterudder/growatt/pkg/common"
	"github.com/raterudder/growatt/pkg/log"
)

const (
	loginPath  = "login"
	logoutPath = "logout"

	sessionCookieName = "JSESSIONID"
)

// Session is a snapshot of the authentication state.
type Session struct {
	LoggedIn bool
	// Token is the identifier returned by the login handshake, or the
	// session cookie when the handshake body did not carry one.
	Token         string
	BaseURL       string
	Duration      time.Duration
	EstablishedAt time.Time
}

// Expired reports whether the session is not logged in or is older than its
// duration at now.
func (s Session) Expired(now time.Time) bool {
	return !s.LoggedIn || now.Sub(s.EstablishedAt) >= s.Duration
}

// SessionManager owns the credentials, the cookie jar and the login state for
// a single Growatt account. It is safe for concurrent use; concurrent logins
// are collapsed into one handshake.
type SessionManager struct {
	client *http.Client
	now    func() time.Time
	flight singleflight.Group

	mu          sync.RWMutex
	session     Session
	username    string
	password    string
	lastDecline string
}

// NewSessionManager returns a logged out manager. The client is used for every
// request; if it has no cookie jar a copy with a fresh jar is used instead.
func NewSessionManager(client *http.Client, baseURL string, duration time.Duration) *SessionManager {
	if client == nil {
		client = common.HTTPClient(DefaultTimeout, nil)
	}
	if client.Jar == nil {
		c := *client
		c.Jar = common.NewCookieJar()
		client = &c
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionManager{
		client: client,
		now:    time.Now,
		session: Session{
			BaseURL:  baseURL,
			Duration: duration,
		},
	}
}

// Session returns a copy of the current state.
func (m *SessionManager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// BaseURL returns the URL every request is sent to.
func (m *SessionManager) BaseURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.BaseURL
}

// IsLoggedIn reports whether a login has succeeded and the session has not
// since been reset. It does not look at the session's age.
func (m *SessionManager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.LoggedIn
}

// Token returns the current session token or "" when logged out.
func (m *SessionManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Token
}

// SetCredentials stores credentials for later automatic logins without
// contacting Growatt.
func (m *SessionManager) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

// Login stores the credentials and performs the login handshake. A decline by
// Growatt is reported as (false, nil) and leaves the manager logged out; the
// vendor's message is logged. Empty credentials fail with ErrAuth without any
// network traffic.
func (m *SessionManager) Login(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, kindError(ErrAuth, "username and password must not be empty")
	}
	m.SetCredentials(username, password)
	return m.login(ctx)
}

// Logout ends the session. The local state is reset no matter what Growatt
// answers, and remote failures are logged and reported as (false, nil).
// Logging out while logged out is a no-op that returns true.
func (m *SessionManager) Logout(ctx context.Context) (bool, error) {
	m.mu.RLock()
	loggedIn, baseURL := m.session.LoggedIn, m.session.BaseURL
	m.mu.RUnlock()
	if !loggedIn {
		log.Ctx(ctx).DebugContext(ctx, "growatt logout without a session")
		return true, nil
	}
	defer m.invalidate()

	req, err := newRequest(ctx, http.MethodGet, baseURL, logoutPath, nil, nil)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to build growatt logout request", slog.Any("error", err))
		return false, nil
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Referer", baseURL+"/index")

	// the logout answer is a redirect to the login page, which is all we
	// need to see
	noRedirect := *m.client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "growatt logout failed", slog.Any("error", err))
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusFound && !is2xx(resp.StatusCode) {
		log.Ctx(ctx).WarnContext(ctx, "unexpected growatt logout status", slog.Int("status", resp.StatusCode))
		return false, nil
	}
	log.Ctx(ctx).DebugContext(ctx, "growatt logout success")
	return true, nil
}

// EnsureLoggedIn logs in again when the session is missing or older than its
// duration. Without stored credentials it returns ErrNotLoggedIn, and a
// decline by Growatt is returned as ErrAuth carrying the vendor's message.
func (m *SessionManager) EnsureLoggedIn(ctx context.Context) error {
	if !m.Session().Expired(m.now()) {
		return nil
	}
	return m.reauthenticate(ctx)
}

// forceLogin drops the current session and logs in again regardless of its
// age. It is used after Growatt rejected the session.
func (m *SessionManager) forceLogin(ctx context.Context) error {
	m.invalidate()
	return m.reauthenticate(ctx)
}

func (m *SessionManager) reauthenticate(ctx context.Context) error {
	m.mu.RLock()
	haveCredentials := m.username != "" && m.password != ""
	m.mu.RUnlock()
	if !haveCredentials {
		return kindError(ErrNotLoggedIn, "no credentials available")
	}

	ok, err := m.login(ctx)
	if err != nil {
		return err
	}
	if !ok {
		m.mu.RLock()
		msg := m.lastDecline
		m.mu.RUnlock()
		return kindError(ErrAuth, "login declined: %s", msg)
	}
	return nil
}

func (m *SessionManager) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.LoggedIn = false
	m.session.Token = ""
	m.session.EstablishedAt = time.Time{}
}

// login runs the handshake, sharing one in-flight handshake between
// concurrent callers for the same account. The shared handshake is detached
// from any single caller's cancellation and bounded by the client timeout;
// each caller still stops waiting when its own ctx is done.
func (m *SessionManager) login(ctx context.Context) (bool, error) {
	m.mu.RLock()
	key := m.username
	m.mu.RUnlock()

	ch := m.flight.DoChan(key, func() (any, error) {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.handshakeTimeout())
		defer cancel()
		return m.handshake(hctx)
	})
	select {
	case <-ctx.Done():
		return false, wrapError(ErrRequest, "login", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (m *SessionManager) handshakeTimeout() time.Duration {
	if m.client.Timeout > 0 {
		return m.client.Timeout
	}
	return DefaultTimeout
}

type loginResponse struct {
	Result *int   `json:"result"`
	Msg    any    `json:"msg"`
	Token  string `json:"token"`
}

func (m *SessionManager) handshake(ctx context.Context) (bool, error) {
	m.mu.RLock()
	username, password, baseURL := m.username, m.password, m.session.BaseURL
	m.mu.RUnlock()

	digest := HashPassword(password)
	data := url.Values{}
	data.Set("account", username)
	data.Set("password", digest)
	data.Set("passwordCrc", digest)
	data.Set("validateCode", "")
	data.Set("isReadPact", "1")

	req, err := newRequest(ctx, http.MethodPost, baseURL, loginPath, nil, data)
	if err != nil {
		return false, wrapError(ErrRequest, "login", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := m.client.Do(req)
	if err != nil {
		return false, wrapError(ErrRequest, "login", err)
	}
	defer resp.Body.Close()

	if !is2xx(resp.StatusCode) {
		return false, kindError(ErrRequest, "login: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, wrapError(ErrRequest, "login", err)
	}

	var res loginResponse
	if err := decodeJSON(body, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode growatt login response", slog.Any("error", err), slog.String("body", string(body)))
		m.invalidate()
		return false, err
	}
	if res.Result == nil {
		m.invalidate()
		return false, kindError(ErrInvalidResponse, "login response missing result")
	}

	if *res.Result != 1 {
		msg := "unknown error"
		if res.Msg != nil && fmt.Sprint(res.Msg) != "" {
			msg = fmt.Sprint(res.Msg)
		}
		log.Ctx(ctx).WarnContext(ctx, "growatt login declined", slog.String("username", username), slog.Int("result", *res.Result), slog.String("message", msg))
		m.invalidate()
		m.mu.Lock()
		m.lastDecline = msg
		m.mu.Unlock()
		return false, nil
	}

	token := res.Token
	if token == "" {
		token = m.sessionCookie(baseURL)
	}
	if token == "" {
		m.invalidate()
		return false, kindError(ErrInvalidResponse, "login succeeded without a session token")
	}

	m.mu.Lock()
	m.session.LoggedIn = true
	m.session.Token = token
	m.session.EstablishedAt = m.now()
	m.lastDecline = ""
	m.mu.Unlock()

	log.Ctx(ctx).DebugContext(ctx, "growatt login success", slog.String("username", username))
	return true, nil
}

// sessionCookie returns the session cookie Growatt set for baseURL, or the
// first cookie when there is no JSESSIONID.
func (m *SessionManager) sessionCookie(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	cookies := m.client.Jar.Cookies(u)
	for _, c := range cookies {
		if c.Name == sessionCookieName && c.Value != "" {
			return c.Value
		}
	}
	for _, c := range cookies {
		if c.Value != "" {
			return c.Value
		}
	}
	return ""
}
