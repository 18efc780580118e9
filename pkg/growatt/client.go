package growatt

import (
	"context"
	"net/http"
	"time"

	"github.com/raterudder/growatt/pkg/common"
)

// Client talks to the Growatt web API on behalf of one account. Every data
// call makes sure a session exists first and transparently logs in again,
// once, when Growatt answers as if the session was gone.
type Client struct {
	session *SessionManager
	now     func() time.Time
}

type options struct {
	baseURL    string
	duration   time.Duration
	timeout    time.Duration
	httpClient *http.Client
	username   string
	password   string
	now        func() time.Time
}

// Option configures a Client built by New.
type Option func(*options)

// WithBaseURL sends every request to baseURL instead of DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithAlternateURL switches to the vendor's alternate endpoint.
func WithAlternateURL() Option {
	return WithBaseURL(AlternateBaseURL)
}

// WithSessionDuration sets how long a login is trusted.
func WithSessionDuration(d time.Duration) Option {
	return func(o *options) {
		o.duration = d
	}
}

// WithTimeout sets the timeout of the default HTTP client. It has no effect
// together with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient uses c for all requests. A cookie jar is added to a copy of
// c when it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithCredentials stores credentials so the first data call logs in on its
// own.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New returns a logged out client.
func New(opts ...Option) *Client {
	o := options{
		baseURL:  DefaultBaseURL,
		duration: DefaultSessionDuration,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = common.HTTPClient(o.timeout, common.NewCookieJar())
	}
	session := NewSessionManager(httpClient, o.baseURL, o.duration)
	session.now = o.now
	if o.username != "" && o.password != "" {
		session.SetCredentials(o.username, o.password)
	}
	return &Client{
		session: session,
		now:     o.now,
	}
}

// NewFromConfig returns a client configured from cfg. Extra options are
// applied after the ones derived from cfg.
func NewFromConfig(cfg Config, opts ...Option) *Client {
	return New(append(cfg.Options(), opts...)...)
}

// FromEnv builds a client from the GROWATT_* environment variables. When both
// GROWATT_USERNAME and GROWATT_PASSWORD are set the credentials are stored
// and the first data call logs in; nothing is sent here.
func FromEnv(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...), nil
}

// Login authenticates with the given credentials. See SessionManager.Login.
func (c *Client) Login(ctx context.Context, username, password string) (bool, error) {
	return c.session.Login(ctx, username, password)
}

// Logout ends the session. See SessionManager.Logout.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	return c.session.Logout(ctx)
}

// IsLoggedIn reports whether the client currently holds a session.
func (c *Client) IsLoggedIn() bool {
	return c.session.IsLoggedIn()
}

// Token returns the current session token or "".
func (c *Client) Token() string {
	return c.session.Token()
}

// Session returns a copy of the session state.
func (c *Client) Session() Session {
	return c.session.Session()
}

// EnsureLoggedIn logs in when there is no valid session.
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	return c.session.EnsureLoggedIn(ctx)
}
