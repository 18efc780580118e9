package growatt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type reply struct {
	status int
	body   string
}

func ok(body string) reply {
	return reply{status: http.StatusOK, body: body}
}

type loginReply struct {
	result int
	msg    string
	token  string
	status int
	raw    string
}

// fakeGrowatt is an in-process stand-in for the Growatt web API. Replies are
// consumed in order per path and the last one repeats.
type fakeGrowatt struct {
	t *testing.T

	mu          sync.Mutex
	logins      int
	logouts     int
	loginReply  []loginReply
	logoutReply []reply
	routes      map[string][]reply
	calls       map[string]int
	forms       map[string]url.Values
	queries     map[string]url.Values
	methods     map[string]string
	headers     map[string]http.Header

	// loginHold, when set, blocks every login until it is closed.
	loginHold    chan struct{}
	loginEntered chan struct{}
}

func newFakeGrowatt(t *testing.T) (*fakeGrowatt, *httptest.Server) {
	f := &fakeGrowatt{
		t:       t,
		routes:  map[string][]reply{},
		calls:   map[string]int{},
		forms:   map[string]url.Values{},
		queries: map[string]url.Values{},
		methods: map[string]string{},
		headers: map[string]http.Header{},
	}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeGrowatt) route(path string, replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = replies
}

func (f *fakeGrowatt) onLogin(replies ...loginReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginReply = replies
}

func (f *fakeGrowatt) onLogout(replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutReply = replies
}

// holdLogin makes logins block until release is called. entered receives
// once the first held login has reached the server.
func (f *fakeGrowatt) holdLogin() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginHold = make(chan struct{})
	f.loginEntered = make(chan struct{}, 1)
	var once sync.Once
	hold := f.loginHold
	return f.loginEntered, func() { once.Do(func() { close(hold) }) }
}

func (f *fakeGrowatt) method(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods[path]
}

func (f *fakeGrowatt) header(path string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[path]
}

func (f *fakeGrowatt) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeGrowatt) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeGrowatt) form(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path]
}

func (f *fakeGrowatt) query(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func next[T any](queue []T) (T, []T) {
	if len(queue) > 1 {
		return queue[0], queue[1:]
	}
	return queue[0], queue
}

func (f *fakeGrowatt) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.NoError(f.t, r.ParseForm())
	path := strings.TrimPrefix(r.URL.Path, "/")

	f.mu.Lock()
	f.calls[path]++
	f.forms[path] = r.PostForm
	f.queries[path] = r.URL.Query()
	f.methods[path] = r.Method
	f.headers[path] = r.Header.Clone()

	switch path {
	case "login":
		f.logins++
		n := f.logins
		lr := loginReply{result: 1}
		if len(f.loginReply) > 0 {
			lr, f.loginReply = next(f.loginReply)
		}
		hold, entered := f.loginHold, f.loginEntered
		f.mu.Unlock()

		if hold != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-hold
		}

		if lr.status != 0 {
			w.WriteHeader(lr.status)
			return
		}
		if lr.raw != "" {
			fmt.Fprint(w, lr.raw)
			return
		}
		if lr.result == 1 {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: fmt.Sprintf("sess-%d", n), Path: "/"})
		}
		res := map[string]any{"result": lr.result}
		if lr.msg != "" {
			res["msg"] = lr.msg
		}
		if lr.token != "" {
			res["token"] = lr.token
		}
		_ = json.NewEncoder(w).Encode(res)
		return

	case "logout":
		f.logouts++
		rep := reply{status: http.StatusFound}
		if len(f.logoutReply) > 0 {
			rep, f.logoutReply = next(f.logoutReply)
		}
		f.mu.Unlock()
		if rep.status == http.StatusFound {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(rep.status)
		return
	}

	queue, found := f.routes[path]
	if !found || len(queue) == 0 {
		f.mu.Unlock()
		http.Error(w, "not found: "+path, http.StatusNotFound)
		return
	}
	var rep reply
	rep, f.routes[path] = next(queue)
	f.mu.Unlock()

	w.WriteHeader(rep.status)
	fmt.Fprint(w, rep.body)
}

// newTestClient returns a client pointed at ts with credentials stored.
func newTestClient(ts *httptest.Server, opts ...Option) *Client {
	return New(append([]Option{
		WithBaseURL(ts.URL),
		WithHTTPClient(ts.Client()),
		WithCredentials("user", "pass"),
	}, opts...)...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
