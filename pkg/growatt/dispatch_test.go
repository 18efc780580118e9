package growatt

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/growatt/pkg/types"
)

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	const plants = "index/getPlantListTitle"

	t.Run("Logs In On First Use", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, ok(`[{"id":"1","plantName":"Roof"}]`))
		c := newTestClient(ts)

		list, err := c.GetPlants(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.PlantList{{ID: "1", Name: "Roof"}}, list)
		assert.Equal(t, 1, f.loginCount())
		assert.True(t, c.IsLoggedIn())
	})

	t.Run("No Credentials", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		c := New(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrNotLoggedIn)
		assert.Equal(t, 0, f.callCount(plants))
	})

	t.Run("Rejected Once", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, ok(`[]`), ok(`[{"id":"1","name":"Roof"}]`))
		c := newTestClient(ts)

		list, err := c.GetPlants(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, 2, f.loginCount(), "one login plus one re-login")
		assert.Equal(t, 2, f.callCount(plants), "one retry")
		assert.Equal(t, "sess-2", c.Token())
	})

	t.Run("Rejected Twice", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, ok(``), ok(`<html><body>login</body></html>`), ok(`[{"id":"1","name":"Roof"}]`))
		c := newTestClient(ts)

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrNotLoggedIn)
		assert.Equal(t, 2, f.loginCount())
		assert.Equal(t, 2, f.callCount(plants), "no third attempt")
		assert.False(t, c.IsLoggedIn())
	})

	t.Run("Null Payload", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route("panel/getPlantData",
			ok(`{"obj":null}`),
			ok(`{"obj":{"plantName":"Roof","plantId":"1","currentPower":"1.5","todayEnergy":3}}`),
		)
		c := newTestClient(ts)

		data, err := c.GetPlant(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "Roof", data.PlantName)
		assert.Equal(t, types.Float(1.5), data.CurrentPower)
		assert.Equal(t, types.Float(3), data.TodayEnergy)
		assert.Equal(t, 2, f.loginCount())
	})

	t.Run("Relogin Declined", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.onLogin(loginReply{result: 1}, loginReply{result: 0, msg: "password changed"})
		f.route(plants, ok(`{}`))
		c := newTestClient(ts)

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Equal(t, 1, f.callCount(plants))
		assert.False(t, c.IsLoggedIn())
	})

	t.Run("Missing Field", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route("panel/getDevicesByPlant", ok(`{"result":1}`))
		c := newTestClient(ts)

		_, err := c.GetMixIDs(ctx, "1")
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.Equal(t, 1, f.loginCount())
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route("panel/getPlantData", ok(`{"obj":`))
		c := newTestClient(ts)

		_, err := c.GetPlant(ctx, "1")
		assert.ErrorIs(t, err, ErrJSON)
		assert.Equal(t, 1, f.loginCount())
	})

	t.Run("Wrong Shape", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, ok(`{"id":"1","name":"Roof"}`))
		c := newTestClient(ts)

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("Plant Without Name", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, ok(`[{"id":"1"}]`))
		c := newTestClient(ts)

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("HTTP Error", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route(plants, reply{status: http.StatusBadGateway})
		c := newTestClient(ts)

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrRequest)
		assert.Equal(t, 1, f.callCount(plants))
	})

	t.Run("Unreachable", func(t *testing.T) {
		_, ts := newFakeGrowatt(t)
		c := newTestClient(ts)
		ts.Close()

		_, err := c.GetPlants(ctx)
		assert.ErrorIs(t, err, ErrRequest)
	})
}

func TestRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("GET Query", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route("custom/thing", ok(`{"a":1}`))
		c := newTestClient(ts)

		raw, err := c.Request(ctx, http.MethodGet, "custom/thing", url.Values{"x": {"1"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(raw))
		assert.Equal(t, "1", f.query("custom/thing").Get("x"))
		assert.Equal(t, http.MethodGet, f.method("custom/thing"))
	})

	t.Run("POST Form", func(t *testing.T) {
		f, ts := newFakeGrowatt(t)
		f.route("custom/thing", ok(`[1,2]`))
		c := newTestClient(ts)

		raw, err := c.Request(ctx, http.MethodPost, "custom/thing", url.Values{"x": {"2"}})
		require.NoError(t, err)
		assert.JSONEq(t, `[1,2]`, string(raw))
		assert.Equal(t, "2", f.form("custom/thing").Get("x"))
		assert.Empty(t, f.query("custom/thing"))
		assert.Equal(t, http.MethodPost, f.method("custom/thing"))
	})
}

func TestSelectPayload(t *testing.T) {
	for _, body := range []string{"", "  ", "null", "{}", "[]", "{ }", "<!DOCTYPE html>"} {
		_, err := selectPayload([]byte(body), nil)
		assert.ErrorIs(t, err, errSessionExpired, "body %q", body)
	}

	raw, err := selectPayload([]byte(`{"obj":{"mix":[["SN1","Mix"]]}}`), []string{"obj", "mix"})
	require.NoError(t, err)
	assert.JSONEq(t, `[["SN1","Mix"]]`, string(raw))

	_, err = selectPayload([]byte(`{"obj":{"mix":[]}}`), []string{"obj", "mix"})
	assert.ErrorIs(t, err, errSessionExpired)

	_, err = selectPayload([]byte(`{"obj":[1]}`), []string{"obj", "mix"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = selectPayload([]byte(`{"obj":`), nil)
	assert.ErrorIs(t, err, ErrJSON)
}
