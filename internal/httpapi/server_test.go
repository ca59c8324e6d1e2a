package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lyrabot/internal/httpapi"
	"github.com/keshon/lyrabot/internal/music/player/playertest"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type node string

func (n node) SessionID() string     { return string(n) }
func (n node) RequestRate() float64 { return 20 }

type jobs []string

func (j jobs) Running() []string { return j }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPlayersEndpoints(t *testing.T) {
	ctx := context.Background()
	m, _, _ := playertest.NewManager()
	p := m.Get("g1")
	_, err := p.Join(ctx, "vc", "text")
	require.NoError(t, err)
	_, err = p.Play(ctx, playertest.Track("first"), playertest.Track("second"))
	require.NoError(t, err)

	h := httpapi.New(httpapi.Options{}, m, pinger{}, node("sess"), nil).Handler()

	rec := get(t, h, "/api/players")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int `json:"count"`
		Players []struct {
			GuildID string `json:"guild_id"`
			State   string `json:"state"`
			Current struct {
				Title string
			} `json:"current"`
			Queue []json.RawMessage `json:"queue"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "g1", list.Players[0].GuildID)
	assert.Equal(t, "first", list.Players[0].Current.Title)
	assert.Len(t, list.Players[0].Queue, 1)

	rec = get(t, h, "/api/players/g1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"voice_channel_id":"vc"`)

	rec = get(t, h, "/api/players/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	m, _, _ := playertest.NewManager()

	rec := get(t, httpapi.New(httpapi.Options{}, m, pinger{}, node("sess"), nil).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"audio_node":"connected"`)
	assert.Contains(t, rec.Body.String(), `"audio_node_rate":20`)
	assert.Contains(t, rec.Body.String(), `"jobs":[]`)

	rec = get(t, httpapi.New(httpapi.Options{Jobs: jobs{"expire-users"}}, m, pinger{}, node("sess"), nil).Handler(), "/healthz")
	assert.Contains(t, rec.Body.String(), `"jobs":["expire-users"]`)

	rec = get(t, httpapi.New(httpapi.Options{}, m, pinger{err: errors.New("disk gone")}, node(""), nil).Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"disk gone"`)
	assert.Contains(t, rec.Body.String(), `"audio_node":"disconnected"`)
}

func TestMetricsReportsConnectedPlayers(t *testing.T) {
	ctx := context.Background()
	m, _, _ := playertest.NewManager()
	_, err := m.Get("g1").Join(ctx, "vc", "text")
	require.NoError(t, err)

	h := httpapi.New(httpapi.Options{}, m, nil, nil, nil).Handler()
	get(t, h, "/api/players")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lyrabot_players_connected 1")
	assert.Contains(t, rec.Body.String(), `lyrabot_http_requests_total{code="200",route="/api/players"}`)
}
