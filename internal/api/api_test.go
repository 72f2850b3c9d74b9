package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
)

func newTestServer(t *testing.T) (*httptest.Server, checkpoint.Store) {
	t.Helper()

	st, err := checkpoint.New(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "gems.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(NewServer(st, config.ScoringConfig{}).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func seedScored(t *testing.T, st checkpoint.Store) {
	t.Helper()
	scored := []model.ScoredEntity{
		{
			Key: "tian tian chicken rice", DisplayName: "Tian Tian Chicken Rice",
			Rating: 4.6, PredictedRating: 4.0, Residual: 0.6, Tier: model.TierHiddenGem,
			Zone: "Outram", Category: "Hawker", ReviewCount: 5230,
			Explanation: "beats expectations",
			Coordinates: model.Coordinates{Lat: 1.28, Lon: 103.84},
		},
		{
			Key: "corner kopitiam", DisplayName: "Corner Kopitiam",
			Rating: 4.1, PredictedRating: 4.0, Residual: 0.1, Tier: model.TierFairValue,
			Zone: "Downtown Core", Category: "Chinese", ReviewCount: 85,
			Explanation: "in line",
			Coordinates: model.Coordinates{Lat: 1.29, Lon: 103.85},
		},
	}
	require.NoError(t, st.SaveScored(context.Background(), "run-1", scored))
}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestEntities_ListAndFilter(t *testing.T) {
	srv, st := newTestServer(t)
	seedScored(t, st)

	var body struct {
		Count    int                  `json:"count"`
		Entities []model.ScoredEntity `json:"entities"`
	}
	status := getJSON(t, srv.URL+"/api/v1/entities", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, body.Count)

	status = getJSON(t, srv.URL+"/api/v1/entities?tier=Hidden+Gem", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Tian Tian Chicken Rice", body.Entities[0].DisplayName)

	status = getJSON(t, srv.URL+"/api/v1/entities?min_reviews=100", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, body.Count)
}

func TestEntities_BadQueryParam(t *testing.T) {
	srv, st := newTestServer(t)
	seedScored(t, st)

	var body map[string]string
	status := getJSON(t, srv.URL+"/api/v1/entities?min_rating=abc", &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "min_rating")
}

func TestEntity_ByKey(t *testing.T) {
	srv, st := newTestServer(t)
	seedScored(t, st)

	key := url.PathEscape("corner kopitiam")

	var body model.ScoredEntity
	status := getJSON(t, srv.URL+"/api/v1/entities/"+key, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Corner Kopitiam", body.DisplayName)

	var errBody map[string]string
	status = getJSON(t, srv.URL+"/api/v1/entities/"+url.PathEscape("no such stall"), &errBody)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStats(t *testing.T) {
	srv, st := newTestServer(t)
	seedScored(t, st)

	var body struct {
		Scored int            `json:"scored"`
		Tiers  map[string]int `json:"tiers"`
		Zones  int            `json:"zones"`
	}
	status := getJSON(t, srv.URL+"/api/v1/stats", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, body.Scored)
	assert.Equal(t, 1, body.Tiers[string(model.TierHiddenGem)])
	assert.Equal(t, 2, body.Zones)
}

func TestCORSHeaders(t *testing.T) {
	srv, st := newTestServer(t)
	seedScored(t, st)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/entities", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
