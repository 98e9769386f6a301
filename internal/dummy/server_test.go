package dummy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparqlbench/internal/logging"
	"sparqlbench/internal/query"
)

func quietConfig() ServerConfig {
	cfg := DefaultConfig()
	cfg.MinLatency = 0
	cfg.MaxLatency = 0
	cfg.Seed = 7
	return cfg
}

func post(t *testing.T, ts *httptest.Server, path, field, value string) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.URL+path, url.Values{field: {value}})
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_QueryResultsFeedDrillDown(t *testing.T) {
	s := NewServer(quietConfig(), logging.Discard)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := post(t, ts, "/sparql", "query", "SELECT * WHERE { ?s ?p ?o }")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/sparql-results+xml", resp.Header.Get("Content-Type"))

	body := s.results()
	entities, err := query.XMLResultsExtractor{}.Extract(body)
	require.NoError(t, err)
	require.Len(t, entities, 5)
	assert.True(t, strings.HasPrefix(entities[0].URI, "http://www.bbc.co.uk/things/"))

	_, err = query.DeriveGeo(entities[0], s.rng)
	assert.NoError(t, err)
	_, err = query.DeriveDate(entities[0], s.rng)
	assert.NoError(t, err)

	assert.Equal(t, int64(1), s.Counters().Queries)
}

func TestServer_Update(t *testing.T) {
	s := NewServer(quietConfig(), logging.Discard)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := post(t, ts, "/update", "update", "INSERT DATA { <a> <b> <c> }")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, ts, "/update", "query", "ignored")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, Counters{Updates: 1}, s.Counters())
}

func TestServer_ErrorRate(t *testing.T) {
	cfg := quietConfig()
	cfg.ErrorRate = 1
	s := NewServer(cfg, logging.Discard)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for i := 0; i < 10; i++ {
		resp := post(t, ts, "/sparql", "query", "ASK {}")
		assert.Contains(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests}, resp.StatusCode)
	}
	assert.Equal(t, int64(10), s.Counters().Errors)
	assert.Zero(t, s.Counters().Queries)
}
