package endpoint

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/query"
)

type captured struct {
	path   string
	accept string
	form   url.Values
}

func newCapturingServer(t *testing.T, status int, body string) (*httptest.Server, chan captured) {
	t.Helper()
	seen := make(chan captured, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		seen <- captured{path: r.URL.Path, accept: r.Header.Get("Accept"), form: form}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

var readKind = allocation.Kind{Index: 0, Name: "query1.txt", Role: allocation.RoleRead}

func TestHTTPConnection_RoutesReadsAndWrites(t *testing.T) {
	srv, seen := newCapturingServer(t, http.StatusOK, "<sparql/>")
	dialer, err := NewHTTPDialer(srv.URL+"/sparql", srv.URL+"/update", false)
	require.NoError(t, err)

	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	out, err := conn.Send(context.Background(), query.Query{Text: "SELECT * WHERE { ?s ?p ?o }", Type: query.Select})
	require.NoError(t, err)
	assert.Equal(t, "<sparql/>", out)
	got := <-seen
	assert.Equal(t, "/sparql", got.path)
	assert.Equal(t, "application/sparql-results+xml", got.accept)
	assert.Equal(t, "SELECT * WHERE { ?s ?p ?o }", got.form.Get("query"))

	_, err = conn.Send(context.Background(), query.Query{Text: "CONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o }", Type: query.Construct})
	require.NoError(t, err)
	got = <-seen
	assert.Equal(t, "application/rdf+xml", got.accept)

	_, err = conn.Send(context.Background(), query.Query{Text: "INSERT DATA { <urn:a> <urn:b> 1 }", Type: query.Insert})
	require.NoError(t, err)
	got = <-seen
	assert.Equal(t, "/update", got.path)
	assert.Equal(t, "INSERT DATA { <urn:a> <urn:b> 1 }", got.form.Get("update"))
	assert.Empty(t, got.form.Get("query"))
}

func TestNewHTTPDialer_UpdateFallsBackToQueryURL(t *testing.T) {
	d, err := NewHTTPDialer("http://localhost:7200/repositories/x", "", false)
	require.NoError(t, err)
	assert.Equal(t, d.QueryURL, d.UpdateURL)

	_, err = NewHTTPDialer("ftp://localhost/x", "", false)
	assert.Error(t, err)
}

func TestManager_NonSuccessIsIOFailure(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusInternalServerError, "boom")
	dialer, err := NewHTTPDialer(srv.URL, "", false)
	require.NoError(t, err)
	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)

	_, err = NewManager(time.Second).Execute(context.Background(), conn, readKind, query.Query{Text: "ASK {}", Type: query.Ask})
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, IOFailure, execErr.Kind)
	assert.Equal(t, "query1.txt", execErr.Template)
	assert.Contains(t, err.Error(), "500")
	assert.False(t, IsTimeout(err))
}

func TestManager_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	dialer, err := NewHTTPDialer(srv.URL, "", false)
	require.NoError(t, err)
	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)

	m := NewManager(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.Timeout())

	start := time.Now()
	_, err = m.Execute(context.Background(), conn, readKind, query.Query{Text: "SELECT * {}", Type: query.Select})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPConnection_ClosedRejectsSend(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusOK, "")
	dialer, err := NewHTTPDialer(srv.URL, "", false)
	require.NoError(t, err)
	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	_, err = conn.Send(context.Background(), query.Query{Text: "ASK {}", Type: query.Ask})
	assert.Error(t, err)
}

func TestHTTPDialer_CancelledContext(t *testing.T) {
	d, err := NewHTTPDialer("http://localhost:1/sparql", "", false)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
