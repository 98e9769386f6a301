package endpoint

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"sparqlbench/internal/query"
)

// Connection is a stateful handle to the endpoint, owned by one agent.
type Connection interface {
	Send(ctx context.Context, q query.Query) (string, error)
	Close() error
}

// Dialer creates fresh connections.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Connection, error)

func (f DialerFunc) Dial(ctx context.Context) (Connection, error) {
	return f(ctx)
}

// HTTPDialer opens SPARQL 1.1 protocol connections.
type HTTPDialer struct {
	QueryURL           string
	UpdateURL          string
	InsecureSkipVerify bool
}

// NewHTTPDialer validates the endpoint URLs. An empty update URL falls back to the query URL.
func NewHTTPDialer(queryURL, updateURL string, insecureSkipVerify bool) (*HTTPDialer, error) {
	if updateURL == "" {
		updateURL = queryURL
	}
	for _, raw := range []string{queryURL, updateURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing endpoint url %q", raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, errors.Errorf("endpoint url %q: unsupported scheme %q", raw, u.Scheme)
		}
	}
	return &HTTPDialer{QueryURL: queryURL, UpdateURL: updateURL, InsecureSkipVerify: insecureSkipVerify}, nil
}

// Dial builds a connection with its own transport, so a recreated connection
// never reuses sockets of a broken one.
func (d *HTTPDialer) Dial(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2
	t.MaxIdleConnsPerHost = 2
	if d.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &HTTPConnection{
		queryURL:  d.QueryURL,
		updateURL: d.UpdateURL,
		transport: t,
		client:    &http.Client{Transport: t},
	}, nil
}

// HTTPConnection sends queries as form posts following the SPARQL 1.1 protocol.
type HTTPConnection struct {
	queryURL  string
	updateURL string
	transport *http.Transport
	client    *http.Client
	closed    atomic.Bool
}

const maxErrorBody = 512

func acceptHeader(t query.Type) string {
	switch t {
	case query.Construct, query.Describe:
		return "application/rdf+xml"
	default:
		return "application/sparql-results+xml"
	}
}

func (c *HTTPConnection) Send(ctx context.Context, q query.Query) (string, error) {
	if c.closed.Load() {
		return "", errors.New("connection closed")
	}

	form := url.Values{}
	target := c.queryURL
	if q.Type.IsUpdate() {
		form.Set("update", q.Text)
		target = c.updateURL
	} else {
		form.Set("query", q.Text)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if !q.Type.IsUpdate() {
		req.Header.Set("Accept", acceptHeader(q.Type))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", errors.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(msg))
	}
	return string(body), nil
}

// Close drops the connection's idle sockets. It is safe to call more than once.
func (c *HTTPConnection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.transport.CloseIdleConnections()
	}
	return nil
}
