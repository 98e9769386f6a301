package dummy

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ServerConfig shapes the fake endpoint's behaviour.
type ServerConfig struct {
	Port       int
	MinLatency time.Duration
	MaxLatency time.Duration
	// SpikeRate is the share of requests that take SpikeLatency instead.
	SpikeRate    float64
	SpikeLatency time.Duration
	// ErrorRate is the share of requests answered with 500 or 429.
	ErrorRate float64
	// Results is the number of bindings rows per query answer.
	Results int
	Seed    int64
}

// DefaultConfig mirrors a healthy store answering in 10-50ms.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Port:         8080,
		MinLatency:   10 * time.Millisecond,
		MaxLatency:   50 * time.Millisecond,
		SpikeLatency: 2 * time.Second,
		Results:      5,
	}
}

// Counters are the requests served so far.
type Counters struct {
	Queries int64
	Updates int64
	Errors  int64
}

// Server is a fake SPARQL endpoint serving /sparql and /update.
type Server struct {
	cfg ServerConfig
	log logrus.FieldLogger

	mu  sync.Mutex
	rng *rand.Rand

	queries atomic.Int64
	updates atomic.Int64
	errs    atomic.Int64
}

func NewServer(cfg ServerConfig, log logrus.FieldLogger) *Server {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	if cfg.Results <= 0 {
		cfg.Results = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{cfg: cfg, log: log, rng: rand.New(rand.NewSource(seed))}
}

// Counters returns the request counters.
func (s *Server) Counters() Counters {
	return Counters{Queries: s.queries.Load(), Updates: s.updates.Load(), Errors: s.errs.Load()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleQuery)
	mux.HandleFunc("/update", s.handleUpdate)
	return mux
}

func (s *Server) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Server) latency() time.Duration {
	if s.cfg.SpikeRate > 0 && s.float() < s.cfg.SpikeRate {
		return s.cfg.SpikeLatency
	}
	span := s.cfg.MaxLatency - s.cfg.MinLatency
	return s.cfg.MinLatency + time.Duration(s.float()*float64(span))
}

// fail answers with an error status for ErrorRate of the requests.
func (s *Server) fail(w http.ResponseWriter) bool {
	if s.cfg.ErrorRate <= 0 {
		return false
	}
	rnd := s.float()
	if rnd >= s.cfg.ErrorRate {
		return false
	}
	s.errs.Add(1)
	if rnd < s.cfg.ErrorRate/2 {
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
	} else {
		http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
	}
	return true
}

func (s *Server) wait(r *http.Request) bool {
	select {
	case <-time.After(s.latency()):
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.wait(r) || s.fail(w) {
		return
	}
	if r.FormValue("query") == "" {
		http.Error(w, "missing query parameter", http.StatusBadRequest)
		return
	}
	s.queries.Add(1)

	if strings.Contains(r.Header.Get("Accept"), "rdf+xml") {
		w.Header().Set("Content-Type", "application/rdf+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"/>`)
		return
	}
	w.Header().Set("Content-Type", "application/sparql-results+xml")
	fmt.Fprint(w, s.results())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.wait(r) || s.fail(w) {
		return
	}
	if r.FormValue("update") == "" {
		http.Error(w, "missing update parameter", http.StatusBadRequest)
		return
	}
	s.updates.Add(1)
	w.WriteHeader(http.StatusOK)
}

// results renders rows with the bindings the drill-down chains pick from.
func (s *Server) results() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>
<sparql xmlns="http://www.w3.org/2005/sparql-results#">
<head><variable name="thing"/><variable name="lat"/><variable name="long"/><variable name="dateModified"/></head>
<results>
`)
	for i := 0; i < s.cfg.Results; i++ {
		lat := -90 + s.float()*180
		long := -180 + s.float()*360
		modified := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.float() * float64(24*365*time.Hour)))
		fmt.Fprintf(&b, `<result>
<binding name="thing"><uri>http://www.bbc.co.uk/things/%d#id</uri></binding>
<binding name="lat"><literal>%.6f</literal></binding>
<binding name="long"><literal>%.6f</literal></binding>
<binding name="dateModified"><literal>%s</literal></binding>
</result>
`, i+1, lat, long, modified.Format(time.RFC3339))
	}
	b.WriteString("</results>\n</sparql>\n")
	return b.String()
}

// Start serves until ctx is done.
func Start(ctx context.Context, cfg ServerConfig, log logrus.FieldLogger) error {
	s := NewServer(cfg, log)
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithField("addr", addr).Info("dummy SPARQL endpoint listening")
	fmt.Printf("👻 Dummy SPARQL endpoint running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /sparql, /update")

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "dummy server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down dummy server")
	}
	c := s.Counters()
	log.WithFields(logrus.Fields{"queries": c.Queries, "updates": c.Updates, "errors": c.Errors}).Info("dummy SPARQL endpoint stopped")
	return nil
}
