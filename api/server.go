// Package api implements the HTTP control API of the medic daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/capatazlib/go-capataz/cap"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-medic/health"
)

const (
	// MaxEventsLimit bounds the limit parameter of the events endpoint
	MaxEventsLimit = 500
	shutdownGrace  = 5 * time.Second
)

// ErrNoEventStore is reported by the events endpoint when the daemon runs
// without an event store
var ErrNoEventStore = errors.New("event store is not configured")

// Monitor is the part of a health.HealthMonitor the API drives
type Monitor interface {
	CheckNow(ctx context.Context) (health.CycleResult, error)
	Snapshot() health.Snapshot
}

// EventStore returns recorded remediation events
type EventStore interface {
	Recent(ctx context.Context, service string, limit int) ([]health.RemediationEvent, error)
}

// Server exposes a Monitor over HTTP
type Server struct {
	ll       logrus.FieldLogger
	monitor  Monitor
	store    EventStore
	stream   http.Handler
	metrics  http.Handler
	liveness func() Liveness
}

// Opt allows clients to tweak the endpoints of a Server
type Opt func(*Server)

// WithEventStore enables the events endpoint
func WithEventStore(store EventStore) Opt {
	return func(s *Server) {
		s.store = store
	}
}

// WithStatusStream mounts the given websocket handler on /ws
func WithStatusStream(h http.Handler) Opt {
	return func(s *Server) {
		s.stream = h
	}
}

// WithMetricsHandler mounts the given handler on /metrics
func WithMetricsHandler(h http.Handler) Opt {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLiveness sets the function that reports the daemon status on /healthz
func WithLiveness(fn func() Liveness) Opt {
	return func(s *Server) {
		s.liveness = fn
	}
}

// NewServer creates a new control API server
func NewServer(ll logrus.FieldLogger, monitor Monitor, opts ...Opt) *Server {
	server := &Server{
		ll:       ll.WithField("component", "api"),
		monitor:  monitor,
		liveness: func() Liveness { return Liveness{Healthy: true} },
	}
	for _, optFn := range opts {
		optFn(server)
	}
	return server
}

// NewHTTPHandler creates a `http.Handler` with the control endpoints
func (s *Server) NewHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/check", s.check).Methods("POST")
	r.HandleFunc("/services", s.services).Methods("GET")
	r.HandleFunc("/events", s.events).Methods("GET")
	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.stream != nil {
		r.Handle("/ws", s.stream).Methods("GET")
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	return r
}

// NewHTTPNode builds a `cap.Node` that runs the given HTTP server with the
// control endpoints.
func (s *Server) NewHTTPNode(server *http.Server, opts ...cap.WorkerOpt) (cap.Node, error) {
	if server.Addr == "" {
		return nil, errors.New("invalid input: server's Address is empty")
	}
	if server.Handler != nil {
		return nil, errors.New("invalid input: server's http.Handler is already initialized")
	}
	server.Handler = s.NewHTTPHandler()

	spec := cap.NewSupervisorSpec(
		"http",
		// Node order matters, server-shutdown should execute first on
		// termination logic.
		cap.WithNodes(
			cap.NewWorker("server", func(context.Context) error {
				s.ll.WithField("addr", server.Addr).Info("control api listening")
				err := server.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}),
			cap.NewWorker("server-shutdown", func(ctx context.Context) error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}),
		),
	)

	return cap.Subtree(spec, opts...), nil
}

func handleError(resp http.ResponseWriter, err error, code int) {
	data, _ := json.Marshal(Error{Error: err.Error()})
	resp.Header().Set("Content-Type", "application/json")
	resp.Header().Set("X-Content-Type-Options", "nosniff")
	resp.WriteHeader(code)
	_, _ = resp.Write(data)
}

func (s *Server) writeJSON(resp http.ResponseWriter, code int, payload interface{}, caller string) {
	data, err := json.Marshal(payload)
	if err != nil {
		handleError(resp, err, http.StatusInternalServerError)
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	if _, err = resp.Write(data); err != nil {
		s.ll.WithError(err).Warnf("%s: failed to write response to client", caller)
	}
}

func (s *Server) check(response http.ResponseWriter, request *http.Request) {
	result, err := s.monitor.CheckNow(request.Context())
	if err != nil {
		handleError(response, err, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(response, http.StatusOK, result, "Check")
}

func (s *Server) services(response http.ResponseWriter, _ *http.Request) {
	s.writeJSON(response, http.StatusOK, s.monitor.Snapshot(), "Services")
}

func (s *Server) events(response http.ResponseWriter, request *http.Request) {
	if s.store == nil {
		handleError(response, ErrNoEventStore, http.StatusNotFound)
		return
	}

	query := request.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxEventsLimit {
			handleError(
				response,
				fmt.Errorf("limit must be an integer between 1 and %d", MaxEventsLimit),
				http.StatusBadRequest,
			)
			return
		}
		limit = n
	}

	evs, err := s.store.Recent(request.Context(), query.Get("service"), limit)
	if err != nil {
		handleError(response, err, http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []health.RemediationEvent{}
	}
	s.writeJSON(response, http.StatusOK, Events{Events: evs}, "Events")
}

func (s *Server) healthz(response http.ResponseWriter, _ *http.Request) {
	status := s.liveness()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(response, code, status, "Healthz")
}
