package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/wbKV/rpc/common"
	"github.com/ValentinKolb/wbKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// RequestIDHeader is set on every response when request logging is enabled
const RequestIDHeader = "X-Request-Id"

func NewHttpServerTransport() *ServerTransport {
	return &ServerTransport{}
}

// ServerTransport serves RPC requests over HTTP.
//
// Routes:
//
//	POST /{shardId}  serialized common.Message in, serialized common.Message out
//	GET  /health     200 "ok"
//	GET  /metrics    prometheus text format
type ServerTransport struct {
	handler transport.ServerHandleFunc
	metrics transport.MetricsWriteFunc
	debug   bool

	mu     sync.Mutex
	server *http.Server
}

var _ transport.IRPCServerTransport = (*ServerTransport)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *ServerTransport) RegisterMetrics(metrics transport.MetricsWriteFunc) {
	t.metrics = metrics
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	t.debug = config.LogLevel == "debug"

	t.mu.Lock()
	t.server = &http.Server{
		Addr:              config.Endpoint,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *ServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// Handler returns the router serving all routes of the transport.
func (t *ServerTransport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if t.debug {
		r.Use(loggerMiddleware)
	}

	r.Post("/{shardId}", t.handleRequest)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", t.handleMetrics)
	return r
}

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *ServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	shardId, err := strconv.ParseUint(chi.URLParam(r, "shardId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid shardId", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	if t.handler == nil {
		http.Error(w, "No handler registered", http.StatusServiceUnavailable)
		return
	}

	resp := t.handler(shardId, body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Warningf("Failed to write response for shard %d: %v", shardId, err)
	}
}

// handleMetrics writes the process metrics followed by the registered metrics
func (t *ServerTransport) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
	if t.metrics != nil {
		t.metrics(w)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// loggerMiddleware tags each request with a uuid and logs it on completion
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		Logger.Debugf("[%s] %s %s => %d (%d bytes) took %s", id, r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}
