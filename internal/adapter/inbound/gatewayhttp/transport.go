package gatewayhttp

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
)

// Transport is the HTTP/WebSocket inbound adapter wrapping one
// gateway.Pipeline.
type Transport struct {
	pipeline *gateway.Pipeline
	upgrader *Upgrader

	server   *http.Server
	addr     string
	certFile string
	keyFile  string

	healthChecker *HealthChecker
	metrics       *Metrics
	promRegistry  *prometheus.Registry
	logger        *slog.Logger
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger used by the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithHealthChecker sets the health checker served at /health.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) { t.healthChecker = hc }
}

// WithPrometheusRegistry serves /metrics from reg instead of a
// Transport-private registry, so an external collaborator (e.g.
// internal/adapter/inbound/telemetry) can register its own collectors
// into the same registry this Transport exposes.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(t *Transport) { t.promRegistry = reg }
}

// NewTransport creates a Transport in front of pipeline, performing
// upgrades (when authorized) via upgrader.
func NewTransport(pipeline *gateway.Pipeline, upgrader *Upgrader, opts ...Option) *Transport {
	t := &Transport{
		pipeline: pipeline,
		upgrader: upgrader,
		addr:     "127.0.0.1:8080",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins accepting HTTP connections and routing them through the
// pipeline. It blocks until ctx is cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	reg := t.promRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	var handler http.Handler = http.HandlerFunc(t.dispatch)
	handler = MetricsMiddleware(t.metrics)(handler)
	handler = RequestIDMiddleware(t.logger)(handler)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", handler)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS gateway listener", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP gateway listener", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down gateway listener")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during gateway listener shutdown", "error", err)
		return err
	}
	t.logger.Info("gateway listener shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// dispatch routes an inbound request either to the WebSocket upgrade path
// or the plain request/response pipeline, depending on whether the client
// sent a WebSocket upgrade handshake.
func (t *Transport) dispatch(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		t.handleUpgrade(w, r)
		return
	}
	t.handleRequest(w, r)
}

func (t *Transport) handleRequest(w http.ResponseWriter, r *http.Request) {
	req, err := toGatewayRequest(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result := t.pipeline.Handle(r.Context(), req)
	writeResult(w, result)
}

func toGatewayRequest(r *http.Request) (gateway.Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return gateway.Request{}, err
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return gateway.Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		Headers:     r.Header,
		Body:        body,
		PeerIP:      r.RemoteAddr,
		RequestHost: r.Host,
		Scheme:      scheme,
	}, nil
}

func writeResult(w http.ResponseWriter, result gateway.Result) {
	status := result.HTTPStatus()

	if result.Kind == gateway.KindSuccess {
		for k, vs := range result.Headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write(result.Body)
		return
	}

	if result.Kind == gateway.KindRateLimited {
		writeRateLimitHeaders(w, result.Decision)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(errorBody(result))
}
