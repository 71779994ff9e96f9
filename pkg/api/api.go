// Package api serves the per-integrator fee query over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/metrics"
)

const (
	DefaultPort     = 3000
	DefaultPageSize = 1000

	readinessTimeout = 2 * time.Second
)

var (
	ErrInvalidPageSize = errors.New("invalid page size: must be greater than 0")
	ErrInvalidStore    = errors.New("invalid store: must not be nil")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Store is the backend surface the API reads from.
type Store interface {
	feestore.Reader
	Ping(ctx context.Context) error
}

type Config struct {
	Port     int
	PageSize uint64
}

type Server struct {
	cfg      Config
	store    Store
	sugar    *zap.SugaredLogger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	validate *validator.Validate
	engine   *gin.Engine
	http     *http.Server
}

type Option func(*Server)

// WithMetrics records request metrics in m and serves gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

func New(cfg Config, store Store, sugar *zap.SugaredLogger, opts ...Option) (*Server, error) {
	if cfg.PageSize == 0 {
		return nil, ErrInvalidPageSize
	}
	if store == nil {
		return nil, ErrInvalidStore
	}
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	v := validator.New()
	if err := v.RegisterValidation("evmaddr", func(fl validator.FieldLevel) bool {
		return addressPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register address validation: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		sugar:    sugar,
		validate: v,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/fees", s.getFees)
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ready", s.ready)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})))
	}
	return r
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. This is non-blocking. The returned channel receives an error if the server
// fails and is closed once it stops.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.sugar.Warnw("store not reachable", "error", err)
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ok")
}

// observe logs and measures every request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(route, c.Writer.Status(), time.Since(start).Seconds())
		s.sugar.Debugw("request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"clientIP", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}
