// Package apihttp exposes the command surface the external chat adapter
// calls, plus health, metrics and a websocket feed of queue events. Chat
// commands map onto it as: request/req/sr → POST /requests, queue/q →
// GET /queue, np/nowplaying/song/current → GET /now-playing, skip →
// POST /skip (mod/broadcaster), clear → POST /clear (broadcaster).
package apihttp

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"mediajukebox/internal/domain"
	"mediajukebox/internal/usecase"
)

type SubmitUseCase interface {
	Execute(input usecase.SubmitInput) (usecase.SubmitResult, error)
}

type QueueViewUseCase interface {
	Execute(limit int) ([]usecase.QueueEntry, error)
}

type NowPlayingUseCase interface {
	Execute() (domain.QueueItem, bool, error)
}

type SkipUseCase interface {
	Execute(role usecase.Role) error
}

type ClearUseCase interface {
	Execute(role usecase.Role) (int, error)
}

type Server struct {
	submit     SubmitUseCase
	queueView  QueueViewUseCase
	nowPlaying NowPlayingUseCase
	skip       SkipUseCase
	clear      ClearUseCase
	logger     *slog.Logger
	hub        *wsHub
	handler    http.Handler

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateEvery rate.Limit
	rateBurst int
}

type ServerOption func(*Server)

func WithQueueView(uc QueueViewUseCase) ServerOption {
	return func(s *Server) { s.queueView = uc }
}

func WithNowPlaying(uc NowPlayingUseCase) ServerOption {
	return func(s *Server) { s.nowPlaying = uc }
}

func WithSkip(uc SkipUseCase) ServerOption {
	return func(s *Server) { s.skip = uc }
}

func WithClear(uc ClearUseCase) ServerOption {
	return func(s *Server) { s.clear = uc }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithSubmissionRate bounds how often a single submitter may enqueue.
func WithSubmissionRate(every rate.Limit, burst int) ServerOption {
	return func(s *Server) {
		s.rateEvery = every
		s.rateBurst = burst
	}
}

func NewServer(submit SubmitUseCase, opts ...ServerOption) *Server {
	s := &Server{
		submit:   submit,
		logger:   slog.Default(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = newWSHub(s.logger)
	go s.hub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /requests", s.handleSubmit)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("GET /now-playing", s.handleNowPlaying)
	mux.HandleFunc("POST /skip", s.handleSkip)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(s.logger, handler)
	handler = recoveryMiddleware(s.logger, handler)
	handler = otelhttp.NewHandler(handler, "jukebox-api")
	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects websocket clients and stops the hub.
func (s *Server) Close() {
	s.hub.Close()
}

// allowSubmission applies the per-submitter token bucket. A zero rate
// disables limiting.
func (s *Server) allowSubmission(submitter string) bool {
	if s.rateEvery == 0 || s.rateBurst <= 0 {
		return true
	}
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[submitter]
	if !ok {
		limiter = rate.NewLimiter(s.rateEvery, s.rateBurst)
		s.limiters[submitter] = limiter
	}
	return limiter.Allow()
}
