package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"ChainScope-Agent/internal/agent"
	"ChainScope-Agent/internal/auth"
	"ChainScope-Agent/internal/job"
	"ChainScope-Agent/internal/observability/metrics"
	"ChainScope-Agent/internal/session"
	"ChainScope-Agent/pkg/logger"
)

// Server 负责暴露 REST 接口，供外部驱动智能体对话。
type Server struct {
	addr        string
	router      *mux.Router
	agent       *agent.Agent
	sessions    *session.Manager
	jobs        *job.Service
	limiter     *rate.Limiter
	auth        *auth.Authenticator
	readTimeout time.Duration
	now         func() time.Time
}

// Option 调整 Server 的可选配置。
type Option func(*Server)

// WithJobs 启用异步任务接口。
func WithJobs(svc *job.Service) Option {
	return func(s *Server) {
		s.jobs = svc
	}
}

// WithRateLimit 为业务接口设置全局限流，rps 不大于 0 时不限流。
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAuthenticator 为业务接口启用 API Key 认证。
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithReadTimeout 设置读取请求的超时时间。
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.readTimeout = timeout
		}
	}
}

// WithClock 替换时间来源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		router:      mux.NewRouter(),
		agent:       ag,
		sessions:    sessions,
		readTimeout: 15 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(recoverMiddleware, metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	limited := s.router.NewRoute().Subrouter()
	limited.Use(s.auth.Middleware, s.rateLimitMiddleware)
	limited.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	limited.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	limited.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)
	limited.HandleFunc("/examples", s.handleExamples).Methods(http.MethodGet)
	limited.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	limited.HandleFunc("/jobs", s.handleSubmitJob).Methods(http.MethodPost)
	limited.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	limited.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler 返回完整的路由，供测试与嵌入使用。
func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Named("api").Info("HTTP 服务已启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
