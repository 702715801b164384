package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/middleware"
)

const (
	defaultRefreshCookie = "refresh_token"
	defaultMaxBody       = 16 << 10
)

// Options tunes the HTTP surface.
type Options struct {
	// UniformRefreshErrors answers every refresh 401 with "Invalid refresh
	// token" so clients cannot tell the failure causes apart.
	UniformRefreshErrors bool
	// SecureCookies sets the Secure attribute on the refresh cookie.
	SecureCookies bool
	// TrustProxy takes the client IP from the first X-Forwarded-For entry.
	TrustProxy        bool
	RefreshCookieName string
	MaxBodyBytes      int64
}

// Server routes auth requests to an Engine.
type Server struct {
	engine  *tokenguard.Engine
	metrics http.Handler
	logger  *zap.Logger
	opts    Options
	router  *mux.Router
}

// NewServer wires the routes. metrics may be nil to omit /metrics.
func NewServer(engine *tokenguard.Engine, metrics http.Handler, logger *zap.Logger, opts Options) *Server {
	if opts.RefreshCookieName == "" {
		opts.RefreshCookieName = defaultRefreshCookie
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Router returns the root handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.clientContext)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	csrf := middleware.CSRF(s.engine.CSRF(), func(r *http.Request, err error) {
		s.engine.ReportCSRFRejection(r.Context(), err)
	})

	auth := s.router.PathPrefix("/auth").Subrouter()
	auth.Handle("/refresh", csrf(http.HandlerFunc(s.handleRefresh))).Methods(http.MethodPost)
	auth.Handle("/logout", csrf(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/csrf", s.handleCSRF).Methods(http.MethodGet)
	auth.Handle("/me", middleware.Guard(s.engine)(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

func (s *Server) clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tokenguard.WithClientIP(r.Context(), s.clientIP(r))
		if ua := r.UserAgent(); ua != "" {
			ctx = tokenguard.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) clientIP(r *http.Request) string {
	if s.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
