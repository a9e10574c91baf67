package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/internal/config"
	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.Service
	repos    auth.Repos
	codec    *token.Codec
	notifier notify.Publisher
	cleaners []UploadCleaner
	proxies  config.TrustedProxies
	logger   zerolog.Logger

	access    *Validator
	refresh   *Validator
	reauth    *Validator
	challenge *Validator
}

type ServerOption func(*Server)

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithUploadCleaner registers a hook that removes staged uploads when a
// request is rejected by a token validator.
func WithUploadCleaner(c UploadCleaner) ServerOption {
	return func(s *Server) {
		s.cleaners = append(s.cleaners, c)
	}
}

func New(cfg config.Config, authService *auth.Service, repos auth.Repos, codec *token.Codec, notifier notify.Publisher, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if authService == nil || codec == nil {
		return nil, fmt.Errorf("[Server New] auth service and token codec are required")
	}
	if repos.Accounts == nil || repos.Sessions == nil {
		return nil, fmt.Errorf("[Server New] Accounts and Sessions repos are required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("[Server New] notifier is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     authService,
		repos:    repos,
		codec:    codec,
		notifier: notifier,
		proxies:  cfg.GetTrustedProxies(),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.initValidators()

	// Bootstrap: ensure the configured admin accounts exist
	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Protect gates a catalog handler behind a valid access token. The handler
// reads the signed-in account with IdentityFrom.
func (s *Server) Protect(handler http.HandlerFunc) http.HandlerFunc {
	return ChainMiddleware(handler, s.APIMiddleware(s.RequireAccess())...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}
