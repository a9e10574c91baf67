package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteAPIHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// LOGIN
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthTwoFactorVerify, ChainMiddleware(s.VerifyChallengeHandler(), s.APIMiddleware(s.RequireChallenge())...))

	// Refresh token routes
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware(s.RequireRefresh())...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireRefresh())...))

	// Access token routes
	s.RegisterRouteHandler("POST "+RouteAuthLogoutAll, ChainMiddleware(s.LogoutAllHandler(), s.APIMiddleware(s.RequireAccess())...))
	s.RegisterRouteHandler("POST "+RouteAuthReauth, ChainMiddleware(s.ReauthHandler(), s.APIMiddleware(s.RequireAccess())...))
	s.RegisterRouteHandler("POST "+RouteAuthTwoFactorSetup, ChainMiddleware(s.TwoFactorSetupHandler(), s.APIMiddleware(s.RequireAccess())...))
	s.RegisterRouteHandler("GET "+RouteAuthSessions, ChainMiddleware(s.SessionsHandler(), s.APIMiddleware(s.RequireAccess())...))
	s.RegisterRouteHandler("DELETE "+RouteAuthSession, ChainMiddleware(s.RevokeSessionHandler(), s.APIMiddleware(s.RequireAccess())...))
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAccess())...))

	// Security re-auth routes
	s.RegisterRouteHandler("POST "+RouteAuthTwoFactorEnable, ChainMiddleware(s.TwoFactorEnableHandler(), s.APIMiddleware(s.RequireReauth())...))
	s.RegisterRouteHandler("POST "+RouteAuthTwoFactorOff, ChainMiddleware(s.TwoFactorDisableHandler(), s.APIMiddleware(s.RequireReauth())...))
	s.RegisterRouteHandler("POST "+RouteAuthPassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireReauth())...))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PreflightHandler gives OPTIONS requests a route. CorsMiddleware answers
// them before this runs.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
