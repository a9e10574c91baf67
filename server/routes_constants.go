package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Session
	RouteAuthLogin     = "/auth/login"
	RouteAuthRefresh   = "/auth/refresh"
	RouteAuthLogout    = "/auth/logout"
	RouteAuthLogoutAll = "/auth/logout-all"

	// Auth Routes - Step-up
	RouteAuthReauth          = "/auth/reauth"
	RouteAuthTwoFactorVerify = "/auth/2fa/verify"
	RouteAuthTwoFactorSetup  = "/auth/2fa/setup"
	RouteAuthTwoFactorEnable = "/auth/2fa/enable"
	RouteAuthTwoFactorOff    = "/auth/2fa/disable"
	RouteAuthPassword        = "/auth/password"

	// Auth Routes - Session management
	RouteAuthSessions = "/auth/sessions"
	RouteAuthSession  = "/auth/sessions/{id}"

	// API Routes
	RouteAPIMe     = "/api/me"
	RouteAPIHealth = "/api/health"
)

// Token carriers
const (
	HeaderAuthorization     = "Authorization"
	HeaderReauthToken       = "X-Admin-Token"
	HeaderSecurityChallenge = "X-Security-Challenge"
	BodyFieldRefreshToken   = "refresh_token"
)
