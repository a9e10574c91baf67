package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-admin-auth/accounts"
	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/sessions"
	"github.com/jrsteele09/go-admin-auth/token"
)

// Login response states
const (
	statusAuthenticated     = "authenticated"
	statusTwoFactorRequired = "two_factor_required"
	statusRejected          = "rejected"
)

type loginResponse struct {
	Status string `json:"status"`
	*auth.Pair
	ChallengeToken string `json:"challenge_token,omitempty"`
}

type sessionView struct {
	ID        string              `json:"id"`
	Client    sessions.ClientInfo `json:"client"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// identity returns the validator's identity. Routes calling it are always
// behind a validator, so a missing identity is a wiring bug.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		s.logger.Error().Str("path", r.URL.Path).Msg("route has no token validator")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorAuthFatal})
	}
	return id, ok
}

func (s *Server) writeLoginResult(w http.ResponseWriter, result *auth.LoginResult) {
	s.notifier.Publish(result.Events...)

	if result.State == auth.PendingChallenge {
		writeJSON(w, http.StatusOK, loginResponse{Status: statusTwoFactorRequired, ChallengeToken: result.ChallengeToken})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Status: statusAuthenticated, Pair: result.Pair})
}

// LoginHandler checks email and password and either opens a session or asks
// for a one-time password.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := required(map[string]string{"email": req.Email, "password": req.Password}); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.auth.Login(r.Context(), accounts.NormalizeEmail(req.Email), req.Password, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeLoginResult(w, result)
	}
}

// VerifyChallengeHandler completes a two-factor login.
func (s *Server) VerifyChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Token string `json:"token"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.auth.VerifyChallenge(r.Context(), id.Account, id.TokenID, req.Token, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeLoginResult(w, result)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		pair, err := s.auth.Rotate(r.Context(), id.Token, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		if err := s.auth.Logout(r.Context(), id.Session.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		if err := s.auth.LogoutAll(r.Context(), id.Account.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReauthHandler trades the current password for a short-lived admin token
// that unlocks the security settings routes.
func (s *Server) ReauthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := required(map[string]string{"password": req.Password}); err != nil {
			s.writeError(w, r, err)
			return
		}

		adminToken, err := s.auth.Reauthenticate(r.Context(), id.Account, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"admin_token": adminToken,
			"expires_in":  int64(s.codec.TTL(token.KindSecurityReauth).Seconds()),
		})
	}
}

func (s *Server) TwoFactorSetupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		enrollment, err := s.auth.BeginEnrollment(r.Context(), id.Account)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, enrollment)
	}
}

func (s *Server) TwoFactorEnableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Password string `json:"password"`
			Secret   string `json:"secret"`
			Token    string `json:"token"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := required(map[string]string{"password": req.Password}); err != nil {
			s.writeError(w, r, err)
			return
		}

		events, err := s.auth.EnableTwoFactor(r.Context(), id.Account, req.Password, req.Secret, req.Token, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.notifier.Publish(events...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) TwoFactorDisableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := required(map[string]string{"password": req.Password}); err != nil {
			s.writeError(w, r, err)
			return
		}

		events, err := s.auth.DisableTwoFactor(r.Context(), id.Account, req.Password, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.notifier.Publish(events...)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ChangePasswordHandler sets a new password and signs out every session.
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Password    string `json:"password"`
			NewPassword string `json:"new_password"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := required(map[string]string{"password": req.Password, "new_password": req.NewPassword}); err != nil {
			s.writeError(w, r, err)
			return
		}

		events, err := s.auth.ChangePassword(r.Context(), id.Account, req.Password, req.NewPassword, s.clientInfo(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.notifier.Publish(events...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		records, err := s.auth.Sessions(r.Context(), id.Account.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		views := make([]sessionView, 0, len(records))
		for _, rec := range records {
			views = append(views, sessionView{
				ID:        rec.ID,
				Client:    rec.Client,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
	}
}

func (s *Server) RevokeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		if err := s.auth.RevokeSession(r.Context(), id.Account.ID, r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the signed-in account's profile.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.identity(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, id.Account.Profile())
	}
}
