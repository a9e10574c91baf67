package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/go-admin-auth/auth"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
)

// Error codes returned in the "error" field.
const (
	errorValidationFailed = "validation_failed"
	errorAuthFailed       = "authentication_failed"
	errorAuthFatal        = "authentication_fatal"
	errorTwoFactorOn      = "two_factor_enabled"
	errorTwoFactorOff     = "two_factor_not_enabled"
	errorNotFound         = "not_found"
	errorConflict         = "conflict"
	errorInternal         = "internal_error"
)

type errorResponse struct {
	Status string            `json:"status,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to its response. Token and credential
// detail never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *auth.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorValidationFailed, Fields: ve.Fields})
	case errs.Is(err, auth.ErrFatal):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorAuthFatal})
	case errs.Is(err, auth.ErrAuthFailed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: statusRejected, Error: errorAuthFailed})
	case errs.Is(err, auth.ErrTwoFactorEnabled):
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorTwoFactorOn})
	case errs.Is(err, auth.ErrTwoFactorNotEnabled):
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorTwoFactorOff})
	case errs.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorNotFound})
	case errs.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorConflict})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorInternal})
	}
}

// decodeJSON reads a bounded JSON body into dst. Any failure is a
// validation error on the body.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.GetMaxBodyBytes()))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &auth.ValidationError{Fields: map[string]string{"body": "request body too large"}}
		case errors.Is(err, io.EOF):
			return &auth.ValidationError{Fields: map[string]string{"body": "request body is required"}}
		default:
			return &auth.ValidationError{Fields: map[string]string{"body": "malformed JSON body"}}
		}
	}
	return nil
}

// required reports empty fields as a validation error, or nil.
func required(fields map[string]string) error {
	missing := map[string]string{}
	for name, value := range fields {
		if value == "" {
			missing[name] = "is required"
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &auth.ValidationError{Fields: missing}
}
