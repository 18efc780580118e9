package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/recorder"
)

type updateResponse struct {
	recorder.Result
	Error string `json:"error,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.updateVerifier != nil {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).WarnContext(ctx, "missing bearer token for update")
			writeJSONError(w, "missing authentication", http.StatusUnauthorized)
			return
		}
		email, err := s.authenticateToken(ctx, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "update token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(email), []byte(s.updateEmail)) != 1 {
			log.Ctx(ctx).WarnContext(ctx, "update email mismatch", slog.String("got", email), slog.String("want", s.updateEmail))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		log.Ctx(ctx).DebugContext(ctx, "update: authorized", slog.String("email", email))
	}

	date, err := parseDate(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.recorder.Sync(ctx, date)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "update failed", slog.Any("error", err), slog.Int("snapshots", res.Snapshots))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, updateResponse{Result: res, Error: err.Error()})
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "update finished", slog.Int("plants", res.Plants), slog.Int("snapshots", res.Snapshots), slog.Int("faultLogPages", res.FaultLogPages))
	writeJSON(w, updateResponse{Result: res})
}

// authenticateToken verifies an ID token and returns its email claim.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.updateVerifier(ctx, token)
	if err != nil {
		return "", err
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", errors.New("token has no email claim")
	}
	if !claims.EmailVerified {
		return "", errors.New("token email is not verified")
	}
	return claims.Email, nil
}
