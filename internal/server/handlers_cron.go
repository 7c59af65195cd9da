package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/jonathan/ink-prompts/internal/server/middleware"
)

// handleCronGenerate runs the daily sweep for a scheduler calling in with
// the shared cron secret.
func (s *Server) handleCronGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCron(r) {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// A dropped cron connection must not cut the sweep short.
	result, err := s.generator.RunDailyGenerationForAllUsers(context.WithoutCancel(r.Context()))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Daily prompt generation completed",
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) authorizeCron(r *http.Request) bool {
	if s.cfg.CronSecret == "" {
		if s.cfg.DevMode {
			return true
		}
		s.logger.Error().Msg("cron secret is not configured; rejecting cron request")
		return false
	}

	token, ok := middleware.BearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CronSecret)) == 1
}
