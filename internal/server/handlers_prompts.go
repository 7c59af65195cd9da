package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/db"
	"github.com/jonathan/ink-prompts/internal/server/middleware"
	"github.com/jonathan/ink-prompts/internal/types"
)

// handleGeneratePrompts starts a generation job, or reports the active one.
func (s *Server) handleGeneratePrompts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	job, err := s.generator.GeneratePrompts(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   job.ID,
		"status":  job.Status,
		"message": "Prompt generation started",
	})
}

// handleRefreshPrompts starts a new job, refusing while one is active.
func (s *Server) handleRefreshPrompts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	job, err := s.generator.RegeneratePrompts(r.Context(), userID)
	var active *types.ErrActiveJob
	if errors.As(err, &active) {
		s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
			"error": "A generation job is already in progress",
			"jobId": active.JobID,
		})
		return
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   job.ID,
		"status":  job.Status,
		"message": "Prompt refresh started",
	})
}

// handleListPrompts lists the caller's prompts.
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	query, err := parseListQuery(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := query.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	list, err := s.prompts.List(r.Context(), db.NormalizeFilter(query.Filter(userID)))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func parseListQuery(r *http.Request) (*types.ListPromptsQuery, error) {
	q := r.URL.Query()
	query := &types.ListPromptsQuery{}

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Statuses = append(query.Statuses, strings.ToLower(part))
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("limit must be an integer")
		}
		query.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("offset must be an integer")
		}
		query.Offset = n
	}
	return query, nil
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, "status must be one of ready, used, dismissed")
		case "min":
			msgs = append(msgs, field+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, field+" must be at most "+fe.Param())
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	userID, promptID, ok := s.promptParams(w, r)
	if !ok {
		return
	}

	prompt, err := s.prompts.Get(r.Context(), userID, promptID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, prompt)
}

// handleUsePrompt marks a ready prompt used and returns the editor payload.
func (s *Server) handleUsePrompt(w http.ResponseWriter, r *http.Request) {
	userID, promptID, ok := s.promptParams(w, r)
	if !ok {
		return
	}

	prompt, err := s.prompts.Use(r.Context(), userID, promptID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success":    true,
		"prompt":     prompt,
		"editorData": prompt.EditorData(),
	})
}

func (s *Server) handleDismissPrompt(w http.ResponseWriter, r *http.Request) {
	userID, promptID, ok := s.promptParams(w, r)
	if !ok {
		return
	}

	prompt, err := s.prompts.Dismiss(r.Context(), userID, promptID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"prompt":  prompt,
	})
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	userID, promptID, ok := s.promptParams(w, r)
	if !ok {
		return
	}

	if err := s.prompts.Delete(r.Context(), userID, promptID); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// requireUser reads the authenticated user id set by the auth middleware.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	return userID, true
}

func (s *Server) promptParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
