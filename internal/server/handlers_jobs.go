package server

import (
	"net/http"
	"time"

	"github.com/jonathan/ink-prompts/internal/types"
)

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathUUID(w, r, "jobId")
	if !ok {
		return
	}

	view, err := s.generator.GetJobStatus(r.Context(), userID, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathUUID(w, r, "jobId")
	if !ok {
		return
	}

	job, err := s.generator.CancelJob(r.Context(), userID, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     job,
	})
}

// handleJobEvents streams job progress as Server-Sent Events until the job
// reaches a terminal status or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathUUID(w, r, "jobId")
	if !ok {
		return
	}

	ctx := r.Context()
	// Ownership and existence errors are reported before the stream opens.
	view, err := s.generator.GetJobStatus(ctx, userID, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	// The stream outlives server.write_timeout while the job runs.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug().Err(err).Msg("cannot clear write deadline for job events")
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.cfg.EventPollInterval)
	defer ticker.Stop()

	var last *types.JobProgress
	var lastStatus types.JobStatus
	for {
		if last == nil || *last != view.Progress || lastStatus != view.Job.Status {
			if err := sse.WriteEvent("progress", view); err != nil {
				return
			}
			p := view.Progress
			last, lastStatus = &p, view.Job.Status
		}
		if view.Job.Status.IsTerminal() {
			sse.WriteComplete(jobID.String(), string(view.Job.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err = s.generator.GetJobStatus(ctx, userID, jobID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("job event stream failed")
				sse.WriteError("failed to load job status")
			}
			return
		}
	}
}
