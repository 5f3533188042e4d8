package http

import (
	"net/http"
	"time"

	applog "mealtrack/internal/log"
)

type sessionBody struct {
	UserID    int64      `json:"user_id"`
	Age       int        `json:"age"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		ErrorResponse(http.StatusServiceUnavailable, "sessions "+errUnavailable.Error()).Write(w)
		return
	}
	sess, ok, err := s.sessions.LoadSession(r.Context())
	if err != nil {
		InternalServerError("failed to load session").Write(w)
		return
	}
	if !ok {
		NotFoundError("no session").Write(w)
		return
	}
	NewJSONResponse().Body(sessionBody{
		UserID:    sess.UserID,
		Age:       sess.Age,
		UpdatedAt: &sess.UpdatedAt,
	}).Write(w)
}

// handleSaveSession stores the user and age. The ledger keeps the scope it
// was started with; the saved user applies from the next start.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		ErrorResponse(http.StatusServiceUnavailable, "sessions "+errUnavailable.Error()).Write(w)
		return
	}
	var body sessionBody
	if err := DecodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if body.UserID < 0 || body.Age < 0 || body.Age > 150 {
		BadRequestError("user_id and age must be non-negative").Write(w)
		return
	}

	sess, err := s.sessions.SaveSession(r.Context(), body.UserID, body.Age)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to save session",
			applog.FieldUserID, body.UserID,
			applog.FieldError, err)
		InternalServerError("failed to save session").Write(w)
		return
	}
	NewJSONResponse().Body(sessionBody{
		UserID:    sess.UserID,
		Age:       sess.Age,
		UpdatedAt: &sess.UpdatedAt,
	}).Write(w)
}
