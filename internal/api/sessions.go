package api

import (
	"net/http"

	"carshine/internal/metrics"
	"carshine/internal/models"
)

// sessionPatch carries the edit-dialog field updates. Only non-empty fields
// are applied, in form order: date first so a slot pick lands on the new day.
type sessionPatch struct {
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	ServiceID string `json:"service_id"`
	CarMake   string `json:"car_make"`
	CarModel  string `json:"car_model"`
	Status    string `json:"status"`
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity.UserID == "" {
		writeError(w, http.StatusBadRequest, "user identity header is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := s.deps.Sessions.Get(r.Context(), identity.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodPut, http.MethodPatch:
		s.patchSession(w, r, identity)
	case http.MethodDelete:
		if err := s.deps.Sessions.Close(r.Context(), identity.UserID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) patchSession(w http.ResponseWriter, r *http.Request, identity Identity) {
	var body sessionPatch
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	var (
		session *models.EditSession
		err     error
	)
	apply := func(f func() (*models.EditSession, error)) {
		if err != nil {
			return
		}
		session, err = f()
	}

	if body.Date != "" {
		apply(func() (*models.EditSession, error) { return s.deps.Sessions.SetDate(ctx, identity.UserID, body.Date) })
	}
	if body.TimeSlot != "" {
		apply(func() (*models.EditSession, error) { return s.deps.Sessions.SetSlot(ctx, identity.UserID, body.TimeSlot) })
	}
	if body.ServiceID != "" {
		apply(func() (*models.EditSession, error) {
			return s.deps.Sessions.SetService(ctx, identity.UserID, body.ServiceID)
		})
	}
	if body.CarMake != "" || body.CarModel != "" {
		apply(func() (*models.EditSession, error) {
			return s.deps.Sessions.SetCar(ctx, identity.UserID, body.CarMake, body.CarModel)
		})
	}
	if body.Status != "" {
		apply(func() (*models.EditSession, error) { return s.deps.Sessions.SetStatus(ctx, identity.UserID, body.Status) })
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}
	if session == nil {
		// Пустой patch: возвращаем текущее состояние.
		session, err = s.deps.Sessions.Get(ctx, identity.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleSessionSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identity := identityFrom(r.Context())
	if identity.UserID == "" {
		writeError(w, http.StatusBadRequest, "user identity header is required")
		return
	}

	booking, err := s.deps.Sessions.Submit(r.Context(), identity.UserID)
	if err != nil {
		metrics.IncBookingOp("session_submit", outcomeFor(err))
		writeServiceError(w, err)
		return
	}
	metrics.IncBookingOp("session_submit", "ok")
	writeJSON(w, http.StatusOK, booking)
}
