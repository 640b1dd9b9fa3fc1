package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carshine/internal/config"
	"carshine/internal/database"
	"carshine/internal/domain"
	"carshine/internal/metrics"
	"carshine/internal/models"
	"carshine/internal/service"
	"carshine/internal/storage"
)

// progressBucket holds the customer-facing progress photos.
const progressBucket = "progress-photos"

// Deps are the collaborators the HTTP layer dispatches into.
type Deps struct {
	Bookings domain.BookingService
	Sessions *service.EditSessionService
	Catalog  domain.CatalogService
	Repo     domain.Repository
	Store    *storage.LocalStore
	Notify   domain.NotifyEnqueuer
}

// HTTPServer exposes the booking API over HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, deps Deps) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, deps: deps}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/api/v1/services", srv.handleServices)
	mux.HandleFunc("/api/v1/slots", srv.handleSlots)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/session", srv.handleSession)
	mux.HandleFunc("/api/v1/session/submit", srv.handleSessionSubmit)
	mux.HandleFunc("/api/v1/admin/bookings", srv.handleAdminBookings)
	mux.HandleFunc("/api/v1/admin/bookings/", srv.handleAdminBookingByID)
	mux.HandleFunc("/api/v1/admin/export", srv.handleExport)
	if deps.Store != nil {
		mux.Handle("/files/", srv.filesHandler())
	}

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": s.deps.Catalog.Services()})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := models.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	exclude := strings.TrimSpace(r.URL.Query().Get("exclude"))

	occupied, err := s.deps.Bookings.OccupiedSlots(r.Context(), date, exclude)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	taken := make(map[string]bool, len(occupied))
	for _, slot := range occupied {
		taken[slot] = true
	}
	free := make([]string, 0, len(models.TimeSlots))
	for _, slot := range models.TimeSlots {
		if !taken[slot] {
			free = append(free, slot)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     date,
		"occupied": occupied,
		"free":     free,
	})
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listUserBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listUserBookings(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity.UserID == "" {
		writeError(w, http.StatusBadRequest, "user identity header is required")
		return
	}

	bookings, err := s.deps.Bookings.GetUserBookings(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

type bookingRequest struct {
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	ServiceID string `json:"service_id"`
	CarMake   string `json:"car_make"`
	CarModel  string `json:"car_model"`
	Status    string `json:"status"`
	Version   int64  `json:"version"`
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity.UserID == "" {
		writeError(w, http.StatusBadRequest, "user identity header is required")
		return
	}

	var body bookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking := &models.Booking{
		UserID:    identity.UserID,
		Date:      body.Date,
		TimeSlot:  body.TimeSlot,
		ServiceID: body.ServiceID,
		CarMake:   body.CarMake,
		CarModel:  body.CarModel,
	}

	if err := s.deps.Bookings.CreateBooking(r.Context(), booking); err != nil {
		metrics.IncBookingOp("create", outcomeFor(err))
		writeServiceError(w, err)
		return
	}
	metrics.IncBookingOp("create", "ok")

	s.upsertProfileFromIdentity(r, identity)
	writeJSON(w, http.StatusCreated, booking)
}

// handleBookingByID covers /api/v1/bookings/{id} and /api/v1/bookings/{id}/edit.
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity.UserID == "" {
		writeError(w, http.StatusBadRequest, "user identity header is required")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	if sub == "edit" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, err := s.deps.Sessions.Open(r.Context(), identity.UserID, id, identity.Admin)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
		return
	}
	if sub != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getBooking(w, r, id, identity)
	case http.MethodPut:
		s.updateBooking(w, r, id, identity, false)
	case http.MethodDelete:
		s.deleteBooking(w, r, id, identity, false)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id string, identity Identity) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if booking.UserID != identity.UserID && !identity.Admin {
		writeError(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) updateBooking(w http.ResponseWriter, r *http.Request, id string, identity Identity, admin bool) {
	var body bookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	existing, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !admin && existing.UserID != identity.UserID {
		writeError(w, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}

	booking := &models.Booking{
		ID:        id,
		Date:      body.Date,
		TimeSlot:  body.TimeSlot,
		ServiceID: body.ServiceID,
		CarMake:   body.CarMake,
		CarModel:  body.CarModel,
	}
	if admin {
		booking.Status = body.Status
	}
	fromVersion := body.Version
	if fromVersion == 0 {
		fromVersion = existing.Version
	}

	if err := s.deps.Bookings.UpdateBooking(r.Context(), booking, fromVersion); err != nil {
		metrics.IncBookingOp("update", outcomeFor(err))
		writeServiceError(w, err)
		return
	}
	metrics.IncBookingOp("update", "ok")
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) deleteBooking(w http.ResponseWriter, r *http.Request, id string, identity Identity, admin bool) {
	if err := s.deps.Bookings.DeleteBooking(r.Context(), id, identity.UserID, admin); err != nil {
		metrics.IncBookingOp("delete", outcomeFor(err))
		writeServiceError(w, err)
		return
	}
	metrics.IncBookingOp("delete", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// upsertProfileFromIdentity keeps the profile row in sync with the forwarded
// identity so admin listings and notifications have a contact email.
func (s *HTTPServer) upsertProfileFromIdentity(r *http.Request, identity Identity) {
	if identity.Email == "" || s.deps.Repo == nil {
		return
	}
	profile := &models.Profile{UserID: identity.UserID, Email: identity.Email}
	if err := s.deps.Repo.UpsertProfile(r.Context(), profile); err != nil {
		log.Printf("profile upsert failed for %s: %v", identity.UserID, err)
	}
}

func (s *HTTPServer) filesHandler() http.Handler {
	fs := http.StripPrefix("/files/", http.FileServer(http.Dir(s.deps.Store.Root())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		// Метаданные бакетов наружу не отдаем.
		if strings.HasSuffix(r.URL.Path, ".bucket.json") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, database.ErrSlotTaken):
		metrics.IncSlotConflict()
		return "conflict"
	case errors.Is(err, database.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFromError(err), err.Error())
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, database.ErrSlotTaken),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, service.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.Is(err, database.ErrPastDate),
		errors.Is(err, database.ErrDateTooFar),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrUnknownService):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrSlotUnverified):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(r.URL.Path, strconv.Itoa(recorder.status))
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
