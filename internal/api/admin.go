package api

import (
	"log"
	"net/http"
	"strings"

	"carshine/internal/models"
	"carshine/internal/storage"
)

func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, to, ok := dateRangeParams(w, r)
	if !ok {
		return
	}

	bookings, err := s.deps.Bookings.GetAllBookings(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleAdminBookingByID covers /api/v1/admin/bookings/{id} and
// /api/v1/admin/bookings/{id}/progress.
func (s *HTTPServer) handleAdminBookingByID(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/bookings/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	if sub == "progress" {
		switch r.Method {
		case http.MethodPost:
			s.uploadProgress(w, r, id)
		case http.MethodGet:
			s.listProgress(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if sub != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.updateBooking(w, r, id, identity, true)
	case http.MethodDelete:
		s.deleteBooking(w, r, id, identity, true)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// uploadProgress stores a progress photo, records the update and queues the
// customer notification. A failed notification never unwinds the stored photo.
func (s *HTTPServer) uploadProgress(w http.ResponseWriter, r *http.Request, bookingID string) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}

	booking, err := s.deps.Bookings.GetBooking(r.Context(), bookingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := r.ParseMultipartForm(models.MaxPhotoSize + 1024*1024); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if err := s.deps.Store.EnsureBucket(storage.BucketConfig{Name: progressBucket, Public: true}); err != nil {
		writeError(w, http.StatusInternalServerError, "could not prepare storage bucket")
		return
	}

	url, err := s.deps.Store.SaveProgressPhoto(
		progressBucket, bookingID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update := &models.ProgressUpdate{
		BookingID:  bookingID,
		ImageURL:   url,
		Message:    strings.TrimSpace(r.FormValue("message")),
		CarDetails: booking.CarDetails(),
	}
	if profile, err := s.deps.Repo.GetProfile(r.Context(), booking.UserID); err == nil {
		update.CustomerEmail = profile.Email
	}

	if err := s.deps.Repo.CreateProgressUpdate(r.Context(), update); err != nil {
		writeError(w, http.StatusInternalServerError, "could not record progress update")
		return
	}

	if s.deps.Notify != nil {
		if err := s.deps.Notify.EnqueueProgressUpdate(r.Context(), update); err != nil {
			log.Printf("progress notification enqueue failed for booking %s: %v", bookingID, err)
		}
	}

	writeJSON(w, http.StatusCreated, update)
}

func (s *HTTPServer) listProgress(w http.ResponseWriter, r *http.Request, bookingID string) {
	updates, err := s.deps.Repo.GetProgressUpdates(r.Context(), bookingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// dateRangeParams parses the optional from/to pair; both or neither.
func dateRangeParams(w http.ResponseWriter, r *http.Request) (from, to string, ok bool) {
	from = strings.TrimSpace(r.URL.Query().Get("from"))
	to = strings.TrimSpace(r.URL.Query().Get("to"))
	if (from == "") != (to == "") {
		writeError(w, http.StatusBadRequest, "from and to must be supplied together")
		return "", "", false
	}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := models.ParseDate(d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return "", "", false
		}
	}
	return from, to, true
}
