package service

import (
	"context"
	"errors"
	"time"

	"carshine/internal/database"
	"carshine/internal/domain"
	"carshine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EditSessionService drives the booking edit dialog. A session moves
// open -> submitting and is deleted on success or close; there is no
// terminal stored step.
type EditSessionService struct {
	states   domain.StateRepository
	bookings domain.BookingService
	logger   *zerolog.Logger
}

func NewEditSessionService(states domain.StateRepository, bookings domain.BookingService, logger *zerolog.Logger) *EditSessionService {
	return &EditSessionService{
		states:   states,
		bookings: bookings,
		logger:   logger,
	}
}

// Open starts an edit dialog for the booking. The occupied slots for the
// booking's date are fetched once and cached in the session; the directory
// is re-consulted only when the date changes.
func (s *EditSessionService) Open(ctx context.Context, userID, bookingID string, admin bool) (*models.EditSession, error) {
	allowed, err := s.states.CheckRateLimit(ctx, "edit_open:"+userID,
		models.RateLimitRequests, models.RateLimitWindow*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("rate limit check failed")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && booking.UserID != userID {
		return nil, ErrForbidden
	}

	occupied, err := s.bookings.OccupiedSlots(ctx, booking.Date, bookingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.EditSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Admin:        admin,
		BookingID:    bookingID,
		OriginalDate: booking.Date,
		OriginalSlot: booking.TimeSlot,
		Version:      booking.Version,
		Step:         models.SessionStepOpen,
		Form: models.EditForm{
			Date:      booking.Date,
			TimeSlot:  booking.TimeSlot,
			ServiceID: booking.ServiceID,
			CarMake:   booking.CarMake,
			CarModel:  booking.CarModel,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.CacheOccupied(booking.Date, occupied)

	if err := s.states.SetSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *EditSessionService) Get(ctx context.Context, userID string) (*models.EditSession, error) {
	session, err := s.states.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

// SetDate switches the dialog to another date. The directory is queried for
// the new date and the chosen slot is dropped if it turns out occupied there.
func (s *EditSessionService) SetDate(ctx context.Context, userID, date string) (*models.EditSession, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.bookings.ValidateBookingDate(date); err != nil {
		return nil, err
	}

	occupied, err := s.bookings.OccupiedSlots(ctx, date, session.BookingID)
	if err != nil {
		return nil, err
	}

	session.Form.Date = date
	session.CacheOccupied(date, occupied)
	if session.Form.TimeSlot != "" && session.SlotCached(date, session.Form.TimeSlot) {
		// The previously chosen slot is taken on the new date.
		session.Form.TimeSlot = ""
	}

	return session, s.save(ctx, session)
}

// SetSlot picks a time slot on the session's current date.
func (s *EditSessionService) SetSlot(ctx context.Context, userID, slot string) (*models.EditSession, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !models.IsValidTimeSlot(slot) {
		return nil, ErrValidation
	}

	if _, cached := session.OccupiedFor(session.Form.Date); !cached {
		occupied, err := s.bookings.OccupiedSlots(ctx, session.Form.Date, session.BookingID)
		if err != nil {
			return nil, err
		}
		session.CacheOccupied(session.Form.Date, occupied)
	}

	if session.SlotCached(session.Form.Date, slot) {
		return nil, database.ErrSlotTaken
	}

	session.Form.TimeSlot = slot
	return session, s.save(ctx, session)
}

// SetService changes the selected detailing service.
func (s *EditSessionService) SetService(ctx context.Context, userID, serviceID string) (*models.EditSession, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	session.Form.ServiceID = serviceID
	return session, s.save(ctx, session)
}

// SetCar updates the vehicle fields.
func (s *EditSessionService) SetCar(ctx context.Context, userID, carMake, carModel string) (*models.EditSession, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	session.Form.CarMake = carMake
	session.Form.CarModel = carModel
	return session, s.save(ctx, session)
}

// SetStatus is the admin-only status override.
func (s *EditSessionService) SetStatus(ctx context.Context, userID, status string) (*models.EditSession, error) {
	session, err := s.openSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !session.Admin {
		return nil, ErrForbidden
	}
	if !models.IsValidStatus(status) {
		return nil, ErrValidation
	}

	session.Form.Status = status
	return session, s.save(ctx, session)
}

// Submit applies the form through the conflict-guarded update. A second
// submit while one is in flight is rejected. On success the session is
// deleted; on failure it reopens so the user can adjust and retry.
func (s *EditSessionService) Submit(ctx context.Context, userID string) (*models.Booking, error) {
	session, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session.Step == models.SessionStepSubmitting {
		return nil, ErrSubmitInProgress
	}

	session.Step = models.SessionStepSubmitting
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:        session.BookingID,
		Date:      session.Form.Date,
		TimeSlot:  session.Form.TimeSlot,
		ServiceID: session.Form.ServiceID,
		CarMake:   session.Form.CarMake,
		CarModel:  session.Form.CarModel,
		Status:    session.Form.Status,
	}

	if err := s.bookings.UpdateBooking(ctx, booking, session.Version); err != nil {
		s.reopen(ctx, session, err)
		return nil, err
	}

	if err := s.states.ClearSession(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear edit session after submit")
	}

	return booking, nil
}

// Close abandons the dialog.
func (s *EditSessionService) Close(ctx context.Context, userID string) error {
	return s.states.ClearSession(ctx, userID)
}

func (s *EditSessionService) openSession(ctx context.Context, userID string) (*models.EditSession, error) {
	session, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session.Step != models.SessionStepOpen {
		return nil, ErrSubmitInProgress
	}
	return session, nil
}

func (s *EditSessionService) reopen(ctx context.Context, session *models.EditSession, cause error) {
	session.Step = models.SessionStepOpen
	if errors.Is(cause, database.ErrSlotTaken) || errors.Is(cause, database.ErrConcurrentModification) {
		// Cached directory state is stale, force a re-query on next pick.
		session.DropOccupied("")
	}
	if err := s.save(ctx, session); err != nil {
		s.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to reopen edit session")
	}
}

func (s *EditSessionService) save(ctx context.Context, session *models.EditSession) error {
	session.UpdatedAt = time.Now()
	return s.states.SetSession(ctx, session)
}
