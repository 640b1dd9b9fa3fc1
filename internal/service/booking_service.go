package service

import (
	"context"
	"fmt"
	"time"

	"carshine/internal/database"
	"carshine/internal/domain"
	"carshine/internal/events"
	"carshine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	repo           domain.Repository
	catalog        domain.CatalogService
	eventBus       domain.EventPublisher
	notifyWorker   domain.NotifyEnqueuer
	maxBookingDays int
	logger         *zerolog.Logger
}

func NewBookingService(repo domain.Repository, catalog domain.CatalogService, eventBus domain.EventPublisher, notifyWorker domain.NotifyEnqueuer, maxBookingDays int, logger *zerolog.Logger) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = 365
	}
	return &BookingService{
		repo:           repo,
		catalog:        catalog,
		eventBus:       eventBus,
		notifyWorker:   notifyWorker,
		maxBookingDays: maxBookingDays,
		logger:         logger,
	}
}

func (s *BookingService) ValidateBookingDate(date string) error {
	day, err := models.ParseDate(date)
	if err != nil {
		return fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}

	today := time.Now().Truncate(24 * time.Hour)
	if day.Before(today.AddDate(0, 0, -1)) {
		return database.ErrPastDate
	}

	maxDate := today.AddDate(0, 0, s.maxBookingDays)
	if day.After(maxDate) {
		return database.ErrDateTooFar
	}

	return nil
}

// OccupiedSlots returns the booked slots for a date. A read failure is
// reported, never swallowed: callers must not treat the day as free when
// the directory could not be consulted.
func (s *BookingService) OccupiedSlots(ctx context.Context, date string, excludeBookingID string) ([]string, error) {
	slots, err := s.repo.GetBookedSlots(ctx, date, excludeBookingID)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("slot directory read failed")
		return nil, fmt.Errorf("%w: %v", ErrSlotUnverified, err)
	}
	return slots, nil
}

// IsSlotFree checks a slot against the directory. The booking being edited is
// excluded, so keeping the original date and slot is always allowed.
func (s *BookingService) IsSlotFree(ctx context.Context, date, slot string, excludeBookingID string) (bool, error) {
	occupied, err := s.OccupiedSlots(ctx, date, excludeBookingID)
	if err != nil {
		return false, err
	}
	for _, taken := range occupied {
		if taken == slot {
			return false, nil
		}
	}
	return true, nil
}

func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.validateFields(booking); err != nil {
		return err
	}
	if err := s.ValidateBookingDate(booking.Date); err != nil {
		return err
	}

	svc, ok := s.catalog.ServiceByID(booking.ServiceID)
	if !ok {
		return ErrUnknownService
	}
	booking.ServiceName = svc.Name
	booking.Price = svc.Price

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}
	if !models.IsValidStatus(booking.Status) {
		return fmt.Errorf("%w: bad status %q", ErrValidation, booking.Status)
	}

	free, err := s.IsSlotFree(ctx, booking.Date, booking.TimeSlot, "")
	if err != nil {
		return err
	}
	if !free {
		return database.ErrSlotTaken
	}

	// The transactional re-check and the unique index still decide the race.
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return err
	}

	s.publishEvent(events.EventBookingCreated, booking, "")
	s.enqueueNotify(ctx, events.EventBookingCreated, booking)

	return nil
}

func (s *BookingService) UpdateBooking(ctx context.Context, booking *models.Booking, fromVersion int64) error {
	existing, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return err
	}

	if err := s.validateFields(booking); err != nil {
		return err
	}
	if err := s.ValidateBookingDate(booking.Date); err != nil {
		return err
	}

	if booking.Status == "" {
		booking.Status = existing.Status
	}
	if !models.IsValidStatus(booking.Status) {
		return fmt.Errorf("%w: bad status %q", ErrValidation, booking.Status)
	}

	if booking.ServiceID != existing.ServiceID {
		svc, ok := s.catalog.ServiceByID(booking.ServiceID)
		if !ok {
			return ErrUnknownService
		}
		booking.ServiceName = svc.Name
		booking.Price = svc.Price
	} else {
		booking.ServiceName = existing.ServiceName
		booking.Price = existing.Price
	}
	booking.UserID = existing.UserID

	// Cancelled bookings release their slot, so the guard only applies to
	// bookings that will keep occupying one.
	if booking.Status != models.StatusCancelled {
		free, err := s.IsSlotFree(ctx, booking.Date, booking.TimeSlot, booking.ID)
		if err != nil {
			return err
		}
		if !free {
			return database.ErrSlotTaken
		}
	}

	if err := s.repo.UpdateBooking(ctx, booking, fromVersion); err != nil {
		return err
	}

	s.publishEvent(events.EventBookingUpdated, booking, "")
	s.enqueueNotify(ctx, events.EventBookingUpdated, booking)

	return nil
}

func (s *BookingService) DeleteBooking(ctx context.Context, id string, userID string, admin bool) error {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !admin && booking.UserID != userID {
		return ErrForbidden
	}

	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}

	s.publishEvent(events.EventBookingDeleted, booking, userID)
	s.enqueueNotify(ctx, events.EventBookingDeleted, booking)

	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	return s.repo.GetUserBookings(ctx, userID)
}

func (s *BookingService) GetAllBookings(ctx context.Context, start, end string) ([]*models.BookingWithProfile, error) {
	return s.repo.GetAllBookings(ctx, start, end)
}

func (s *BookingService) validateFields(booking *models.Booking) error {
	if booking.UserID == "" || booking.Date == "" || booking.TimeSlot == "" || booking.ServiceID == "" {
		return ErrValidation
	}
	if !models.IsValidTimeSlot(booking.TimeSlot) {
		return fmt.Errorf("%w: bad time slot %q", ErrValidation, booking.TimeSlot)
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		Date:        booking.Date,
		TimeSlot:    booking.TimeSlot,
		ServiceID:   booking.ServiceID,
		ServiceName: booking.ServiceName,
		Status:      booking.Status,
		CarDetails:  booking.CarDetails(),
		ChangedBy:   changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueNotify(ctx context.Context, taskType string, booking *models.Booking) {
	if s.notifyWorker == nil {
		return
	}

	if err := s.notifyWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("notify enqueue error")
	}
}
