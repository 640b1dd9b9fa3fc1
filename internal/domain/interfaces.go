package domain

import (
	"context"
	"time"

	"carshine/internal/models"
)

type Repository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking, fromVersion int64) error
	DeleteBooking(ctx context.Context, id string) error
	GetBookedSlots(ctx context.Context, date string, excludeBookingID string) ([]string, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end string) ([]*models.Booking, error)
	GetAllBookings(ctx context.Context, start, end string) ([]*models.BookingWithProfile, error)
	GetDailyBookings(ctx context.Context, start, end string) (map[string][]*models.Booking, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	CreateProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error
	GetProgressUpdates(ctx context.Context, bookingID string) ([]*models.ProgressUpdate, error)
}

type StateRepository interface {
	GetSession(ctx context.Context, userID string) (*models.EditSession, error)
	SetSession(ctx context.Context, session *models.EditSession) error
	ClearSession(ctx context.Context, userID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type NotifyEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
	EnqueueProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error
}

type BookingService interface {
	ValidateBookingDate(date string) error
	OccupiedSlots(ctx context.Context, date string, excludeBookingID string) ([]string, error)
	IsSlotFree(ctx context.Context, date, slot string, excludeBookingID string) (bool, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking, fromVersion int64) error
	DeleteBooking(ctx context.Context, id string, userID string, admin bool) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	GetAllBookings(ctx context.Context, start, end string) ([]*models.BookingWithProfile, error)
}

type CatalogService interface {
	Services() []models.Service
	ServiceByID(id string) (*models.Service, bool)
}
