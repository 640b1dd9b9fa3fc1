package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"carshine/internal/database"
	"carshine/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) UpdateBooking(ctx context.Context, b *models.Booking, v int64) error {
	return m.Called(ctx, b, v).Error(0)
}
func (m *mockRepo) DeleteBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) GetBookedSlots(ctx context.Context, date, exclude string) ([]string, error) {
	args := m.Called(ctx, date, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockRepo) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) GetBookingsByDateRange(ctx context.Context, s, e string) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) GetAllBookings(ctx context.Context, s, e string) ([]*models.BookingWithProfile, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingWithProfile), args.Error(1)
}
func (m *mockRepo) GetDailyBookings(ctx context.Context, s, e string) (map[string][]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*models.Booking), args.Error(1)
}
func (m *mockRepo) UpsertProfile(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockRepo) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}
func (m *mockRepo) CreateProgressUpdate(ctx context.Context, u *models.ProgressUpdate) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockRepo) GetProgressUpdates(ctx context.Context, bookingID string) ([]*models.ProgressUpdate, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ProgressUpdate), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockNotify struct {
	mock.Mock
}

func (m *mockNotify) EnqueueTask(ctx context.Context, tt string, b *models.Booking) error {
	return m.Called(ctx, tt, b).Error(0)
}
func (m *mockNotify) EnqueueProgressUpdate(ctx context.Context, u *models.ProgressUpdate) error {
	return m.Called(ctx, u).Error(0)
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(models.DateFormat)
}

func newBookingService(repo *mockRepo, bus *mockEventBus, worker *mockNotify) *BookingService {
	logger := zerolog.New(io.Discard)
	catalog := NewCatalogService(nil, &logger)
	return NewBookingService(repo, catalog, bus, worker, 365, &logger)
}

func TestValidateBookingDate(t *testing.T) {
	svc := newBookingService(new(mockRepo), new(mockEventBus), new(mockNotify))

	assert.ErrorIs(t, svc.ValidateBookingDate(futureDate(-3)), database.ErrPastDate)
	assert.ErrorIs(t, svc.ValidateBookingDate(futureDate(400)), database.ErrDateTooFar)
	assert.ErrorIs(t, svc.ValidateBookingDate("09/15/2026"), ErrValidation)
	assert.NoError(t, svc.ValidateBookingDate(futureDate(5)))
	assert.NoError(t, svc.ValidateBookingDate(futureDate(0)))
}

func TestOccupiedSlots(t *testing.T) {
	repo := new(mockRepo)
	svc := newBookingService(repo, new(mockEventBus), new(mockNotify))
	ctx := context.Background()
	date := futureDate(5)

	t.Run("ReturnsDirectory", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "").Return([]string{"10:00 AM", "2:00 PM"}, nil).Once()

		slots, err := svc.OccupiedSlots(ctx, date, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00 AM", "2:00 PM"}, slots)
		repo.AssertExpectations(t)
	})

	t.Run("ExcludesBookingBeingEdited", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "b-1").Return([]string{"2:00 PM"}, nil).Once()

		slots, err := svc.OccupiedSlots(ctx, date, "b-1")
		require.NoError(t, err)
		assert.NotContains(t, slots, "10:00 AM")
		repo.AssertExpectations(t)
	})

	t.Run("ReadFailureIsNotAFreeDay", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "").Return(nil, errors.New("db gone")).Once()

		slots, err := svc.OccupiedSlots(ctx, date, "")
		assert.ErrorIs(t, err, ErrSlotUnverified)
		assert.Nil(t, slots)
		repo.AssertExpectations(t)
	})

	// A failed read returns the same nil slice as an empty day at the raw
	// repository level. Only the error distinguishes them, which is why every
	// caller must check it before trusting the slice.
	t.Run("RawReadErrorIsIndistinguishableFromEmptyDay", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "").Return(nil, errors.New("db gone")).Once()

		slots, err := repo.GetBookedSlots(ctx, date, "")
		require.Error(t, err)
		assert.Len(t, slots, 0)
		repo.AssertExpectations(t)
	})
}

func TestIsSlotFree(t *testing.T) {
	repo := new(mockRepo)
	svc := newBookingService(repo, new(mockEventBus), new(mockNotify))
	ctx := context.Background()
	date := futureDate(5)

	t.Run("FreeSlot", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "").Return([]string{"10:00 AM"}, nil).Once()

		free, err := svc.IsSlotFree(ctx, date, "11:00 AM", "")
		require.NoError(t, err)
		assert.True(t, free)
	})

	t.Run("TakenSlot", func(t *testing.T) {
		repo.On("GetBookedSlots", ctx, date, "").Return([]string{"10:00 AM"}, nil).Once()

		free, err := svc.IsSlotFree(ctx, date, "10:00 AM", "")
		require.NoError(t, err)
		assert.False(t, free)
	})

	t.Run("OwnSlotAlwaysFree", func(t *testing.T) {
		// The booking's own row is excluded from the directory, so keeping
		// the original date and slot never conflicts with itself.
		repo.On("GetBookedSlots", ctx, date, "b-1").Return([]string{"2:00 PM"}, nil).Once()

		free, err := svc.IsSlotFree(ctx, date, "10:00 AM", "b-1")
		require.NoError(t, err)
		assert.True(t, free)
	})
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	date := futureDate(5)

	t.Run("Success", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockNotify)
		svc := newBookingService(repo, bus, worker)

		booking := &models.Booking{UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "premium"}

		repo.On("GetBookedSlots", ctx, date, "").Return([]string{}, nil).Once()
		repo.On("CreateBooking", ctx, booking).Return(nil).Once()
		bus.On("PublishJSON", "booking_created", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "booking_created", booking).Return(nil).Once()

		err := svc.CreateBooking(ctx, booking)
		require.NoError(t, err)
		assert.NotEmpty(t, booking.ID)
		assert.Equal(t, models.StatusConfirmed, booking.Status)
		assert.Equal(t, "Premium Detail", booking.ServiceName)
		assert.Equal(t, "$99.99", booking.Price)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
	})

	t.Run("SlotTaken", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		booking := &models.Booking{UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "basic"}
		repo.On("GetBookedSlots", ctx, date, "").Return([]string{"10:00 AM"}, nil).Once()

		err := svc.CreateBooking(ctx, booking)
		assert.ErrorIs(t, err, database.ErrSlotTaken)
		repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("DirectoryDownRejectsSave", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		booking := &models.Booking{UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "basic"}
		repo.On("GetBookedSlots", ctx, date, "").Return(nil, errors.New("db gone")).Once()

		err := svc.CreateBooking(ctx, booking)
		assert.ErrorIs(t, err, ErrSlotUnverified)
		repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("MissingFields", func(t *testing.T) {
		svc := newBookingService(new(mockRepo), new(mockEventBus), new(mockNotify))

		err := svc.CreateBooking(ctx, &models.Booking{UserID: "u1", Date: date})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("BadTimeSlot", func(t *testing.T) {
		svc := newBookingService(new(mockRepo), new(mockEventBus), new(mockNotify))

		err := svc.CreateBooking(ctx, &models.Booking{UserID: "u1", Date: date, TimeSlot: "6:00 PM", ServiceID: "basic"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("UnknownService", func(t *testing.T) {
		svc := newBookingService(new(mockRepo), new(mockEventBus), new(mockNotify))

		err := svc.CreateBooking(ctx, &models.Booking{UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "gold"})
		assert.ErrorIs(t, err, ErrUnknownService)
	})
}

func TestUpdateBooking(t *testing.T) {
	ctx := context.Background()
	date := futureDate(5)
	otherDate := futureDate(6)

	existing := func() *models.Booking {
		return &models.Booking{
			ID: "b-1", UserID: "u1", Date: date, TimeSlot: "10:00 AM",
			ServiceID: "basic", ServiceName: "Basic Wash", Price: "$49.99",
			Status: models.StatusConfirmed, Version: 3,
		}
	}

	t.Run("KeepOwnSlot", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockNotify)
		svc := newBookingService(repo, bus, worker)

		updated := &models.Booking{ID: "b-1", UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "basic", CarMake: "Honda"}

		repo.On("GetBooking", ctx, "b-1").Return(existing(), nil).Once()
		repo.On("GetBookedSlots", ctx, date, "b-1").Return([]string{"2:00 PM"}, nil).Once()
		repo.On("UpdateBooking", ctx, updated, int64(3)).Return(nil).Once()
		bus.On("PublishJSON", "booking_updated", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "booking_updated", updated).Return(nil).Once()

		err := svc.UpdateBooking(ctx, updated, 3)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, updated.Status)
		repo.AssertExpectations(t)
	})

	t.Run("MoveToTakenSlot", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		updated := &models.Booking{ID: "b-1", UserID: "u1", Date: otherDate, TimeSlot: "11:00 AM", ServiceID: "basic"}

		repo.On("GetBooking", ctx, "b-1").Return(existing(), nil).Once()
		repo.On("GetBookedSlots", ctx, otherDate, "b-1").Return([]string{"11:00 AM"}, nil).Once()

		err := svc.UpdateBooking(ctx, updated, 3)
		assert.ErrorIs(t, err, database.ErrSlotTaken)
		repo.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CancelSkipsConflictGuard", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockNotify)
		svc := newBookingService(repo, bus, worker)

		updated := &models.Booking{ID: "b-1", UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "basic", Status: models.StatusCancelled}

		repo.On("GetBooking", ctx, "b-1").Return(existing(), nil).Once()
		repo.On("UpdateBooking", ctx, updated, int64(3)).Return(nil).Once()
		bus.On("PublishJSON", "booking_updated", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "booking_updated", updated).Return(nil).Once()

		err := svc.UpdateBooking(ctx, updated, 3)
		require.NoError(t, err)
		repo.AssertNotCalled(t, "GetBookedSlots", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DirectoryDownRejectsSave", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		updated := &models.Booking{ID: "b-1", UserID: "u1", Date: date, TimeSlot: "11:00 AM", ServiceID: "basic"}

		repo.On("GetBooking", ctx, "b-1").Return(existing(), nil).Once()
		repo.On("GetBookedSlots", ctx, date, "b-1").Return(nil, errors.New("db gone")).Once()

		err := svc.UpdateBooking(ctx, updated, 3)
		assert.ErrorIs(t, err, ErrSlotUnverified)
		repo.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		repo.On("GetBooking", ctx, "missing").Return(nil, database.ErrNotFound).Once()

		err := svc.UpdateBooking(ctx, &models.Booking{ID: "missing", UserID: "u1", Date: date, TimeSlot: "10:00 AM", ServiceID: "basic"}, 0)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestDeleteBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerDeletes", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockNotify)
		svc := newBookingService(repo, bus, worker)

		booking := &models.Booking{ID: "b-1", UserID: "u1"}
		repo.On("GetBooking", ctx, "b-1").Return(booking, nil).Once()
		repo.On("DeleteBooking", ctx, "b-1").Return(nil).Once()
		bus.On("PublishJSON", "booking_deleted", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "booking_deleted", booking).Return(nil).Once()

		err := svc.DeleteBooking(ctx, "b-1", "u1", false)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("ForeignBookingForbidden", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newBookingService(repo, new(mockEventBus), new(mockNotify))

		repo.On("GetBooking", ctx, "b-1").Return(&models.Booking{ID: "b-1", UserID: "u2"}, nil).Once()

		err := svc.DeleteBooking(ctx, "b-1", "u1", false)
		assert.ErrorIs(t, err, ErrForbidden)
		repo.AssertNotCalled(t, "DeleteBooking", mock.Anything, mock.Anything)
	})

	t.Run("AdminDeletesAnyones", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockNotify)
		svc := newBookingService(repo, bus, worker)

		booking := &models.Booking{ID: "b-1", UserID: "u2"}
		repo.On("GetBooking", ctx, "b-1").Return(booking, nil).Once()
		repo.On("DeleteBooking", ctx, "b-1").Return(nil).Once()
		bus.On("PublishJSON", "booking_deleted", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "booking_deleted", booking).Return(nil).Once()

		err := svc.DeleteBooking(ctx, "b-1", "admin", true)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestCatalogService(t *testing.T) {
	logger := zerolog.New(io.Discard)

	t.Run("DefaultsWhenEmpty", func(t *testing.T) {
		catalog := NewCatalogService(nil, &logger)
		assert.Len(t, catalog.Services(), 5)

		svc, ok := catalog.ServiceByID("ceramic")
		require.True(t, ok)
		assert.Equal(t, "$249.99", svc.Price)
	})

	t.Run("UnknownID", func(t *testing.T) {
		catalog := NewCatalogService(nil, &logger)
		_, ok := catalog.ServiceByID("gold")
		assert.False(t, ok)
	})

	t.Run("Reload", func(t *testing.T) {
		catalog := NewCatalogService(nil, &logger)
		catalog.Reload([]models.Service{{ID: "wax", Name: "Wax", Price: "$19.99"}})

		assert.Len(t, catalog.Services(), 1)
		_, ok := catalog.ServiceByID("basic")
		assert.False(t, ok)
	})
}
