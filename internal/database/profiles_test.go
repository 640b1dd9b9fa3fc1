package database

import (
	"context"
	"testing"

	"carshine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	userID := uuid.NewString()
	require.NoError(t, db.UpsertProfile(ctx, &models.Profile{
		UserID:   userID,
		Email:    "jane@example.com",
		FullName: "Jane Doe",
		Phone:    "+1234567",
	}))

	p, err := db.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)

	// empty fields on re-upsert do not clobber existing values
	require.NoError(t, db.UpsertProfile(ctx, &models.Profile{
		UserID: userID,
		Email:  "jane.doe@example.com",
	}))

	p, err = db.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", p.Email)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, "+1234567", p.Phone)
}

func TestGetProfileNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProgressUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newTestBooking("2025-06-01", "10:00 AM")
	require.NoError(t, db.CreateBooking(ctx, b))

	u := &models.ProgressUpdate{
		BookingID:     b.ID,
		ImageURL:      "http://localhost:8080/files/progress_photos/progress_1.jpg",
		Message:       "Polish 50% complete",
		CustomerEmail: "jane@example.com",
		CarDetails:    "Toyota Corolla",
	}
	require.NoError(t, db.CreateProgressUpdate(ctx, u))
	assert.NotZero(t, u.ID)

	updates, err := db.GetProgressUpdates(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "Polish 50% complete", updates[0].Message)

	updates, err = db.GetProgressUpdates(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, updates)
}
