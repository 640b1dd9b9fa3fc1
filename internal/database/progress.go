package database

import (
	"context"
	"fmt"
	"time"

	"carshine/internal/models"
)

func (db *DB) CreateProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error {
	query := `INSERT INTO progress_updates (booking_id, image_url, message, customer_email, car_details, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		update.BookingID,
		update.ImageURL,
		update.Message,
		update.CustomerEmail,
		update.CarDetails,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress update: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	update.ID = id
	update.CreatedAt = now

	return nil
}

func (db *DB) GetProgressUpdates(ctx context.Context, bookingID string) ([]*models.ProgressUpdate, error) {
	query := `SELECT id, booking_id, image_url, message, customer_email, car_details, created_at
              FROM progress_updates WHERE booking_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress updates: %w", err)
	}
	defer rows.Close()

	var updates []*models.ProgressUpdate
	for rows.Next() {
		u := &models.ProgressUpdate{}
		err := rows.Scan(&u.ID, &u.BookingID, &u.ImageURL, &u.Message, &u.CustomerEmail, &u.CarDetails, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress update: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}
