package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carshine/internal/models"
)

const bookingColumns = `id, user_id, date, time_slot, service_id, service_name,
                 price, car_make, car_model, status, created_at, updated_at, version`

// GetBookedSlots returns the time slots occupied on a date, excluding
// cancelled bookings and, when excludeBookingID is non-empty, the booking
// being edited.
func (db *DB) GetBookedSlots(ctx context.Context, date string, excludeBookingID string) ([]string, error) {
	query := `SELECT time_slot FROM bookings WHERE date = ? AND status != ?`
	args := []interface{}{date, models.StatusCancelled}
	if excludeBookingID != "" {
		query += ` AND id != ?`
		args = append(args, excludeBookingID)
	}
	query += ` ORDER BY time_slot`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read booked slots: %w", err)
	}
	return slots, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b := &models.Booking{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.Date, &b.TimeSlot, &b.ServiceID, &b.ServiceName,
		&b.Price, &b.CarMake, &b.CarModel, &b.Status, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// CreateBooking inserts a new booking inside a transaction, re-checking the
// slot before the write. The partial unique index backs the check.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taken, err := slotTakenTx(ctx, tx, booking.Date, booking.TimeSlot, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotTaken
	}

	now := time.Now()
	query := `INSERT INTO bookings (
				id, user_id, date, time_slot, service_id, service_name,
				price, car_make, car_model, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		booking.ID,
		booking.UserID,
		booking.Date,
		booking.TimeSlot,
		booking.ServiceID,
		booking.ServiceName,
		booking.Price,
		booking.CarMake,
		booking.CarModel,
		booking.Status,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

// UpdateBooking applies the full editable field set, re-checking the target
// slot inside the transaction with the booking itself excluded. Version is
// checked when fromVersion > 0.
func (db *DB) UpdateBooking(ctx context.Context, booking *models.Booking, fromVersion int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taken, err := slotTakenTx(ctx, tx, booking.Date, booking.TimeSlot, booking.ID)
	if err != nil {
		return err
	}
	if taken && booking.Status != models.StatusCancelled {
		return ErrSlotTaken
	}

	now := time.Now()
	query := `UPDATE bookings SET date = ?, time_slot = ?, service_id = ?, service_name = ?,
				price = ?, car_make = ?, car_model = ?, status = ?,
				version = version + 1, updated_at = ? WHERE id = ?`
	args := []interface{}{
		booking.Date, booking.TimeSlot, booking.ServiceID, booking.ServiceName,
		booking.Price, booking.CarMake, booking.CarModel, booking.Status,
		now, booking.ID,
	}
	if fromVersion > 0 {
		query += ` AND version = ?`
		args = append(args, fromVersion)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if fromVersion > 0 {
			return ErrConcurrentModification
		}
		return ErrNotFound
	}

	booking.UpdatedAt = now
	if fromVersion > 0 {
		booking.Version = fromVersion + 1
	}

	return tx.Commit()
}

// DeleteBooking removes the record unconditionally. Deletion never creates
// a conflict, so no slot check is needed.
func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY date ASC, time_slot ASC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date >= ? AND date <= ? ORDER BY date ASC, time_slot ASC`
	rows, err := db.QueryContext(ctx, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

func (db *DB) GetAllBookings(ctx context.Context, startDate, endDate string) ([]*models.BookingWithProfile, error) {
	query := `SELECT b.id, b.user_id, b.date, b.time_slot, b.service_id, b.service_name,
                 b.price, b.car_make, b.car_model, b.status, b.created_at, b.updated_at, b.version,
                 COALESCE(p.full_name, ''), COALESCE(p.email, '')
              FROM bookings b LEFT JOIN profiles p ON p.user_id = b.user_id`
	var args []interface{}
	if startDate != "" && endDate != "" {
		query += ` WHERE b.date >= ? AND b.date <= ?`
		args = append(args, startDate, endDate)
	}
	query += ` ORDER BY b.date ASC, b.time_slot ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.BookingWithProfile
	for rows.Next() {
		b := &models.BookingWithProfile{}
		err := rows.Scan(
			&b.ID, &b.UserID, &b.Date, &b.TimeSlot, &b.ServiceID, &b.ServiceName,
			&b.Price, &b.CarMake, &b.CarModel, &b.Status, &b.CreatedAt, &b.UpdatedAt, &b.Version,
			&b.CustomerName, &b.CustomerEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetDailyBookings groups bookings in the range by date key.
func (db *DB) GetDailyBookings(ctx context.Context, startDate, endDate string) (map[string][]*models.Booking, error) {
	bookings, err := db.GetBookingsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	daily := make(map[string][]*models.Booking)
	for _, b := range bookings {
		daily[b.Date] = append(daily[b.Date], b)
	}
	return daily, nil
}

func slotTakenTx(ctx context.Context, tx *sql.Tx, date, slot, excludeBookingID string) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE date = ? AND time_slot = ? AND status != ?`
	args := []interface{}{date, slot, models.StatusCancelled}
	if excludeBookingID != "" {
		query += ` AND id != ?`
		args = append(args, excludeBookingID)
	}

	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check slot in tx: %w", err)
	}
	return count > 0, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		err := rows.Scan(
			&b.ID, &b.UserID, &b.Date, &b.TimeSlot, &b.ServiceID, &b.ServiceName,
			&b.Price, &b.CarMake, &b.CarModel, &b.Status, &b.CreatedAt, &b.UpdatedAt, &b.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
