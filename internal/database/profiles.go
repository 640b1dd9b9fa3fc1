package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carshine/internal/models"
)

// UpsertProfile mirrors the identity supplied by the auth provider.
func (db *DB) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query := `INSERT INTO profiles (user_id, email, full_name, phone, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(user_id) DO UPDATE SET
                email = excluded.email,
                full_name = CASE WHEN excluded.full_name != '' THEN excluded.full_name ELSE full_name END,
                phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE phone END,
                updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		profile.UserID,
		profile.Email,
		profile.FullName,
		profile.Phone,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT user_id, email, full_name, phone, created_at, updated_at
              FROM profiles WHERE user_id = ?`
	p := &models.Profile{}
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.FullName, &p.Phone, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}
