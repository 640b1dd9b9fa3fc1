package models

import "time"

// Profile mirrors the customer identity supplied by the auth provider.
type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressUpdate records one progress photo sent to a customer.
type ProgressUpdate struct {
	ID            int64     `json:"id"`
	BookingID     string    `json:"booking_id"`
	ImageURL      string    `json:"image_url"`
	Message       string    `json:"message"`
	CustomerEmail string    `json:"customer_email"`
	CarDetails    string    `json:"car_details"`
	CreatedAt     time.Time `json:"created_at"`
}
