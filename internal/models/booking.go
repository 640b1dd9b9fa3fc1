package models

import "time"

type Booking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"` // YYYY-MM-DD, no time-of-day component
	TimeSlot    string    `json:"time_slot"`
	ServiceID   string    `json:"service_id"`
	ServiceName string    `json:"service_name"`
	Price       string    `json:"price"`
	CarMake     string    `json:"car_make"`
	CarModel    string    `json:"car_model"`
	Status      string    `json:"status"` // confirmed, completed, cancelled
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version"`
}

// BookingWithProfile joins the customer profile for the admin listing.
type BookingWithProfile struct {
	Booking
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// ParseDate validates the canonical YYYY-MM-DD form.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateFormat, date)
}

// CarDetails renders the vehicle description used in notifications.
func (b *Booking) CarDetails() string {
	if b.CarMake == "" && b.CarModel == "" {
		return ""
	}
	if b.CarModel == "" {
		return b.CarMake
	}
	return b.CarMake + " " + b.CarModel
}
