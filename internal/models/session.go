package models

import "time"

// EditForm holds the in-progress booking edit fields.
type EditForm struct {
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	ServiceID string `json:"service_id"`
	CarMake   string `json:"car_make"`
	CarModel  string `json:"car_model"`
	Status    string `json:"status,omitempty"` // admin path only
}

// EditSession is the per-dialog edit state. A session exists only while the
// dialog is open; closing deletes it rather than storing a terminal step.
type EditSession struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Admin        bool                `json:"admin"`
	BookingID    string              `json:"booking_id"`
	OriginalDate string              `json:"original_date"`
	OriginalSlot string              `json:"original_slot"`
	Version      int64               `json:"version"`
	Step         string              `json:"step"`
	Form         EditForm            `json:"form"`
	Occupied     map[string][]string `json:"occupied"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// OccupiedFor returns the cached occupied slots for a date, if fetched.
func (s *EditSession) OccupiedFor(date string) ([]string, bool) {
	if s.Occupied == nil {
		return nil, false
	}
	slots, ok := s.Occupied[date]
	return slots, ok
}

// CacheOccupied stores the occupied slot set for a date.
func (s *EditSession) CacheOccupied(date string, slots []string) {
	if s.Occupied == nil {
		s.Occupied = make(map[string][]string)
	}
	s.Occupied[date] = slots
}

// DropOccupied invalidates cached slots, for all dates when date is empty.
func (s *EditSession) DropOccupied(date string) {
	if s.Occupied == nil {
		return
	}
	if date == "" {
		s.Occupied = make(map[string][]string)
		return
	}
	delete(s.Occupied, date)
}

// SlotCached reports whether the slot is in the cached set for the date.
func (s *EditSession) SlotCached(date, slot string) bool {
	slots, ok := s.OccupiedFor(date)
	if !ok {
		return false
	}
	for _, v := range slots {
		if v == slot {
			return true
		}
	}
	return false
}
