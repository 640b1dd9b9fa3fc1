package models

const (
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// TimeSlots is the fixed daily grid of bookable slots, in display order.
var TimeSlots = []string{
	"9:00 AM",
	"10:00 AM",
	"11:00 AM",
	"12:00 PM",
	"1:00 PM",
	"2:00 PM",
	"3:00 PM",
	"4:00 PM",
	"5:00 PM",
}

// IsValidTimeSlot reports whether the label belongs to the daily grid.
func IsValidTimeSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether the status is one of the admin-editable values.
func IsValidStatus(status string) bool {
	switch status {
	case StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const (
	SessionStepOpen       = "open"
	SessionStepSubmitting = "submitting"
)

const (
	// DateFormat is the canonical calendar-day form used everywhere.
	DateFormat = "2006-01-02"

	// DefaultSessionTTL время жизни сессии редактирования в Redis
	DefaultSessionTTL = 30 * 60 // 30 минут в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 20

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах

	// MaxPhotoSize предельный размер фото прогресса
	MaxPhotoSize = 5 * 1024 * 1024

	// DefaultExportRangeMonths количество месяцев для экспорта по умолчанию
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2
)
