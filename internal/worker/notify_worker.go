package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"carshine/internal/database"
	"carshine/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	TaskBookingCreated = "booking_created"
	TaskBookingUpdated = "booking_updated"
	TaskBookingDeleted = "booking_deleted"
	TaskProgressUpdate = "progress_update"
)

// notifyTaskPayload is persisted in NotifyTask.Payload as JSON.
type notifyTaskPayload struct {
	Booking  *models.Booking        `json:"booking,omitempty"`
	Progress *models.ProgressUpdate `json:"progress,omitempty"`
}

// Notifier delivers messages to the shop managers and the customer.
type Notifier interface {
	NotifyManagers(ctx context.Context, text string) error
	NotifyCustomer(ctx context.Context, email, text string) error
}

// SheetsClient mirrors bookings into the spreadsheet ledger.
type SheetsClient interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	DeleteBookingRow(ctx context.Context, bookingID string) error
}

// NotifyWorker consumes notify_queue tasks and fans them out to telegram
// and the optional sheets mirror. Delivery failures retry with backoff and
// end up on the dead-letter list; they never touch booking state.
type NotifyWorker struct {
	db            *database.DB
	notifier      Notifier
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.NotifyTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *log.Logger
}

// NewNotifyWorker builds a worker with sane defaults. notifier and sheets
// may be nil; nil targets are skipped.
func NewNotifyWorker(db *database.DB, notifier Notifier, sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *log.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		logger = log.Default()
	}

	return &NotifyWorker{
		db:            db,
		notifier:      notifier,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.NotifyTask, 128),
		redisQueueKey: "notify:queue",
		deadLetterKey: "notify:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists a booking notification and schedules it via redis
// or the in-memory queue.
func (w *NotifyWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == "" {
		return errors.New("booking id is required")
	}

	return w.enqueue(ctx, taskType, booking.ID, notifyTaskPayload{Booking: booking})
}

// EnqueueProgressUpdate schedules a customer progress notification.
func (w *NotifyWorker) EnqueueProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error {
	if update == nil || update.BookingID == "" {
		return errors.New("booking id is required")
	}

	return w.enqueue(ctx, TaskProgressUpdate, update.BookingID, notifyTaskPayload{Progress: update})
}

func (w *NotifyWorker) enqueue(ctx context.Context, taskType, bookingID string, payload notifyTaskPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.NotifyTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(payloadBytes),
		Status:    "pending",
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateNotifyTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notify task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Printf("notify_worker: redis push failed, fallback to memory queue: %v", err)
		} else {
			return nil
		}
	}

	// Fallback to in-memory queue if redis missing or failed.
	select {
	case w.queue <- task:
	default:
		w.logger.Printf("notify_worker: in-memory queue full, task %d dropped to polling", task.ID)
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Printf("notify_worker: started")
	defer w.logger.Printf("notify_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingNotifyTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Printf("notify_worker: fetch pending: %v", err)
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *NotifyWorker) tryLocalQueue() (models.NotifyTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotifyTask{}, false
	}
}

func (w *NotifyWorker) tryRedis(ctx context.Context) (models.NotifyTask, bool) {
	if w.redis == nil {
		return models.NotifyTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.NotifyTask{}, false
		}
		w.logger.Printf("notify_worker: redis BRPOP error: %v", err)
		return models.NotifyTask{}, false
	}
	if len(res) != 2 {
		return models.NotifyTask{}, false
	}
	var task models.NotifyTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Printf("notify_worker: decode redis task: %v", err)
		return models.NotifyTask{}, false
	}
	return task, true
}

func (w *NotifyWorker) processTask(ctx context.Context, task *models.NotifyTask) {
	var payload notifyTaskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateNotifyTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Printf("notify_worker: mark completed %d: %v", task.ID, err)
	}
}

func (w *NotifyWorker) handleTask(ctx context.Context, taskType string, payload notifyTaskPayload) error {
	switch taskType {
	case TaskBookingCreated, TaskBookingUpdated, TaskBookingDeleted:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.handleBookingTask(ctx, taskType, payload.Booking)
	case TaskProgressUpdate:
		if payload.Progress == nil {
			return errors.New("progress payload missing")
		}
		return w.handleProgressTask(ctx, payload.Progress)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *NotifyWorker) handleBookingTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if w.notifier != nil {
		if err := w.notifier.NotifyManagers(ctx, bookingMessage(taskType, booking)); err != nil {
			return fmt.Errorf("notify managers: %w", err)
		}
	}

	if w.sheets == nil {
		return nil
	}
	switch taskType {
	case TaskBookingDeleted:
		return w.sheets.DeleteBookingRow(ctx, booking.ID)
	default:
		return w.sheets.UpsertBooking(ctx, booking)
	}
}

func (w *NotifyWorker) handleProgressTask(ctx context.Context, update *models.ProgressUpdate) error {
	if w.notifier == nil {
		return nil
	}

	text := fmt.Sprintf("Progress update for your %s: %s\n%s", update.CarDetails, update.Message, update.ImageURL)
	if update.CustomerEmail != "" {
		if err := w.notifier.NotifyCustomer(ctx, update.CustomerEmail, text); err != nil {
			return fmt.Errorf("notify customer: %w", err)
		}
	}
	return w.notifier.NotifyManagers(ctx, fmt.Sprintf("Progress photo sent for booking %s", update.BookingID))
}

func bookingMessage(taskType string, b *models.Booking) string {
	var verb string
	switch taskType {
	case TaskBookingCreated:
		verb = "New booking"
	case TaskBookingUpdated:
		verb = "Booking updated"
	case TaskBookingDeleted:
		verb = "Booking cancelled"
	}

	msg := fmt.Sprintf("%s: %s on %s at %s", verb, b.ServiceName, b.Date, b.TimeSlot)
	if car := b.CarDetails(); car != "" {
		msg += fmt.Sprintf(" (%s)", car)
	}
	if b.Status != "" {
		msg += fmt.Sprintf(", status %s", b.Status)
	}
	return msg
}

func (w *NotifyWorker) retryOrFail(ctx context.Context, task *models.NotifyTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateNotifyTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Printf("notify_worker: mark failed %d: %v", task.ID, err)
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateNotifyTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Printf("notify_worker: mark retry %d: %v", task.ID, err)
	}
}

func (w *NotifyWorker) failTask(ctx context.Context, task *models.NotifyTask, err error) {
	if err := w.db.UpdateNotifyTaskStatus(ctx, task.ID, "failed", err.Error(), nil); err != nil {
		w.logger.Printf("notify_worker: mark failed %d: %v", task.ID, err)
	}
	w.pushDeadLetter(ctx, task)
}

func (w *NotifyWorker) pushRedis(ctx context.Context, task models.NotifyTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, task *models.NotifyTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Printf("notify_worker: encode deadletter %d: %v", task.ID, err)
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Printf("notify_worker: deadletter push %d: %v", task.ID, err)
	}
}
