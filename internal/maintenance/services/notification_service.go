package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	maintDB "iot-maintenance-service/internal/maintenance/db"
	"iot-maintenance-service/internal/maintenance/events"
	"iot-maintenance-service/internal/maintenance/store"
	"iot-maintenance-service/pkg/validation"
)

// MaxRemindersPerDay caps reminder notifications per task per calendar day.
const MaxRemindersPerDay = 3

const forwardTimeout = 10 * time.Second

// reminderMetadataSchema validates the metadata attached to reminder
// notifications before it is persisted.
const reminderMetadataSchema = `{
	"type": "object",
	"properties": {
		"reminderNumber": {"type": "string", "pattern": "^[0-9]+$"},
		"taskId": {"type": "string", "minLength": 1},
		"reminderType": {"type": "string"}
	},
	"required": ["reminderNumber", "taskId", "reminderType"]
}`

// NotificationService builds, gates, persists and forwards maintenance
// notifications for task/user pairs.
type NotificationService struct {
	Store      *store.Store
	Forwarder  *kafka.Writer // nil disables channel forwarding
	Pool       *ForwardPool  // nil runs forwards inline
	appContext context.Context
}

func NewNotificationService(ctx context.Context, s *store.Store, forwarder *kafka.Writer, pool *ForwardPool) *NotificationService {
	return &NotificationService{Store: s, Forwarder: forwarder, Pool: pool, appContext: ctx}
}

// RemainingReminders reports how many reminders the task may still receive on
// the given calendar day. Derived from the persisted notification count, so
// it must be re-read immediately before each send.
func (n *NotificationService) RemainingReminders(taskID string, day time.Time) int {
	count, err := n.Store.CountRemindersOnDay(taskID, day)
	if err != nil {
		log.Printf("Error counting reminders for task %s: %v. Treating as exhausted.", taskID, err)
		return 0
	}
	remaining := MaxRemindersPerDay - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// SendDailyNotification dispatches the once-daily notification for a task
// due today or overdue. Returns true only when a notification was created.
func (n *NotificationService) SendDailyNotification(row *store.TaskAttentionRow, day time.Time) bool {
	if !n.assigneeComplete(row) {
		return false
	}
	if n.RemainingReminders(row.TaskID, day) == 0 {
		log.Printf("Task '%s' has already received %d reminders today, skipping daily notification",
			row.TaskName, MaxRemindersPerDay)
		return false
	}

	notification := n.buildNotification(row, day, 0)
	return n.createAndForward(row, notification, 0)
}

// SendReminder dispatches the next reminder for a task, respecting the
// per-day cap. The counter is re-queried here, right before the send, so
// overlapping passes cannot push a task past the cap by reusing a stale read.
func (n *NotificationService) SendReminder(row *store.TaskAttentionRow, day time.Time) bool {
	if !n.assigneeComplete(row) {
		return false
	}

	remaining := n.RemainingReminders(row.TaskID, day)
	if remaining == 0 {
		log.Printf("Task '%s' has already received %d reminders today, skipping",
			row.TaskName, MaxRemindersPerDay)
		return false
	}
	reminderNumber := MaxRemindersPerDay - remaining + 1

	notification := n.buildNotification(row, day, reminderNumber)
	if !n.createAndForward(row, notification, reminderNumber) {
		return false
	}
	log.Printf("Maintenance reminder #%d sent successfully for user: %s, device: %s, task: %s",
		reminderNumber, row.AssignedUserName(), row.DeviceName, row.TaskName)
	return true
}

func (n *NotificationService) assigneeComplete(row *store.TaskAttentionRow) bool {
	if row.HasCompleteAssignee() {
		return true
	}
	if row.AssignedUserID == "" {
		log.Printf("Skipping maintenance notification - no assigned user for device: %s", row.DeviceName)
	} else {
		log.Printf("Skipping maintenance notification - missing user details for user: %s", row.AssignedUserID)
	}
	return false
}

// buildNotification renders the notification payload. reminderNumber 0 means
// the plain daily notification; >= 1 carries the reminder ordinal in the
// title and metadata.
func (n *NotificationService) buildNotification(row *store.TaskAttentionRow, day time.Time, reminderNumber int) *maintDB.Notification {
	priority := row.Priority
	if priority == "" {
		priority = maintDB.PriorityMedium
	}
	description := row.Description
	if description == "" {
		description = "No description provided"
	}
	dueDate := store.DateOnly(day)
	if row.NextMaintenance != nil {
		dueDate = store.DateOnly(*row.NextMaintenance)
	}

	var title, message string
	if reminderNumber > 0 {
		title = fmt.Sprintf("Maintenance Reminder #%d - %s", reminderNumber, row.DeviceName)
		message = fmt.Sprintf(
			"This is reminder #%d for your maintenance task:\n\n"+
				"Device: %s\nTask: %s\nDue Date: %s\nPriority: %s\nDescription: %s\n\n"+
				"Please complete the maintenance task as soon as possible.\n"+
				"You will receive up to %d reminders every 2 hours until completed.",
			reminderNumber, row.DeviceName, row.TaskName, dueDate.Format("2006-01-02"),
			priority, description, MaxRemindersPerDay)
	} else {
		title = "Maintenance Reminder - " + row.DeviceName
		message = fmt.Sprintf(
			"Your device requires maintenance:\n\n"+
				"Device: %s\nTask: %s\nDue Date: %s\nPriority: %s\nDescription: %s\n\n"+
				"Please complete the maintenance task as soon as possible.",
			row.DeviceName, row.TaskName, dueDate.Format("2006-01-02"), priority, description)
	}

	notification := &maintDB.Notification{
		ID:                uuid.NewString(),
		UserID:            row.AssignedUserID,
		OrganizationID:    row.OrganizationID,
		DeviceID:          row.DeviceID,
		MaintenanceTaskID: row.TaskID,
		Title:             title,
		Message:           message,
		Category:          maintDB.CategoryMaintenanceReminder,
		// Stamped inside the logical day of the pass, not time.Now(): the
		// reminder throttle counts created_at within [day, day+1), so a
		// notification created for `day` must land in that window.
		CreatedAt: store.TimestampInDay(day),
	}

	if reminderNumber > 0 {
		metadata, err := json.Marshal(map[string]string{
			"reminderNumber": strconv.Itoa(reminderNumber),
			"taskId":         row.TaskID,
			"reminderType":   maintDB.CategoryMaintenanceReminder,
		})
		if err == nil {
			if vErr := validation.ValidateJSONWithSchema(reminderMetadataSchema, string(metadata)); vErr != nil {
				log.Printf("Reminder metadata failed schema validation for task %s: %v. Dropping metadata.", row.TaskID, vErr)
			} else {
				notification.Metadata = string(metadata)
			}
		}
	}
	return notification
}

// createAndForward applies the preference gate, persists the notification and
// hands the rendered payload to the forward pool. Forward failures are logged
// only; the created notification stands.
func (n *NotificationService) createAndForward(row *store.TaskAttentionRow, notification *maintDB.Notification, reminderNumber int) bool {
	if !n.Store.MaintenanceRemindersAllowed(row.AssignedUserID) {
		log.Printf("Maintenance notification blocked by user preferences for user: %s", row.AssignedUserName())
		return false
	}

	if err := n.Store.CreateNotification(notification); err != nil {
		log.Printf("Failed to create maintenance notification for user %s, task '%s': %v",
			row.AssignedUserID, row.TaskName, err)
		return false
	}
	log.Printf("Created maintenance notification for user: %s for task: %s", row.AssignedUserName(), row.TaskName)

	if n.Forwarder != nil {
		payload := events.MaintenanceAlertPayload{
			NotificationID: notification.ID,
			TaskID:         row.TaskID,
			TaskName:       row.TaskName,
			DeviceID:       row.DeviceID,
			DeviceName:     row.DeviceName,
			OrganizationID: row.OrganizationID,
			UserID:         row.AssignedUserID,
			UserName:       row.AssignedUserName(),
			Email:          row.Email,
			Title:          notification.Title,
			Message:        notification.Message,
			ReminderNumber: reminderNumber,
		}
		if n.Pool != nil {
			n.Pool.Submit(func() { n.forwardAlert(payload) })
		} else {
			n.forwardAlert(payload)
		}
	}
	return true
}

func (n *NotificationService) forwardAlert(payload events.MaintenanceAlertPayload) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling maintenance alert payload for task %s: %v", payload.TaskID, err)
		return
	}
	ctx := n.appContext
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(payload.TaskID), Value: payloadBytes}
	if err := n.Forwarder.WriteMessages(writeCtx, msg); err != nil {
		// Best-effort: the persisted notification is not rolled back.
		log.Printf("Maintenance alert forward failed for user: %s, task: %s - %v",
			payload.UserName, payload.TaskName, err)
		return
	}
	log.Printf("Maintenance alert forwarded for user: %s, task: %s", payload.UserName, payload.TaskName)
}
