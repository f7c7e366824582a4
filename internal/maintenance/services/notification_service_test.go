package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	maintDB "iot-maintenance-service/internal/maintenance/db"
	"iot-maintenance-service/internal/maintenance/store"
)

func newTestNotificationService(s *store.Store) *NotificationService {
	// No forwarder and no pool: tests exercise gating, throttling and
	// persistence, not the kafka channel.
	return NewNotificationService(context.Background(), s, nil, nil)
}

func attentionRow(taskID string, next time.Time) *store.TaskAttentionRow {
	due := store.DateOnly(next)
	return &store.TaskAttentionRow{
		TaskID:          taskID,
		TaskName:        "Belt inspection",
		Description:     "Inspect drive belt tension",
		Frequency:       "weekly",
		Priority:        maintDB.PriorityHigh,
		Status:          maintDB.StatusActive,
		NextMaintenance: &due,
		DeviceID:        "device-1",
		DeviceName:      "Conveyor 7",
		OrganizationID:  "org-1",
		AssignedUserID:  "user-1",
		FirstName:       "Grace",
		LastName:        "Hopper",
		Email:           "grace@example.com",
	}
}

func taskNotifications(t *testing.T, s *store.Store, taskID string) []maintDB.Notification {
	var notifications []maintDB.Notification
	require.NoError(t, s.DB.Where("maintenance_task_id = ?", taskID).Order("title").Find(&notifications).Error)
	return notifications
}

func TestSendReminderNumbersSuccessiveReminders(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)
	row := attentionRow("task-1", day)

	assert.True(t, svc.SendReminder(row, day))
	assert.True(t, svc.SendReminder(row, day))
	assert.True(t, svc.SendReminder(row, day))

	notifications := taskNotifications(t, s, "task-1")
	require.Len(t, notifications, 3)
	assert.Equal(t, "Maintenance Reminder #1 - Conveyor 7", notifications[0].Title)
	assert.Equal(t, "Maintenance Reminder #2 - Conveyor 7", notifications[1].Title)
	assert.Equal(t, "Maintenance Reminder #3 - Conveyor 7", notifications[2].Title)
	assert.Contains(t, notifications[0].Message, "Belt inspection")
	assert.Contains(t, notifications[0].Message, "2024-06-15")
	assert.Contains(t, notifications[0].Message, "HIGH")
	assert.JSONEq(t, `{"reminderNumber":"1","taskId":"task-1","reminderType":"MAINTENANCE_REMINDER"}`,
		notifications[0].Metadata)
}

func TestSendReminderEnforcesDailyCap(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)
	row := attentionRow("task-1", day)

	for i := 0; i < MaxRemindersPerDay; i++ {
		require.True(t, svc.SendReminder(row, day))
	}

	// The 4th attempt on the same day is silently skipped.
	assert.False(t, svc.SendReminder(row, day))
	assert.Len(t, taskNotifications(t, s, "task-1"), MaxRemindersPerDay)
	assert.Equal(t, 0, svc.RemainingReminders("task-1", day))

	// Next calendar day the counter resets.
	nextDay := day.AddDate(0, 0, 1)
	assert.Equal(t, MaxRemindersPerDay, svc.RemainingReminders("task-1", nextDay))
	assert.True(t, svc.SendReminder(row, nextDay))
}

func TestSendReminderStampsNotificationsInsideLogicalDay(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)
	row := attentionRow("task-1", day)

	// Dispatch well past the cap for a logical day that is not the wall-clock
	// date. The created rows must land inside that day's counting window, so
	// the cap engages no matter how the pass date relates to time.Now().
	for i := 0; i < 2*MaxRemindersPerDay; i++ {
		svc.SendReminder(row, day)
	}

	notifications := taskNotifications(t, s, "task-1")
	require.Len(t, notifications, MaxRemindersPerDay)
	for _, n := range notifications {
		assert.Equal(t, day, store.DateOnly(n.CreatedAt))
	}
	assert.Equal(t, 0, svc.RemainingReminders("task-1", day))
}

func TestSendReminderThrottleIsPerTask(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)

	rowA := attentionRow("task-a", day)
	rowB := attentionRow("task-b", day)

	for i := 0; i < MaxRemindersPerDay; i++ {
		require.True(t, svc.SendReminder(rowA, day))
	}
	assert.False(t, svc.SendReminder(rowA, day))

	// Exhausting task A leaves task B's budget untouched.
	assert.True(t, svc.SendReminder(rowB, day))
}

func TestPreferenceGateBlocksOptedOutUsers(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)
	row := attentionRow("task-1", day)

	require.NoError(t, s.DB.Create(&maintDB.UserPreferences{UserID: "user-1", MaintenanceAlerts: false}).Error)

	// Blocked regardless of throttle state; nothing is persisted.
	assert.False(t, svc.SendReminder(row, day))
	assert.False(t, svc.SendDailyNotification(row, day))
	assert.Empty(t, taskNotifications(t, s, "task-1"))
	assert.Equal(t, MaxRemindersPerDay, svc.RemainingReminders("task-1", day))
}

func TestDispatchSkipsIncompleteAssignment(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)

	noUser := attentionRow("task-1", day)
	noUser.AssignedUserID = ""
	assert.False(t, svc.SendReminder(noUser, day))
	assert.False(t, svc.SendDailyNotification(noUser, day))

	noEmail := attentionRow("task-2", day)
	noEmail.Email = ""
	assert.False(t, svc.SendReminder(noEmail, day))

	assert.Empty(t, taskNotifications(t, s, "task-1"))
	assert.Empty(t, taskNotifications(t, s, "task-2"))
}

func TestSendDailyNotificationAppliesDefaults(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)

	row := attentionRow("task-1", day)
	row.Priority = ""
	row.Description = ""

	assert.True(t, svc.SendDailyNotification(row, day))

	notifications := taskNotifications(t, s, "task-1")
	require.Len(t, notifications, 1)
	assert.Equal(t, "Maintenance Reminder - Conveyor 7", notifications[0].Title)
	assert.Contains(t, notifications[0].Message, maintDB.PriorityMedium)
	assert.Contains(t, notifications[0].Message, "No description provided")
	assert.Empty(t, notifications[0].Metadata)
	assert.Equal(t, maintDB.CategoryMaintenanceReminder, notifications[0].Category)
}

func TestDailyNotificationCountsTowardReminderBudget(t *testing.T) {
	s := newTestStore(t)
	svc := newTestNotificationService(s)
	day := date(2024, 6, 15)
	row := attentionRow("task-1", day)

	// The daily notification and the reminders share one per-day budget,
	// because both are derived from the same persisted category.
	assert.True(t, svc.SendDailyNotification(row, day))
	assert.Equal(t, MaxRemindersPerDay-1, svc.RemainingReminders("task-1", day))

	assert.True(t, svc.SendReminder(row, day))
	assert.True(t, svc.SendReminder(row, day))
	assert.False(t, svc.SendReminder(row, day))
	assert.False(t, svc.SendDailyNotification(row, day))
}
