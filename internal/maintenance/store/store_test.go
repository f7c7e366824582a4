package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	maintDB "iot-maintenance-service/internal/maintenance/db"
)

func setupTestStore(t *testing.T) *Store {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test_store.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(
		&maintDB.MaintenanceTask{}, &maintDB.MaintenanceHistoryEntry{},
		&maintDB.Notification{}, &maintDB.UserPreferences{},
		&maintDB.User{}, &maintDB.Device{},
	))
	return NewStore(gormDB)
}

func seedTask(t *testing.T, s *Store, id, deviceID, status string, next time.Time) *maintDB.MaintenanceTask {
	due := DateOnly(next)
	task := &maintDB.MaintenanceTask{
		ID:              id,
		DeviceID:        deviceID,
		OrganizationID:  "org-1",
		TaskName:        "Task " + id,
		Frequency:       "weekly",
		NextMaintenance: &due,
		Status:          status,
		Priority:        maintDB.PriorityHigh,
	}
	require.NoError(t, s.CreateTask(task))
	return task
}

func TestFindTasksNeedingAttentionJoinsDeviceAndUser(t *testing.T) {
	s := setupTestStore(t)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.DB.Create(&maintDB.User{ID: "user-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}).Error)
	require.NoError(t, s.DB.Create(&maintDB.Device{ID: "device-1", Name: "Pump A", OrganizationID: "org-1", AssignedUserID: "user-1"}).Error)

	seedTask(t, s, "due-today", "device-1", maintDB.StatusActive, today)
	seedTask(t, s, "overdue", "device-1", maintDB.StatusOverdue, today.AddDate(0, 0, -3))
	seedTask(t, s, "future", "device-1", maintDB.StatusActive, today.AddDate(0, 0, 5))
	seedTask(t, s, "completed", "device-1", maintDB.StatusCompleted, today.AddDate(0, 0, -1))

	rows, err := s.FindTasksNeedingAttention(today)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ids := []string{rows[0].TaskID, rows[1].TaskID}
	assert.ElementsMatch(t, []string{"due-today", "overdue"}, ids)

	for _, row := range rows {
		assert.Equal(t, "Pump A", row.DeviceName)
		assert.Equal(t, "user-1", row.AssignedUserID)
		assert.Equal(t, "Ada Lovelace", row.AssignedUserName())
		assert.Equal(t, "ada@example.com", row.Email)
		assert.True(t, row.HasCompleteAssignee())
	}
}

func TestFindTasksNeedingAttentionWithoutAssignedUser(t *testing.T) {
	s := setupTestStore(t)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.DB.Create(&maintDB.Device{ID: "device-2", Name: "Pump B", OrganizationID: "org-1"}).Error)
	seedTask(t, s, "unassigned", "device-2", maintDB.StatusActive, today)

	rows, err := s.FindTasksNeedingAttention(today)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasCompleteAssignee())
	assert.Empty(t, rows[0].AssignedUserID)
}

func TestUpdateTaskScheduleDetectsConcurrentModification(t *testing.T) {
	s := setupTestStore(t)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	task := seedTask(t, s, "task-1", "device-1", maintDB.StatusActive, today)

	// First writer wins and bumps the version.
	next := DateOnly(today.AddDate(0, 0, 7))
	task.NextMaintenance = &next
	require.NoError(t, s.UpdateTaskSchedule(task))
	assert.Equal(t, 1, task.Version)

	// A stale copy, still at version 0, must not overwrite.
	stale := *task
	stale.Version = 0
	stale.Status = maintDB.StatusOverdue
	err := s.UpdateTaskSchedule(&stale)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	var fresh maintDB.MaintenanceTask
	require.NoError(t, s.DB.First(&fresh, "id = ?", "task-1").Error)
	assert.Equal(t, maintDB.StatusActive, fresh.Status)
	assert.Equal(t, 1, fresh.Version)
}

func TestAppendHistoryAssignsCycleNumbersPerDevice(t *testing.T) {
	s := setupTestStore(t)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	taskA := seedTask(t, s, "task-a", "device-1", maintDB.StatusActive, today)
	taskB := seedTask(t, s, "task-b", "device-2", maintDB.StatusActive, today)

	require.NoError(t, s.AppendHistory(taskA, today, "Overdue task rescheduled", "UPDATE"))
	require.NoError(t, s.AppendHistory(taskA, today.AddDate(0, 0, 7), "Task due today - rescheduled", "UPDATE"))
	require.NoError(t, s.AppendHistory(taskB, today, "Overdue task rescheduled", "UPDATE"))

	var entries []maintDB.MaintenanceHistoryEntry
	require.NoError(t, s.DB.Where("device_id = ?", "device-1").Order("cycle_number").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].CycleNumber)
	assert.Equal(t, 2, entries[1].CycleNumber)

	var entryB maintDB.MaintenanceHistoryEntry
	require.NoError(t, s.DB.First(&entryB, "device_id = ?", "device-2").Error)
	assert.Equal(t, 1, entryB.CycleNumber)
}

func TestTimestampInDayFallsWithinDayBounds(t *testing.T) {
	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	ts := TimestampInDay(day)
	assert.False(t, ts.Before(day))
	assert.True(t, ts.Before(day.AddDate(0, 0, 1)))
	assert.Equal(t, day, DateOnly(ts))
}

func TestCountRemindersOnDayRespectsDayBounds(t *testing.T) {
	s := setupTestStore(t)
	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	createReminder := func(id string, createdAt time.Time) {
		require.NoError(t, s.DB.Create(&maintDB.Notification{
			ID:                id,
			UserID:            "user-1",
			MaintenanceTaskID: "task-1",
			Category:          maintDB.CategoryMaintenanceReminder,
			CreatedAt:         createdAt,
		}).Error)
	}

	createReminder("n1", day.Add(2*time.Hour))
	createReminder("n2", day.Add(10*time.Hour))
	createReminder("n3", day.AddDate(0, 0, -1).Add(23*time.Hour)) // yesterday
	createReminder("n4", day.AddDate(0, 0, 1))                    // tomorrow

	count, err := s.CountRemindersOnDay("task-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Other categories never count toward the throttle.
	require.NoError(t, s.DB.Create(&maintDB.Notification{
		ID: "n5", UserID: "user-1", MaintenanceTaskID: "task-1",
		Category: "DEVICE_OFFLINE", CreatedAt: day.Add(3 * time.Hour),
	}).Error)
	count, err = s.CountRemindersOnDay("task-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMaintenanceRemindersAllowedDefaults(t *testing.T) {
	s := setupTestStore(t)

	// No preferences row: allowed by default.
	assert.True(t, s.MaintenanceRemindersAllowed("user-without-prefs"))

	require.NoError(t, s.DB.Create(&maintDB.UserPreferences{UserID: "user-opt-out", MaintenanceAlerts: false}).Error)
	assert.False(t, s.MaintenanceRemindersAllowed("user-opt-out"))

	require.NoError(t, s.DB.Create(&maintDB.UserPreferences{UserID: "user-opt-in", MaintenanceAlerts: true}).Error)
	assert.True(t, s.MaintenanceRemindersAllowed("user-opt-in"))
}
