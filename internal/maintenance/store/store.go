package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	maintDB "iot-maintenance-service/internal/maintenance/db"
)

// ErrConcurrentUpdate is returned when a conditional task update finds the
// row already modified by a concurrent pass. Callers skip the task; the next
// pass will pick it up with the fresh version.
var ErrConcurrentUpdate = errors.New("maintenance task modified concurrently")

// Store wraps the gorm handle with the queries the scheduler core needs.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// TaskAttentionRow is the named-field projection of the task/device/user join
// used for notification construction. One field per column; rows never cross
// a component boundary as positional slices.
type TaskAttentionRow struct {
	TaskID          string     `gorm:"column:task_id"`
	TaskName        string     `gorm:"column:task_name"`
	Description     string     `gorm:"column:description"`
	Frequency       string     `gorm:"column:frequency"`
	Priority        string     `gorm:"column:priority"`
	Status          string     `gorm:"column:status"`
	NextMaintenance *time.Time `gorm:"column:next_maintenance"`
	DeviceID        string     `gorm:"column:device_id"`
	DeviceName      string     `gorm:"column:device_name"`
	OrganizationID  string     `gorm:"column:organization_id"`
	AssignedUserID  string     `gorm:"column:assigned_user_id"`
	FirstName       string     `gorm:"column:first_name"`
	LastName        string     `gorm:"column:last_name"`
	Email           string     `gorm:"column:email"`
}

// AssignedUserName joins first and last name the way notifications address
// the recipient.
func (r *TaskAttentionRow) AssignedUserName() string {
	return r.FirstName + " " + r.LastName
}

// HasCompleteAssignee reports whether the row carries enough user identity to
// build and address a notification.
func (r *TaskAttentionRow) HasCompleteAssignee() bool {
	return r.AssignedUserID != "" && r.FirstName != "" && r.LastName != "" && r.Email != ""
}

// DateOnly normalizes a timestamp to midnight UTC so calendar-date
// comparisons behave the same regardless of the wall-clock time of a pass.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimestampInDay anchors the current wall-clock time of day inside the given
// calendar day. Rows created for a logical day must carry a created_at within
// that day's counting window, or per-day counts against them come up empty.
func TimestampInDay(day time.Time) time.Time {
	now := time.Now()
	return DateOnly(day).Add(time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond()))
}

// FindTasksByStatus returns all tasks in the given lifecycle status.
func (s *Store) FindTasksByStatus(status string) ([]maintDB.MaintenanceTask, error) {
	var tasks []maintDB.MaintenanceTask
	if err := s.DB.Where("status = ?", status).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tasks with status %s: %w", status, err)
	}
	return tasks, nil
}

// FindTasksDueBefore returns tasks in the given status whose due date is
// strictly before the given day.
func (s *Store) FindTasksDueBefore(status string, day time.Time) ([]maintDB.MaintenanceTask, error) {
	var tasks []maintDB.MaintenanceTask
	err := s.DB.Where("status = ? AND next_maintenance IS NOT NULL AND next_maintenance < ?", status, DateOnly(day)).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s tasks due before %s: %w", status, day.Format("2006-01-02"), err)
	}
	return tasks, nil
}

// FindTasksNeedingAttention returns the join rows for every task that is due
// today or overdue (status ACTIVE or OVERDUE, next_maintenance <= today),
// with device and assigned-user identity denormalized in.
func (s *Store) FindTasksNeedingAttention(today time.Time) ([]TaskAttentionRow, error) {
	var rows []TaskAttentionRow
	err := s.DB.Raw(`
		SELECT m.id AS task_id, m.task_name, m.description, m.frequency,
		       m.priority, m.status, m.next_maintenance,
		       m.device_id, d.name AS device_name, m.organization_id,
		       d.assigned_user_id, u.first_name, u.last_name, u.email
		FROM maintenance_tasks m
		LEFT JOIN devices d ON d.id = m.device_id
		LEFT JOIN users u ON u.id = d.assigned_user_id
		WHERE m.status IN (?, ?) AND m.next_maintenance IS NOT NULL AND m.next_maintenance <= ?`,
		maintDB.StatusActive, maintDB.StatusOverdue, DateOnly(today)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks needing attention: %w", err)
	}
	return rows, nil
}

// UpdateTaskSchedule persists the scheduling fields of a task with an
// optimistic version check. Passes are not mutually exclusive, so a plain
// save could lose updates; the conditional write makes the race observable.
func (s *Store) UpdateTaskSchedule(task *maintDB.MaintenanceTask) error {
	result := s.DB.Model(&maintDB.MaintenanceTask{}).
		Where("id = ? AND version = ?", task.ID, task.Version).
		Updates(map[string]interface{}{
			"next_maintenance": task.NextMaintenance,
			"last_maintenance": task.LastMaintenance,
			"status":           task.Status,
			"version":          task.Version + 1,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update schedule for task %s: %w", task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	task.Version++
	return nil
}

// CreateTask inserts a new maintenance task, assigning an id when absent.
func (s *Store) CreateTask(task *maintDB.MaintenanceTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := s.DB.Create(task).Error; err != nil {
		return fmt.Errorf("failed to create maintenance task: %w", err)
	}
	return nil
}

// AppendHistory writes an audit entry recording the superseded due date.
// Cycle numbers count up per device, mirroring how schedule snapshots are
// reported.
func (s *Store) AppendHistory(task *maintDB.MaintenanceTask, scheduledDate time.Time, reason, snapshotType string) error {
	var maxCycle int64
	err := s.DB.Model(&maintDB.MaintenanceHistoryEntry{}).
		Where("device_id = ?", task.DeviceID).
		Select("COALESCE(MAX(cycle_number), 0)").
		Scan(&maxCycle).Error
	if err != nil {
		return fmt.Errorf("failed to determine next cycle number for device %s: %w", task.DeviceID, err)
	}

	entry := maintDB.MaintenanceHistoryEntry{
		ID:                uuid.NewString(),
		MaintenanceTaskID: task.ID,
		DeviceID:          task.DeviceID,
		TaskName:          task.TaskName,
		ScheduledDate:     DateOnly(scheduledDate),
		CycleNumber:       int(maxCycle) + 1,
		Reason:            reason,
		SnapshotType:      snapshotType,
		CreatedAt:         time.Now(),
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to save maintenance history for task %s: %w", task.ID, err)
	}
	log.Printf("Maintenance history saved for task '%s' cycle %d scheduled %s (%s)",
		task.TaskName, entry.CycleNumber, entry.ScheduledDate.Format("2006-01-02"), reason)
	return nil
}

// CreateNotification persists a notification, assigning an id when absent.
func (s *Store) CreateNotification(n *maintDB.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if err := s.DB.Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// CountRemindersOnDay counts MAINTENANCE_REMINDER notifications created for a
// task on the given calendar day. This backs the reminder throttle: the count
// is derived from persisted notifications, never cached.
func (s *Store) CountRemindersOnDay(taskID string, day time.Time) (int64, error) {
	start := DateOnly(day)
	end := start.AddDate(0, 0, 1)
	var count int64
	err := s.DB.Model(&maintDB.Notification{}).
		Where("maintenance_task_id = ? AND category = ? AND created_at >= ? AND created_at < ?",
			taskID, maintDB.CategoryMaintenanceReminder, start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reminders for task %s: %w", taskID, err)
	}
	return count, nil
}

// MaintenanceRemindersAllowed checks the user's preference gate for the
// maintenance reminder category. A missing preferences row defaults to
// allowed; a read failure also degrades to allowed so a broken preference
// table never silences maintenance alerts.
func (s *Store) MaintenanceRemindersAllowed(userID string) bool {
	var prefs maintDB.UserPreferences
	err := s.DB.First(&prefs, "user_id = ?", userID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Error reading notification preferences for user %s: %v. Using default (allowed).", userID, err)
		}
		return true
	}
	return prefs.MaintenanceAlerts
}
