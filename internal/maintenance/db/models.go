package db

import (
	"time"
)

// Maintenance task lifecycle statuses. COMPLETED is terminal and is only set
// from the outside (or via CompleteTask); the schedulers never process it.
const (
	StatusActive    = "ACTIVE"
	StatusOverdue   = "OVERDUE"
	StatusCompleted = "COMPLETED"
)

const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

// CategoryMaintenanceReminder is the notification category counted by the
// reminder throttle.
const CategoryMaintenanceReminder = "MAINTENANCE_REMINDER"

// MaintenanceTask is a recurring maintenance obligation on a device.
type MaintenanceTask struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	DeviceID        string     `json:"device_id" gorm:"index;size:36"`
	OrganizationID  string     `json:"organization_id" gorm:"index;size:36"`
	TaskName        string     `json:"task_name" gorm:"index"`
	ComponentName   string     `json:"component_name"`
	Description     string     `json:"description"`
	Frequency       string     `json:"frequency"` // Free text, e.g. "weekly", "every 3 months"
	LastMaintenance *time.Time `json:"last_maintenance" gorm:"type:date"`
	NextMaintenance *time.Time `json:"next_maintenance" gorm:"type:date;index"`
	Status          string     `json:"status" gorm:"index"`   // ACTIVE, OVERDUE, COMPLETED
	Priority        string     `json:"priority" gorm:"index"` // LOW, MEDIUM, HIGH, CRITICAL
	AssignedUserID  string     `json:"assigned_user_id" gorm:"size:36"` // Denormalized from the owning device, read-only here
	Version         int        `json:"version"`                         // Bumped on every conditional schedule update
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MaintenanceHistoryEntry is an append-only audit record written whenever a
// task's due date is superseded. Never mutated or deleted.
type MaintenanceHistoryEntry struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	MaintenanceTaskID string    `json:"maintenance_task_id" gorm:"index;size:36"`
	DeviceID          string    `json:"device_id" gorm:"index;size:36"`
	TaskName          string    `json:"task_name"`
	ScheduledDate     time.Time `json:"scheduled_date" gorm:"type:date"` // The due date that was superseded
	CycleNumber       int       `json:"cycle_number"`                    // Per-device, assigned by the history store
	Reason            string    `json:"reason"`
	SnapshotType      string    `json:"snapshot_type"` // UPDATE or COMPLETION
	CreatedAt         time.Time `json:"created_at"`
}

// Notification is a persisted in-app notification. The reminder throttle is
// derived from rows of category MAINTENANCE_REMINDER, so this table is the
// source of truth for "reminders sent today".
type Notification struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	UserID            string    `json:"user_id" gorm:"index;size:36"`
	OrganizationID    string    `json:"organization_id" gorm:"index;size:36"`
	DeviceID          string    `json:"device_id" gorm:"size:36"`
	MaintenanceTaskID string    `json:"maintenance_task_id" gorm:"index;size:36"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Category          string    `json:"category" gorm:"index"`
	Metadata          string    `json:"metadata" gorm:"type:json"` // JSON string, e.g. {"reminderNumber":"2","taskId":"..."}
	Read              bool      `json:"read"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
}

// UserPreferences holds per-user notification opt-in flags. When no row
// exists for a user, maintenance alerts default to allowed.
type UserPreferences struct {
	UserID             string    `json:"user_id" gorm:"primaryKey;size:36"`
	DeviceAlerts       bool      `json:"device_alerts"`
	SystemUpdates      bool      `json:"system_updates"`
	CriticalAlerts     bool      `json:"critical_alerts"`
	MaintenanceAlerts  bool      `json:"maintenance_alerts"`
	EmailNotifications bool      `json:"email_notifications"`
	PushNotifications  bool      `json:"push_notifications"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// User is a read-only identity row. Owned elsewhere; present here only so the
// attention query can join user names and emails for notification text.
type User struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" gorm:"index"`
}

// Device is a read-only device row. Owned elsewhere; joined for device name
// and the assigned user.
type Device struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id" gorm:"index;size:36"`
	AssignedUserID string `json:"assigned_user_id" gorm:"size:36"`
}
