package events

// MaintenanceAlertPayload is the rendered notification forwarded to the
// external channel topic. Delivery there is best-effort; the persisted
// notification is the system of record.
type MaintenanceAlertPayload struct {
	NotificationID string `json:"notification_id"`
	TaskID         string `json:"task_id"`
	TaskName       string `json:"task_name"`
	DeviceID       string `json:"device_id"`
	DeviceName     string `json:"device_name"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Email          string `json:"email"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	ReminderNumber int    `json:"reminder_number,omitempty"`
}
