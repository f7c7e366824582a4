package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	maintDB "iot-maintenance-service/internal/maintenance/db"
	"iot-maintenance-service/internal/maintenance/store"
)

// SchedulePassReport aggregates the outcome of one lifecycle pass. Per-task
// failures are counted, never escalated.
type SchedulePassReport struct {
	Updated  int `json:"updated"`
	Overdue  int `json:"overdue"`
	DueToday int `json:"due_today"`
	Failed   int `json:"failed"`
}

// LifecycleAdvancer advances maintenance tasks through
// ACTIVE -> OVERDUE -> rescheduled ACTIVE. One canonical implementation; the
// overdue handling is two-phase (mark, then reschedule on a later pass) so an
// observable OVERDUE state exists between the two.
type LifecycleAdvancer interface {
	RunSchedulePass(today time.Time) (SchedulePassReport, error)
	MarkOverduePass(today time.Time) (int, error)
	ReschedulePass(today time.Time) (int, error)
}

// LifecycleService is the canonical LifecycleAdvancer backed by the task
// store and the frequency resolver.
type LifecycleService struct {
	Store *store.Store
}

func NewLifecycleService(s *store.Store) *LifecycleService {
	return &LifecycleService{Store: s}
}

// RunSchedulePass walks all ACTIVE tasks once and brings their due dates
// current. Overdue tasks advance from the overdue date (not today), so a task
// far behind catches up one cycle per pass instead of jumping ahead. Tasks
// already current are untouched, which makes running the pass twice on the
// same day a no-op for them. The returned error is non-nil only when the
// active task set itself cannot be read; per-task failures are counted.
func (l *LifecycleService) RunSchedulePass(today time.Time) (SchedulePassReport, error) {
	log.Printf("Starting maintenance schedule update for date: %s", today.Format("2006-01-02"))

	var report SchedulePassReport

	tasks, err := l.Store.FindTasksByStatus(maintDB.StatusActive)
	if err != nil {
		return report, fmt.Errorf("schedule pass: %w", err)
	}
	log.Printf("Found %d active maintenance tasks to process", len(tasks))

	day := store.DateOnly(today)

	for i := range tasks {
		task := &tasks[i]
		if task.NextMaintenance == nil {
			continue
		}
		due := store.DateOnly(*task.NextMaintenance)

		var err error
		switch {
		case due.Before(day):
			err = l.rescheduleOverdue(task, due)
			if err == nil {
				report.Updated++
				report.Overdue++
			}
		case due.Equal(day):
			err = l.rescheduleDueToday(task, day)
			if err == nil {
				report.Updated++
				report.DueToday++
			}
		}
		if err != nil {
			report.Failed++
			log.Printf("Error updating maintenance task '%s': %v", task.TaskName, err)
		}
	}

	log.Printf("Maintenance schedule update completed. Updated %d tasks total (%d overdue, %d due today, %d failed)",
		report.Updated, report.Overdue, report.DueToday, report.Failed)
	return report, nil
}

func (l *LifecycleService) rescheduleOverdue(task *maintDB.MaintenanceTask, overdueDate time.Time) error {
	log.Printf("Maintenance task '%s' is overdue. Last due: %s",
		task.TaskName, overdueDate.Format("2006-01-02"))

	next := NextMaintenanceDate(task.Frequency, overdueDate)

	// Record the superseded due date before it is overwritten.
	if err := l.Store.AppendHistory(task, overdueDate, "Overdue task rescheduled", "UPDATE"); err != nil {
		log.Printf("Failed to save maintenance history for task '%s': %v", task.TaskName, err)
	}

	if task.LastMaintenance == nil {
		task.LastMaintenance = &overdueDate
	}
	task.NextMaintenance = &next

	if err := l.Store.UpdateTaskSchedule(task); err != nil {
		return fmt.Errorf("reschedule overdue task: %w", err)
	}
	log.Printf("Updated overdue maintenance task '%s' with new next maintenance date: %s",
		task.TaskName, next.Format("2006-01-02"))
	return nil
}

func (l *LifecycleService) rescheduleDueToday(task *maintDB.MaintenanceTask, today time.Time) error {
	log.Printf("Maintenance task '%s' is due today. Calculating next maintenance date...", task.TaskName)

	next := NextMaintenanceDate(task.Frequency, today)

	if err := l.Store.AppendHistory(task, today, "Task due today - rescheduled", "UPDATE"); err != nil {
		log.Printf("Failed to save maintenance history for task '%s': %v", task.TaskName, err)
	}

	task.NextMaintenance = &next
	task.LastMaintenance = &today

	if err := l.Store.UpdateTaskSchedule(task); err != nil {
		return fmt.Errorf("reschedule due-today task: %w", err)
	}
	log.Printf("Updated maintenance task '%s' due today with new next maintenance date: %s",
		task.TaskName, next.Format("2006-01-02"))
	return nil
}

// MarkOverduePass flips ACTIVE tasks whose due date has passed to OVERDUE
// without rescheduling them. The coarse precursor of the two-phase overdue
// handling; ReschedulePass completes the cycle later.
func (l *LifecycleService) MarkOverduePass(today time.Time) (int, error) {
	log.Printf("Starting overdue maintenance tasks update for date: %s", today.Format("2006-01-02"))

	tasks, err := l.Store.FindTasksDueBefore(maintDB.StatusActive, today)
	if err != nil {
		return 0, fmt.Errorf("mark overdue pass: %w", err)
	}

	marked := 0
	for i := range tasks {
		task := &tasks[i]
		task.Status = maintDB.StatusOverdue
		if err := l.Store.UpdateTaskSchedule(task); err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				log.Printf("Task '%s' changed concurrently, skipping overdue mark", task.TaskName)
				continue
			}
			log.Printf("Error updating overdue status for task '%s': %v", task.TaskName, err)
			continue
		}
		marked++
		log.Printf("Marked maintenance task as overdue: %s", task.TaskName)
	}

	log.Printf("Overdue maintenance tasks update completed. Updated %d tasks to OVERDUE status", marked)
	return marked, nil
}

// ReschedulePass advances OVERDUE tasks one cycle from their overdue date and
// resets them to ACTIVE. A task still behind after one advance is caught by
// the next day's mark/reschedule pair rather than being jumped to today.
func (l *LifecycleService) ReschedulePass(today time.Time) (int, error) {
	log.Printf("Starting automatic overdue maintenance tasks update for date: %s", today.Format("2006-01-02"))

	tasks, err := l.Store.FindTasksDueBefore(maintDB.StatusOverdue, today)
	if err != nil {
		return 0, fmt.Errorf("reschedule pass: %w", err)
	}

	updated := 0
	for i := range tasks {
		task := &tasks[i]
		if task.NextMaintenance == nil {
			continue
		}
		overdueDate := store.DateOnly(*task.NextMaintenance)
		next := NextMaintenanceDate(task.Frequency, overdueDate)

		if err := l.Store.AppendHistory(task, overdueDate, "Overdue task rescheduled", "UPDATE"); err != nil {
			log.Printf("Failed to save maintenance history for task '%s': %v", task.TaskName, err)
		}

		task.NextMaintenance = &next
		task.Status = maintDB.StatusActive
		if task.LastMaintenance == nil {
			task.LastMaintenance = &overdueDate
		}

		if err := l.Store.UpdateTaskSchedule(task); err != nil {
			log.Printf("Error auto-updating overdue task '%s': %v", task.TaskName, err)
			continue
		}
		updated++
		log.Printf("Auto-updated overdue maintenance task '%s' to next date: %s (frequency: %s)",
			task.TaskName, next.Format("2006-01-02"), task.Frequency)
	}

	log.Printf("Automatic overdue maintenance tasks update completed. Updated %d tasks to next maintenance date", updated)
	return updated, nil
}

// CompleteTask marks a task COMPLETED, setting last maintenance to today and
// recomputing the next date so the record stays consistent if the task is
// ever reactivated. A completion snapshot is appended to the history.
func (l *LifecycleService) CompleteTask(taskID string, today time.Time) (*maintDB.MaintenanceTask, error) {
	var task maintDB.MaintenanceTask
	if err := l.Store.DB.First(&task, "id = ?", taskID).Error; err != nil {
		return nil, fmt.Errorf("maintenance task not found: %s: %w", taskID, err)
	}

	day := store.DateOnly(today)
	next := NextMaintenanceDate(task.Frequency, day)

	task.LastMaintenance = &day
	task.NextMaintenance = &next
	task.Status = maintDB.StatusCompleted

	if err := l.Store.AppendHistory(&task, day, "Task completed", "COMPLETION"); err != nil {
		log.Printf("Failed to save completed maintenance history for task '%s': %v", task.TaskName, err)
	}
	if err := l.Store.UpdateTaskSchedule(&task); err != nil {
		return nil, fmt.Errorf("complete task %s: %w", taskID, err)
	}

	log.Printf("Completed maintenance task '%s' with next maintenance date: %s",
		task.TaskName, next.Format("2006-01-02"))
	return &task, nil
}
