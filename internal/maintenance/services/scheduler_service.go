package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"

	"iot-maintenance-service/internal/maintenance/store"
)

// Default cron expressions for the maintenance passes. The spacing is
// deliberate: overdue marking runs before rescheduling, which runs before the
// notification passes see the day's task set.
const (
	DefaultOverdueCron    = "0 2 * * *"   // mark ACTIVE past-due tasks OVERDUE
	DefaultAutoUpdateCron = "0 3 * * *"   // reschedule OVERDUE tasks, reset ACTIVE
	DefaultNotifyCron     = "0 4 * * *"   // daily notification pass
	DefaultScheduleCron   = "0 5 * * *"   // full schedule update pass
	DefaultReminderCron   = "0 */2 * * *" // throttled reminder pass
)

// ForwardPoolSize bounds parallel outbound channel forwards.
const ForwardPoolSize = 5

// SchedulerConfig carries the per-pass enablement flag and cron expressions,
// supplied through the environment.
type SchedulerConfig struct {
	Enabled        bool
	OverdueCron    string
	AutoUpdateCron string
	NotifyCron     string
	ScheduleCron   string
	ReminderCron   string
}

// LoadSchedulerConfig reads the scheduler configuration from the environment,
// falling back to the defaults above.
func LoadSchedulerConfig() SchedulerConfig {
	cfg := SchedulerConfig{
		Enabled:        os.Getenv("MAINTENANCE_SCHEDULER_ENABLED") != "false",
		OverdueCron:    envOrDefault("MAINTENANCE_OVERDUE_CRON", DefaultOverdueCron),
		AutoUpdateCron: envOrDefault("MAINTENANCE_AUTO_UPDATE_CRON", DefaultAutoUpdateCron),
		NotifyCron:     envOrDefault("MAINTENANCE_NOTIFY_CRON", DefaultNotifyCron),
		ScheduleCron:   envOrDefault("MAINTENANCE_SCHEDULE_CRON", DefaultScheduleCron),
		ReminderCron:   envOrDefault("MAINTENANCE_REMINDER_CRON", DefaultReminderCron),
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NotificationPassReport aggregates one notification or reminder pass.
type NotificationPassReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// SchedulerService owns the periodic maintenance passes. It drives the
// lifecycle advancer and the notification service off gocron triggers, and
// owns the forward worker pool for the lifetime of the process.
type SchedulerService struct {
	Store         *store.Store
	Lifecycle     LifecycleAdvancer
	Notifications *NotificationService
	Scheduler     gocron.Scheduler
	Pool          *ForwardPool
	Config        SchedulerConfig
	appContext    context.Context
}

func NewSchedulerService(ctx context.Context, s *store.Store, lifecycle LifecycleAdvancer,
	notifications *NotificationService, pool *ForwardPool, cfg SchedulerConfig) (*SchedulerService, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &SchedulerService{
		Store:         s,
		Lifecycle:     lifecycle,
		Notifications: notifications,
		Scheduler:     sched,
		Pool:          pool,
		Config:        cfg,
		appContext:    ctx,
	}, nil
}

// Start registers the cron jobs, starts the scheduler and runs the startup
// schedule pass once so due dates are current from the first minute.
func (s *SchedulerService) Start() {
	log.Println("Maintenance scheduler service starting...")

	s.registerJob("maintenance_overdue", s.Config.OverdueCron, func() {
		if _, err := s.Lifecycle.MarkOverduePass(time.Now()); err != nil {
			log.Printf("Error in overdue maintenance tasks update: %v", err)
		}
	})
	s.registerJob("maintenance_auto_update", s.Config.AutoUpdateCron, func() {
		if _, err := s.Lifecycle.ReschedulePass(time.Now()); err != nil {
			log.Printf("Error in automatic overdue maintenance tasks update: %v", err)
		}
	})
	s.registerJob("maintenance_daily_notify", s.Config.NotifyCron, func() {
		if _, err := s.RunDailyNotificationPass(time.Now()); err != nil {
			log.Printf("Error in daily maintenance notification pass: %v", err)
		}
	})
	s.registerJob("maintenance_schedule_update", s.Config.ScheduleCron, func() {
		if _, err := s.Lifecycle.RunSchedulePass(time.Now()); err != nil {
			log.Printf("Error in maintenance schedule update pass: %v", err)
		}
	})
	s.registerJob("maintenance_reminders", s.Config.ReminderCron, func() {
		if _, err := s.RunReminderPass(time.Now()); err != nil {
			log.Printf("Error in maintenance reminder pass: %v", err)
		}
	})

	s.Scheduler.Start()

	if s.Config.Enabled {
		log.Println("Application started - updating maintenance schedules...")
		if _, err := s.Lifecycle.RunSchedulePass(time.Now()); err != nil {
			log.Printf("Error in startup maintenance schedule pass: %v", err)
		}
	}
	log.Println("Maintenance scheduler service started and initial schedule pass completed.")
}

func (s *SchedulerService) registerJob(name, cronExpr string, run func()) {
	job, err := s.Scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			if !s.Config.Enabled {
				log.Printf("Maintenance scheduler is disabled, skipping %s", name)
				return
			}
			run()
		}),
		gocron.WithName(name),
		gocron.WithTags("maintenance_pass", name),
	)
	if err != nil {
		log.Printf("Error scheduling %s with cron '%s': %v", name, cronExpr, err)
		return
	}
	if nextRun, err := job.NextRun(); err == nil {
		log.Printf("Scheduled %s with cron '%s'. gocron Job ID: %s, Next Run: %s",
			name, cronExpr, job.ID(), nextRun.Format(time.RFC3339))
	} else {
		log.Printf("Scheduled %s with cron '%s'. gocron Job ID: %s", name, cronExpr, job.ID())
	}
}

// Stop shuts down the cron scheduler and drains the forward pool.
func (s *SchedulerService) Stop() {
	log.Println("Maintenance scheduler service stopping...")
	if err := s.Scheduler.Shutdown(); err != nil {
		log.Printf("Error shutting down gocron scheduler: %v", err)
	} else {
		log.Println("Gocron scheduler shut down successfully.")
	}
	if s.Pool != nil {
		s.Pool.Shutdown()
		log.Println("Forward pool drained and shut down.")
	}
}

// RunDailyNotificationPass sends one notification per task due today or
// overdue. The attention set is snapshot at pass start; rows are processed
// independently and one row's failure never aborts the pass. The returned
// error is non-nil only when the snapshot itself cannot be read.
func (s *SchedulerService) RunDailyNotificationPass(today time.Time) (NotificationPassReport, error) {
	log.Printf("Starting daily maintenance notification process for date: %s", today.Format("2006-01-02"))

	rows, err := s.Store.FindTasksNeedingAttention(today)
	if err != nil {
		return NotificationPassReport{}, fmt.Errorf("daily notification pass: %w", err)
	}
	if len(rows) == 0 {
		log.Println("No maintenance tasks found for today or overdue - no notifications to send")
		return NotificationPassReport{}, nil
	}
	log.Printf("Found %d maintenance tasks for today", len(rows))

	report := NotificationPassReport{Total: len(rows)}
	for i := range rows {
		if s.Notifications.SendDailyNotification(&rows[i], today) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	log.Printf("Daily maintenance notification process completed. Sent: %d, Failed: %d, Total: %d",
		report.Sent, report.Failed, report.Total)
	return report, nil
}

// RunReminderPass sends throttled reminders for every task due today or
// overdue. Runs every 2 hours; the per-task counter is derived from stored
// notifications, so each successful send implicitly advances it.
func (s *SchedulerService) RunReminderPass(today time.Time) (NotificationPassReport, error) {
	log.Printf("Starting maintenance reminder process for date: %s at hour: %d",
		today.Format("2006-01-02"), today.Hour())

	rows, err := s.Store.FindTasksNeedingAttention(today)
	if err != nil {
		return NotificationPassReport{}, fmt.Errorf("reminder pass: %w", err)
	}
	if len(rows) == 0 {
		log.Println("No maintenance tasks need reminders at this time")
		return NotificationPassReport{}, nil
	}
	log.Printf("Found %d maintenance tasks needing reminders", len(rows))

	report := NotificationPassReport{Total: len(rows)}
	for i := range rows {
		if s.Notifications.SendReminder(&rows[i], today) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	log.Printf("Maintenance reminder process completed. Sent: %d, Failed: %d, Total: %d",
		report.Sent, report.Failed, report.Total)
	return report, nil
}

// TriggerNotifications is the synchronous manual re-run of the daily
// notification pass, for operational use. It returns the number of
// notifications sent, re-throwing only a pass-wide read failure.
func (s *SchedulerService) TriggerNotifications() (int, error) {
	log.Println("Manual trigger of maintenance notifications for today's tasks")
	report, err := s.RunDailyNotificationPass(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to trigger maintenance notifications: %w", err)
	}
	return report.Sent, nil
}

// TriggerScheduleUpdate is the synchronous manual re-run of the lifecycle
// pass followed by the daily notification pass.
func (s *SchedulerService) TriggerScheduleUpdate() (SchedulePassReport, int, error) {
	log.Println("Manual maintenance schedule update triggered")

	report, err := s.Lifecycle.RunSchedulePass(time.Now())
	if err != nil {
		return report, 0, fmt.Errorf("failed to run maintenance schedule pass: %w", err)
	}

	log.Println("Triggering maintenance notifications for updated tasks...")
	sent, err := s.TriggerNotifications()
	if err != nil {
		return report, 0, fmt.Errorf("failed to update maintenance schedules: %w", err)
	}

	log.Printf("Manual maintenance update completed. Notifications sent to %d users", sent)
	return report, sent, nil
}
