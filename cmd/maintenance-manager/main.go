package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/joho/godotenv"

	maintDB "iot-maintenance-service/internal/maintenance/db"
	maintKafka "iot-maintenance-service/internal/maintenance/kafka"
	"iot-maintenance-service/internal/maintenance/services"
	"iot-maintenance-service/internal/maintenance/store"
	gorm_db "iot-maintenance-service/pkg/db"
)

func main() {
	stdlog.Println("Maintenance Manager Service starting...")

	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found, relying on process environment.")
	}

	appCtx, appCancel := context.WithCancel(context.Background())

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	stdlog.Println("Database initialized successfully.")

	stdlog.Println("Running database migrations...")
	err = gorm_db.AutoMigrate(gormDB,
		&maintDB.MaintenanceTask{},
		&maintDB.MaintenanceHistoryEntry{},
		&maintDB.Notification{},
		&maintDB.UserPreferences{},
		&maintDB.User{},
		&maintDB.Device{},
	)
	if err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}
	stdlog.Println("Database migration successful.")

	maintStore := store.NewStore(gormDB)
	forwarder := maintKafka.NewAlertForwarder()
	forwardPool := services.NewForwardPool(services.ForwardPoolSize)

	lifecycleService := services.NewLifecycleService(maintStore)
	notificationService := services.NewNotificationService(appCtx, maintStore, forwarder, forwardPool)

	schedulerService, err := services.NewSchedulerService(appCtx, maintStore, lifecycleService,
		notificationService, forwardPool, services.LoadSchedulerConfig())
	if err != nil {
		stdlog.Fatalf("Failed to create scheduler service: %v", err)
	}
	schedulerService.Start()

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(serverAddr), server.WithExitWaitTime(5*time.Second))

	adminGroup := h.Group("/admin/maintenance")
	{
		adminGroup.POST("/schedule/run", func(c context.Context, ctxReq *app.RequestContext) {
			report, sent, err := schedulerService.TriggerScheduleUpdate()
			if err != nil {
				ctxReq.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
				return
			}
			ctxReq.JSON(http.StatusOK, utils.H{"schedule": report, "notifications_sent": sent})
		})
		adminGroup.POST("/notifications/run", func(c context.Context, ctxReq *app.RequestContext) {
			sent, err := schedulerService.TriggerNotifications()
			if err != nil {
				ctxReq.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
				return
			}
			ctxReq.JSON(http.StatusOK, utils.H{"notifications_sent": sent})
		})
		adminGroup.GET("/attention", func(c context.Context, ctxReq *app.RequestContext) {
			rows, err := maintStore.FindTasksNeedingAttention(time.Now())
			if err != nil {
				ctxReq.JSON(http.StatusInternalServerError, utils.H{"error": err.Error()})
				return
			}
			ctxReq.JSON(http.StatusOK, utils.H{"tasks": rows, "count": len(rows)})
		})
	}

	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		appCancel()

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		schedulerService.Stop()

		if err := forwarder.Close(); err != nil {
			hlog.Errorf("Kafka forwarder close error: %v", err)
		} else {
			hlog.Info("Kafka forwarder closed.")
		}
		hlog.Info("Maintenance Manager gracefully shut down.")
	}()

	hlog.Infof("Maintenance Manager Service fully initialized and starting Hertz server on %s...", serverAddr)
	h.Spin()

	stdlog.Println("Maintenance Manager Service has been shut down.")
}
