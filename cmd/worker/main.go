package main

import (
	"time"

	"installflow/config"
	"installflow/internal/db"
	"installflow/internal/mq"
	"installflow/internal/mqhandler"
	"installflow/internal/notify"
	redisclient "installflow/internal/redis"
	"installflow/internal/repository"
	"installflow/internal/service"
	"installflow/internal/util"
	"installflow/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting reminder worker...")

	// Redis (event dedup)
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// RabbitMQ producer, so auto-advance transitions still notify
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init producer", zap.Error(err))
	}
	defer producer.Close()

	// Repositories and services
	projectRepo := repository.NewProjectRepository(dbConn)
	activityRepo := repository.NewActivityRepository(dbConn)
	notifier := notify.NewAMQPNotifier(producer, log)
	transitionService := service.NewTransitionService(projectRepo, activityRepo, notifier, log)

	reminderHandler := mqhandler.NewReminderHandler(transitionService, projectRepo, deduper, log)

	// Consumer for reminder-due events from the scheduler
	consumer, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingReminderDue+".q", mq.RoutingReminderDue, log)
	if err != nil {
		log.Fatal("failed to init reminder consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(reminderHandler.HandleReminderDue)

	// StartConsuming blocks until the channel closes.
	if err := consumer.StartConsuming(); err != nil {
		log.Fatal("reminder consumer failed", zap.Error(err))
	}
}
