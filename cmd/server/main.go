package main

import (
	"installflow/config"
	"installflow/internal/api"
	"installflow/internal/db"
	"installflow/internal/mq"
	"installflow/internal/notify"
	redisclient "installflow/internal/redis"
	"installflow/internal/repository"
	"installflow/internal/service"
	"installflow/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (KPI snapshot cache)
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	// RabbitMQ producer for stage-change notifications
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init producer", zap.Error(err))
	}
	defer producer.Close()

	// Repositories
	projectRepo := repository.NewProjectRepository(dbConn)
	activityRepo := repository.NewActivityRepository(dbConn)

	// Services
	notifier := notify.NewAMQPNotifier(producer, log)
	transitionService := service.NewTransitionService(projectRepo, activityRepo, notifier, log)
	kpiService := service.NewKPIService(projectRepo, rdb, cfg.KPI.CacheTTL(), log)

	// Handlers
	projectHandler := api.NewProjectHandler(projectRepo, activityRepo)
	stageHandler := api.NewStageHandler(transitionService, projectRepo)
	kpiHandler := api.NewKPIHandler(kpiService)

	// Router
	router := api.NewRouter(projectHandler, stageHandler, kpiHandler, cfg.JWT.Secret)

	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("server start failed", zap.Error(err))
	}
}
