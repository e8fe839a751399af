package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/httpapi"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/repository"
	"github.com/digkill/clientdesk/internal/service"
	"github.com/digkill/clientdesk/internal/storage"
	"github.com/digkill/clientdesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheus(reg, cfg.MetricsNamespace)

	clientRepo := repository.NewClientRepository(db)
	if cfg.DBDriver == config.DriverMySQL {
		clientRepo = clientRepo.WithRowLocks()
	}
	assistantRepo := repository.NewAssistantRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	conversationRepo := repository.NewConversationRepository(db)

	assignmentService := service.NewAssignmentService(cfg, db, logr, clientRepo, assistantRepo, recorder)
	services := httpapi.Services{
		Clients:       service.NewClientService(logr, clientRepo),
		Assistants:    service.NewAssistantService(logr, assistantRepo),
		Assignments:   assignmentService,
		Payments:      service.NewPaymentService(cfg, db, logr, paymentRepo, clientRepo, assignmentService, recorder),
		Conversations: service.NewConversationService(db, logr, conversationRepo, clientRepo, assistantRepo, recorder),
	}

	var archiver httpapi.PayloadArchiver
	if cfg.ArchiveEnabled() {
		a, err := storage.NewArchiver(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage archiver: %v", err)
		}
		archiver = a
	} else {
		logr.Info("webhook archive disabled")
	}

	server := httpapi.NewServer(cfg, logr, services, archiver, reg)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("http server stopped", "err", err)
	}
}
