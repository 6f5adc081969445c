package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edu-homework-api/internal/config"
	"github.com/noah-isme/edu-homework-api/internal/database"
	"github.com/noah-isme/edu-homework-api/internal/handler"
	"github.com/noah-isme/edu-homework-api/internal/middleware"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
	"github.com/noah-isme/edu-homework-api/internal/router"
	"github.com/noah-isme/edu-homework-api/internal/service"
	"github.com/noah-isme/edu-homework-api/pkg/mailer"
	"github.com/noah-isme/edu-homework-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Teacher{},
		&models.Class{},
		&models.Enrollment{},
		&models.Student{},
		&models.Assignment{},
		&models.Submission{},
		&models.AssignmentGroup{},
		&models.GroupMember{},
		&models.ScoreAuditLog{},
		&models.ScoreAdjustment{},
	)
	if err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	store, err := storage.New(storage.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create storage client: %v", err)
	}

	reminderMailer, err := mailer.New(mailer.Config{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.ReminderFromEmail,
		FromName:  cfg.ReminderFromName,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create mailer: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	scoreRepo := repository.NewScoreRepository(db)

	assignmentService := service.NewAssignmentService(assignmentRepo, rosterRepo, store, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, groupRepo, rosterRepo, store, validate, cfg.SignedURLTTL, logger)
	groupService := service.NewGroupService(groupRepo, assignmentRepo, submissionRepo, rosterRepo, store, validate, logger)
	scoringService := service.NewScoringService(scoreRepo, submissionRepo, groupRepo, rosterRepo, validate, logger)
	statsService := service.NewStatsService(assignmentRepo, submissionRepo, groupRepo, rosterRepo, redisClient, cfg.StatsCacheTTL, logger)
	reminderService := service.NewReminderService(assignmentRepo, submissionRepo, groupRepo, rosterRepo, reminderMailer, cfg.ReminderSweepInterval, logger)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	groupHandler := handler.NewGroupHandler(groupService, logger)
	scoringHandler := handler.NewScoringHandler(scoringService, logger)
	reportHandler := handler.NewReportHandler(statsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		GroupHandler:      groupHandler,
		ScoringHandler:    scoringHandler,
		ReportHandler:     reportHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go reminderService.Start(sweepCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopSweeps)
}

func waitForShutdown(app *fiber.App, stopSweeps context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
