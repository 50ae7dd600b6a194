package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/vhvplatform/go-notification-orchestrator/internal/consumer"
	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/handler"
	"github.com/vhvplatform/go-notification-orchestrator/internal/middleware"
	"github.com/vhvplatform/go-notification-orchestrator/internal/queue"
	"github.com/vhvplatform/go-notification-orchestrator/internal/realtime"
	"github.com/vhvplatform/go-notification-orchestrator/internal/repository"
	"github.com/vhvplatform/go-notification-orchestrator/internal/scheduler"
	"github.com/vhvplatform/go-notification-orchestrator/internal/service"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/config"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/mongodb"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/rabbitmq"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/redis"
	"github.com/vhvplatform/go-notification-orchestrator/internal/smtp"
	"github.com/vhvplatform/go-notification-orchestrator/internal/template"
	"github.com/vhvplatform/go-notification-orchestrator/internal/webhook"
)

func main() {
	// Initialize logger
	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting Notification Orchestrator...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MongoDB
	mongoClient, err := mongodb.NewMongoClient(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Disconnect(context.Background())

	// RabbitMQ and Redis are optional: without them email is sent directly
	// and job records are not retained.
	rabbitClient, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.Warn("RabbitMQ unavailable, events are not consumed and email is sent directly", "error", err)
		rabbitClient = nil
	} else {
		defer rabbitClient.Close()
	}

	var jobStore queue.JobStore
	redisClient, err := redis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("Redis unavailable, email job records are not retained", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		jobStore = queue.NewRedisJobStore(redisClient, cfg.Queue.CompletedRetention, cfg.Queue.FailedRetention)
	}

	// Initialize repositories
	notificationRepo := repository.NewNotificationRepository(mongoClient)
	preferencesRepo := repository.NewPreferencesRepository(mongoClient)
	userDirectory := repository.NewUserDirectory(mongoClient)

	indexCtx, cancelIndexes := context.WithTimeout(ctx, 30*time.Second)
	if err := notificationRepo.EnsureIndexes(indexCtx); err != nil {
		log.Error("Failed to create notification indexes", "error", err)
	}
	if err := preferencesRepo.EnsureIndexes(indexCtx); err != nil {
		log.Error("Failed to create preferences indexes", "error", err)
	}
	cancelIndexes()

	// Email pipeline
	renderer, err := template.NewRenderer()
	if err != nil {
		log.Fatal("Failed to load email templates", "error", err)
	}
	smtpPool := smtp.NewSMTPPool(smtp.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		UseTLS:   cfg.SMTP.Port == 465,
		Timeout:  cfg.SMTP.Timeout,
	}, cfg.SMTP.PoolSize)
	defer smtpPool.Close()
	jobSender := queue.NewTemplateSender(renderer, smtp.NewMailer(smtpPool, cfg.SMTP.FromEmail, cfg.SMTP.FromName))

	queueOpts := queue.Options{
		QueueName:     cfg.RabbitMQ.EmailQueue,
		ProbeAttempts: cfg.Queue.ProbeAttempts,
		ProbeBackoff:  cfg.Queue.ProbeBackoff,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		Backoff:       cfg.Queue.Backoff,
		Workers:       cfg.Queue.Workers,
	}
	var broker queue.Broker
	if rabbitClient != nil {
		broker = rabbitClient
	}
	emailQueue := queue.NewEmailDispatchQueue(ctx, broker, jobSender, jobStore, queueOpts, log.Named("email-queue"))

	// Delivery
	hub := realtime.NewHub(cfg.Server.AllowedOrigins, log.Named("realtime"))
	dispatcher := webhook.NewDispatcher(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout, log.Named("webhook"))
	webhookSender := service.NewWebhookSender(dispatcher)
	tasks := service.NewTaskRunner(5*time.Minute, log.Named("tasks"))
	senders := []service.ChannelSender{
		service.NewInAppSender(hub, tasks, log),
		service.NewEmailSender(emailQueue, userDirectory, log),
		service.NewReservedSender(domain.ChannelPush),
		service.NewReservedSender(domain.ChannelSMS),
		webhookSender,
	}

	preferenceService := service.NewPreferenceService(preferencesRepo, log)
	notificationService := service.NewNotificationService(notificationRepo, preferenceService, senders, tasks, log)
	digestService := service.NewDigestService(preferenceService, notificationRepo, emailQueue, userDirectory, log.Named("digest"))
	retryService := service.NewRetryService(notificationRepo, webhookSender, cfg.Delivery.MaxRetries, log.Named("retry"))

	// Scheduler
	daily, err := scheduler.NewDailySchedule(cfg.Digest.DailyTime, cfg.Digest.Timezone)
	if err != nil {
		log.Fatal("Invalid daily digest schedule", "error", err)
	}
	weekly, err := scheduler.NewWeeklySchedule(cfg.Digest.WeeklyDay, cfg.Digest.WeeklyTime, cfg.Digest.Timezone)
	if err != nil {
		log.Fatal("Invalid weekly digest schedule", "error", err)
	}
	digestScheduler, err := scheduler.NewDigestScheduler(scheduler.Config{
		Hourly:         scheduler.HourlySchedule{Location: cfg.Digest.Timezone},
		Daily:          daily,
		Weekly:         weekly,
		RetrySweepSpec: cfg.Delivery.RetrySweepSpec,
		RunTimeout:     30 * time.Minute,
	}, digestService, retryService, log.Named("scheduler"))
	if err != nil {
		log.Fatal("Failed to create scheduler", "error", err)
	}
	digestScheduler.Start()

	// Background consumers
	var background conc.WaitGroup
	if rabbitClient != nil {
		if !emailQueue.DirectMode() {
			if err := rabbitClient.Qos(cfg.Queue.Workers); err != nil {
				log.Warn("Failed to set prefetch", "error", err)
			}
			worker := queue.NewEmailWorker(rabbitClient, rabbitClient, jobSender, jobStore, notificationService, queueOpts, log.Named("email-worker"))
			background.Go(func() {
				if err := worker.Run(ctx); err != nil {
					log.Error("Email worker stopped", "error", err)
				}
			})
		}

		eventConsumer := consumer.NewEventConsumer(rabbitClient, notificationService, cfg.RabbitMQ.EventQueue, log.Named("consumer"))
		if err := eventConsumer.Setup(); err != nil {
			log.Error("Failed to set up event consumer", "error", err)
		} else {
			background.Go(func() {
				if err := eventConsumer.Run(ctx); err != nil {
					log.Error("Event consumer stopped", "error", err)
				}
			})
		}
	}

	// Initialize HTTP handlers
	rateLimiter := middleware.NewUserRateLimiter(cfg.Server.RateLimitPerUser, cfg.Server.RateLimitBurst)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler.NewHealthHandler(readinessChecks(mongoClient, rabbitClient, redisClient)).Register(router)
	router.GET("/ws", handler.NewRealtimeHandler(hub, log).Connect)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(rateLimiter))
	handler.NewNotificationHandler(notificationService, log).Register(v1)
	handler.NewPreferencesHandler(preferenceService, log).Register(v1)
	handler.NewOperationsHandler(digestScheduler, emailQueue, log).Register(v1)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Notification Orchestrator started", "port", cfg.Server.Port, "email_direct_mode", emailQueue.DirectMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down Notification Orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	digestScheduler.Stop(shutdownCtx)
	background.Wait()
	tasks.Wait()

	log.Info("Notification Orchestrator stopped")
}

func readinessChecks(mongoClient *mongodb.MongoClient, rabbitClient *rabbitmq.RabbitMQClient, redisClient *goredis.Client) map[string]handler.Check {
	checks := map[string]handler.Check{
		"mongodb": mongoClient.Ping,
	}
	if rabbitClient != nil {
		checks["rabbitmq"] = func(context.Context) error { return rabbitClient.Ping() }
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
