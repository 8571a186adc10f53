package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/complaint-service/internal/api/http"
	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/channel"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/persistence"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	natsConn, err := persistence.NewNATS(cfg.NATS, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect nats", zap.Error(err))
	}
	defer natsConn.Close()

	var (
		realtime *channel.RedisRealtime
		presence repository.PresenceChecker
		ledger   service.DeliveryLedger = service.NewMemoryLedger()
	)
	if redis.Enabled() {
		realtime = channel.NewRedisRealtime(redis.Client)
		presence = realtime
		ledger = service.NewRedisLedger(redis.Client, cfg.Notification.LedgerTTL())
	}

	var (
		ticketRepo  repository.TicketRepository
		messageRepo repository.TicketMessageRepository
		directory   repository.UserDirectory
		audit       service.AuditSink
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		ticketRepo = repository.NewTicketRepository(pool)
		messageRepo = repository.NewTicketMessageRepository(pool)
		directory = repository.NewUserDirectory(pool)
		audit = repository.NewAuditRepository(pool)
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		messageRepo = repository.NewMemoryMessageRepository()
		directory = repository.NewMemoryUserDirectory()
		audit = repository.NewMemoryAuditLog()
	}
	directory = repository.WithPresence(directory, presence, logger.Named("presence"))

	notifyDeps := service.NotificationDependencies{
		Directory: directory,
		Ledger:    ledger,
		Logger:    logger.Named("notifications"),
		Metrics:   metrics,
	}
	if realtime != nil {
		notifyDeps.Realtime = realtime
	}
	if cfg.Push.Enabled() {
		notifyDeps.Push = channel.NewHTTPPush(cfg.Push.Endpoint, cfg.Push.ServerKey, cfg.Notification.ChannelTimeout())
	}
	if cfg.SMTP.Enabled() {
		templates, err := channel.DefaultTemplates()
		if err != nil {
			logger.Fatal("failed to load email templates", zap.Error(err))
		}
		notifyDeps.Email = channel.NewSMTPEmail(channel.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Notification.EmailFrom,
		}, templates, nil)
	}
	notifications := service.NewNotificationService(notifyDeps, cfg.Notification)

	bus := events.NewInMemoryDispatcher(logger)
	if natsConn.Enabled() {
		events.NewNATSBridge(natsConn.Conn, cfg.NATS.SubjectPrefix, logger).Register(bus)
	}
	notifyWorker := worker.NewNotificationWorker(notifications, logger.Named("worker"), worker.Options{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
	})
	worker.StartNotificationWorker(bus, notifyWorker)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  messageRepo,
		Audit:        audit,
		Dispatcher:   bus,
		ReopenWindow: cfg.Ticket.ReopenWindow(),
		Logger:       logger.Named("tickets"),
		Metrics:      metrics,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var sessions *handlers.SessionHandler
	if realtime != nil {
		sessions = handlers.NewSessionHandler(realtime, cfg.Notification.PresenceTTL())
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
			"nats":     natsConn,
		}),
		Complaints:     handlers.NewComplaintsHandler(ticketService),
		Sessions:       sessions,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := notifyWorker.Stop(stopCtx); err != nil {
		logger.Warn("notification worker did not drain", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
