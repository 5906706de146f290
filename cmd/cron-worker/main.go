package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pasalhub/pasalmart-backend/internal/coupons"
	"github.com/pasalhub/pasalmart-backend/internal/cron"
	"github.com/pasalhub/pasalmart-backend/internal/inventory"
	"github.com/pasalhub/pasalmart-backend/internal/notifications"
	"github.com/pasalhub/pasalmart-backend/internal/orders"
	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/internal/suppliers"
	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/metrics"
	"github.com/pasalhub/pasalmart-backend/pkg/migrate"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox"
	"github.com/pasalhub/pasalmart-backend/pkg/redis"
)

const lockKeyFormat = "pm:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	gatewayRegistry, err := gateway.NewRegistry(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	suppliersRepo := suppliers.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	settlementService, err := settlement.NewService(
		dbClient,
		ordersRepo,
		coupons.NewRepository(dbClient.DB()),
		gatewayRegistry,
		outboxService,
		inventoryService,
		paymentMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}
	notificationService, err := notifications.NewService(notificationsRepo, notifications.LogSender{Logg: logg}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	reconcileJob, err := cron.NewReconcilePaymentsJob(cron.ReconcilePaymentsJobParams{
		Logger:     logg,
		Payments:   ordersRepo,
		Gateways:   gatewayRegistry,
		Settlement: settlementService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconcile job", err)
		os.Exit(1)
	}
	abandonedJob, err := cron.NewAbandonedCheckoutJob(cron.AbandonedCheckoutJobParams{
		Logger:        logg,
		Orders:        ordersRepo,
		Notifications: notificationService,
		Age:           cfg.Checkout.AbandonedAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create abandoned checkout job", err)
		os.Exit(1)
	}
	statusSyncJob, err := cron.NewSupplierStatusSyncJob(cron.SupplierStatusSyncJobParams{
		Logger:    logg,
		DB:        dbClient,
		Orders:    ordersRepo,
		Suppliers: suppliersRepo,
		Adapters:  suppliers.NewRegistry(cfg.Suppliers.RequestTimeout),
		Limit:     cfg.Suppliers.StatusSyncMax,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create supplier status sync job", err)
		os.Exit(1)
	}
	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(
		reconcileJob,
		abandonedJob,
		statusSyncJob,
		outboxRetentionJob,
		notificationCleanupJob,
	)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
