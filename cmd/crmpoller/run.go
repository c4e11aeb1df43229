package crmpoller

import (
	"context"
	"time"

	poller "bookstore-orders/internal/app/crmpoller"
	"bookstore-orders/internal/shared/config"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
	"bookstore-orders/internal/shared/salesforce"
)

// Run wires the CRM poller worker and blocks until ctx is cancelled.
func Run(ctx context.Context) error {
	log := logger.NewLogger("crm-poller")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	crm := salesforce.NewClient(cfg.Salesforce)
	pub := &rabbitmq.MQPublisher{Client: rmq}
	interval := time.Duration(cfg.Poller.IntervalSeconds) * time.Second

	p := poller.New(crm, pub, interval, log)

	log.Info(ctx, "service_started", "CRM poller started", map[string]any{
		"interval_seconds": cfg.Poller.IntervalSeconds,
	})

	p.Run(ctx)

	log.Info(ctx, "graceful_shutdown", "CRM poller shutdown completed", nil)
	return nil
}
