package crmrelay

import (
	"context"

	relay "bookstore-orders/internal/app/crmrelay"
	"bookstore-orders/internal/shared/config"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
	"bookstore-orders/internal/shared/salesforce"
)

// Run wires the CRM relay worker and blocks until ctx is cancelled.
func Run(ctx context.Context) error {
	log := logger.NewLogger("crm-relay")
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
	worker := relay.New(crm, log)

	log.Info(ctx, "service_started", "CRM relay started", nil)

	relay.ConsumeForever(ctx, rmq, worker, log)

	log.Info(ctx, "graceful_shutdown", "CRM relay shutdown completed", nil)
	return nil
}
