package webservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bookstore-orders/internal/app/dlqadmin"
	"bookstore-orders/internal/app/notifications"
	"bookstore-orders/internal/app/orderservice"
	"bookstore-orders/internal/app/statusconsumer"
	"bookstore-orders/internal/shared/config"
	"bookstore-orders/internal/shared/logger"
	pg "bookstore-orders/internal/shared/postgres"
	"bookstore-orders/internal/shared/rabbitmq"
)

// Run wires the web process: order API, status-update consumer, notification
// fan-out + SSE, and the DLQ remediation API. Blocks until ctx is cancelled or
// a component fails terminally.
func Run(ctx context.Context, port int) error {
	log := logger.NewLogger("web-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	pool, err := pg.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	// repositories, unit of work, fan-out hub
	uow := pg.NewUnitOfWork(pool)
	ordersRepo := pg.NewOrdersRepo()
	booksRepo := pg.NewBooksRepo()
	hub := notifications.NewHub()

	// application services
	pub := &rabbitmq.MQPublisher{Client: rmq}
	orderSvc := orderservice.New(uow, ordersRepo, booksRepo, pub, log)
	updates := statusconsumer.New(uow, ordersRepo, hub, log)
	dlqSvc := dlqadmin.NewService(func() (dlqadmin.BrokerChannel, error) {
		return rmq.NewAdminChannel()
	}, log)

	// routes
	mux := http.NewServeMux()
	orderservice.NewOrderHTTPHandler(orderSvc, log).Register(mux)
	notifications.NewSSEHandler(hub, log).Register(mux)
	dlqadmin.NewHandler(dlqSvc, cfg.Admin.APIKey, log).Register(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: the SSE stream is long-lived
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started", fmt.Sprintf("Web service started on port %d", port), map[string]any{"port": port})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		statusconsumer.ConsumeForever(gctx, rmq, updates, log)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		// graceful HTTP shutdown (drain keep-alives / in-flight requests)
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	return g.Wait()
}
