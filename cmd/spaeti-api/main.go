// README: Entry point; loads config, wires stores and services, starts the
// HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"spaeti/internal/config"
	httptransport "spaeti/internal/http"
	"spaeti/internal/infra"
	"spaeti/internal/modules/catalog"
	"spaeti/internal/modules/invoice"
	"spaeti/internal/modules/order"
	"spaeti/internal/modules/realtime"
	"spaeti/internal/modules/support"
	"spaeti/internal/modules/tracking"
	"spaeti/internal/notify"
	"spaeti/internal/payment"
	"spaeti/internal/types"
)

func main() {
	log := infra.NewLogger("spaeti-api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	broker, err := infra.ConnectAMQP(cfg.AMQP.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect rabbitmq")
	}
	defer broker.Close()

	notifier := notify.NewAMQPNotifier(broker.Channel, log)
	bus := realtime.NewBus(redisClient, log)
	payments := payment.NewBroker(broker.Channel, log)

	invoiceStore := invoice.NewStore(dbPool)
	invoiceSvc := invoice.NewService(invoiceStore, notifier, log)

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(order.ServiceDeps{
		Store:       orderStore,
		Bus:         bus,
		Notifier:    notifier,
		Invoicer:    invoiceSvc,
		Payments:    payments,
		DeliveryFee: types.MustMoney(cfg.Delivery.Fee),
		Logger:      log,
	})

	trackingSvc := tracking.NewService(orderStore, orderSvc, notifier, cfg.PublicBaseURL, log)

	supportStore := support.NewStore(dbPool)
	supportSvc := support.NewService(supportStore, notifier, bus, log)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Catalog:              catalog.NewStore(dbPool),
		Order:                orderSvc,
		Tracking:             trackingSvc,
		Support:              supportSvc,
		Bus:                  bus,
		JWTSecret:            cfg.Auth.JWTSecret,
		PaymentWebhookSecret: cfg.Payment.WebhookSecret,
		Logger:               log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server")
	}
}
