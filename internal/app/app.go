package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediguard/order/internal/clients/catalog"
	"github.com/mediguard/order/internal/clients/paymentgw"
	"github.com/mediguard/order/internal/dal/postgres"
	"github.com/mediguard/order/internal/dal/rabbitmq"
	"github.com/mediguard/order/internal/dal/repositories/events"
	outboxrepo "github.com/mediguard/order/internal/dal/repositories/outbox/postgres"
	"github.com/mediguard/order/internal/otel"
	"github.com/mediguard/order/internal/service/services/ordersvc"
	httptransport "github.com/mediguard/order/internal/transport/http"
	outboxworker "github.com/mediguard/order/internal/worker/outbox"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	outboxWorker   *outboxworker.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	outboxRepository := outboxrepo.NewOutboxRepository(postgresClient.Pool())
	eventPublisher := events.MustNewRabbitMQPublisher(rabbitClient, outboxRepository)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithCatalogClient(catalog.NewClient()),
		ordersvc.WithPaymentGateway(newPaymentGateway()),
		ordersvc.WithEventPublisher(eventPublisher),
		ordersvc.WithPaymentTimeout(
			time.Duration(viper.GetInt("clients.payment.timeout_seconds"))*time.Second,
		),
	)

	transport := httptransport.NewHTTPTransport(orderSvc)
	transport.RegisterRoutes()

	outboxWorker := outboxworker.NewWorker(outboxRepository, rabbitClient)

	return &App{
		orderSvc:       orderSvc,
		transport:      transport,
		outboxWorker:   outboxWorker,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go a.outboxWorker.Start(workerCtx)

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	cancelWorker()

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Tracer shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}

func newPaymentGateway() ordersvc.PaymentGateway {
	if viper.GetBool("clients.payment.simulated") {
		slog.Warn("Using simulated payment gateway")

		return paymentgw.NewSimulatedGateway()
	}

	return paymentgw.NewClient()
}
