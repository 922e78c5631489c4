package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imageflow/facepoi/config"
	amqpctrl "github.com/imageflow/facepoi/internal/controller/amqp"
	"github.com/imageflow/facepoi/internal/controller/restapi"
	"github.com/imageflow/facepoi/internal/infrastructure/broker"
	"github.com/imageflow/facepoi/internal/infrastructure/detector"
	"github.com/imageflow/facepoi/internal/repo/webapi"
	"github.com/imageflow/facepoi/internal/usecase/access"
	"github.com/imageflow/facepoi/internal/usecase/pipeline"
	"github.com/imageflow/facepoi/pkg/httpserver"
	"github.com/imageflow/facepoi/pkg/logger"
	rabbitconsumer "github.com/imageflow/facepoi/pkg/rabbitmq/consumer"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Image store client
	store := webapi.New(cfg.Imbo.BaseURL(), cfg.Imbo.PublicKey, cfg.Imbo.PrivateKey)

	// Access resolution. Hard dependency: nothing is consumed before the
	// authorized user set is known.
	users, err := access.New(store, cfg.Imbo.PublicKey, l).Resolve(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - access.Resolve: %w", err))
	}

	// Face detector
	faceDetector, err := detector.New(cfg.Detection.Cascade)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - detector.New: %w", err))
	}

	// Message pipeline use-case
	messagePipeline := pipeline.New(
		store,
		faceDetector,
		users,
		cfg.Imbo.Events,
		cfg.Detection.ImageWidth,
		l,
	)

	// Broker connection. Dial failure is fatal; later setup stages are not.
	rabbitConsumer, err := rabbitconsumer.New(
		cfg.AMQP.URL(),
		rabbitconsumer.ConnectionName("facepoi-consumer"),
	)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - rabbitconsumer.New: %w", err))
	}

	// AMQP as Controller
	amqpController := amqpctrl.New(
		messagePipeline,
		broker.NewEventConsumer(rabbitConsumer, rabbitconsumer.Topology{
			ExchangeName:       cfg.Exchange.Name,
			ExchangeKind:       cfg.Exchange.Kind,
			ExchangeDurable:    cfg.Exchange.Durable,
			ExchangeAutoDelete: cfg.Exchange.AutoDelete,
			QueueName:          cfg.Queue.Name,
			QueueExclusive:     cfg.Queue.Exclusive,
			RoutingKey:         cfg.Queue.RoutingKey,
			AutoAck:            cfg.Consumption.NoAck,
		}),
		l,
	)

	// Health HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HealthCheck.Port))
	restapi.NewRouter(httpServer.App)

	// Start Components
	err = amqpController.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - amqpController.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Consumption.ShutdownTimeout)
	defer shutdownCancel()
	err = amqpController.Shutdown(shutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - amqpController.Shutdown: %w", err))
	}
}
