package amqp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/imageflow/facepoi/internal/infrastructure/broker"
	"github.com/imageflow/facepoi/internal/usecase"
	"github.com/imageflow/facepoi/pkg/logger"
)

// EventSource is the typed broker stream the controller drains.
type EventSource interface {
	Events(ctx context.Context) <-chan broker.Event
	AckEvent(event broker.Event) error
	Close() error
}

// Controller owns the consumption loop: it reads typed broker events and
// dispatches each message into the pipeline. Deliveries are handled
// independently with no ordering guarantee between them.
type Controller struct {
	pipeline usecase.MessagePipeline
	ec       EventSource
	logger   logger.Interface

	ctx    context.Context
	cancel context.CancelFunc

	handleCtx    context.Context
	handleCancel context.CancelFunc

	wg sync.WaitGroup

	started atomic.Bool
}

func New(p usecase.MessagePipeline, ec EventSource, l logger.Interface) *Controller {
	return &Controller{
		pipeline: p,
		ec:       ec,
		logger:   l,
	}
}

func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Controller - Start - controller already started")
	}

	// Intake and in-flight handlers get separate contexts so shutdown can
	// stop accepting deliveries while letting started handlers drain.
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.handleCtx, c.handleCancel = context.WithCancel(ctx)

	events := c.ec.Events(c.ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for event := range events {
			switch event.Kind {
			case broker.KindConsume:
				c.logger.Info("Controller - consuming queue")
			case broker.KindError:
				// Setup and parse failures are non-fatal: log and move on.
				c.logger.Error(event.Err, "Controller - broker event")
			case broker.KindMessage:
				c.wg.Add(1)
				go c.handle(event)
			}
		}
	}()

	return nil
}

func (c *Controller) handle(event broker.Event) {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("panic %v", r), "Controller - handle - panic")
		}
	}()

	c.pipeline.Handle(c.handleCtx, event.Message)

	// In manual-ack mode the delivery is acked regardless of pipeline
	// outcome: redelivery only covers process death, never handler failure.
	if err := c.ec.AckEvent(event); err != nil {
		c.logger.Error(err, "Controller - handle - c.ec.AckEvent")
	}
}

// Shutdown stops the intake loop, then waits for in-flight handlers to
// finish. Handlers past the ctx deadline have their context canceled,
// aborting their remaining collaborator calls mid-message.
func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()

		if err := c.ec.Close(); err != nil {
			c.logger.Error(err, "Controller - Shutdown - c.ec.Close")
		}

		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.handleCancel()
	}

	return nil
}
