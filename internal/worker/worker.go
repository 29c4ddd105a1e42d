package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/papergen/internal/gateway"
	"github.com/cuongbtq/papergen/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the broker stops delivering
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Generator runs one decoded request to completion
type Generator interface {
	Generate(ctx context.Context, items []gateway.Item) (*gateway.Result, error)
	Limits() gateway.Limits
}

// DeliverySource yields generation requests
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// ReplyPublisher routes a reply back to the requester
type ReplyPublisher interface {
	PublishReply(ctx context.Context, reply rabbitmq.Reply) error
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Source          DeliverySource
	Publisher       ReplyPublisher
	Generator       Generator
	WorkerID        string
	Concurrency     int
	ShutdownTimeout time.Duration
	ReplyTimeout    time.Duration
}

// Worker serves generation requests from a queue and answers on reply_to
type Worker struct {
	logger          *slog.Logger
	source          DeliverySource
	publisher       ReplyPublisher
	generator       Generator
	workerID        string
	concurrency     int
	shutdownTimeout time.Duration
	replyTimeout    time.Duration
	jobsChan        chan amqp.Delivery
	wg              sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Source == nil || cfg.Publisher == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("worker requires a delivery source, a reply publisher and a generator")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("worker concurrency must be greater than 0")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "papergen-worker-" + uuid.NewString()[:8]
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	replyTimeout := cfg.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = 10 * time.Second
	}

	return &Worker{
		logger:          logger,
		source:          cfg.Source,
		publisher:       cfg.Publisher,
		generator:       cfg.Generator,
		workerID:        workerID,
		concurrency:     cfg.Concurrency,
		shutdownTimeout: shutdownTimeout,
		replyTimeout:    replyTimeout,
		jobsChan:        make(chan amqp.Delivery),
	}, nil
}

// Start consumes requests until ctx is canceled or the broker goes away.
// In-flight jobs get ShutdownTimeout to finish before they are canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("shutdown_timeout", w.shutdownTimeout),
	)

	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	w.spawnWorkerPool(workCtx)
	dispatchErr := w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("Shutdown timeout reached, canceling in-flight jobs",
			slog.Duration("shutdown_timeout", w.shutdownTimeout),
		)
		cancelWork()
		<-done
	}

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return dispatchErr
}
