package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	workerdomain "github.com/cuongbtq/sensei-scan/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer hands out broker deliveries
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// ResultSource reads persisted scan results
type ResultSource interface {
	Get(ctx context.Context, id string) (domain.ScanResult, error)
}

// Uploader stores archived reports
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Consumer    Consumer
	Results     ResultSource
	Archive     Uploader
	Concurrency int
	JobTimeout  time.Duration
	KeyPrefix   string
}

// Worker archives the report of every completed scan
type Worker struct {
	logger      *slog.Logger
	consumer    Consumer
	results     ResultSource
	archive     Uploader
	concurrency int
	jobTimeout  time.Duration
	keyPrefix   string
	workerID    string

	jobsChan chan *workerdomain.EventMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = workerdomain.DefaultKeyPrefix
	}

	host, _ := os.Hostname()
	return &Worker{
		logger:      cfg.Logger,
		consumer:    cfg.Consumer,
		results:     cfg.Results,
		archive:     cfg.Archive,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		keyPrefix:   keyPrefix,
		workerID:    fmt.Sprintf("%s-%s-%d", workerdomain.DefaultConsumerTag, host, os.Getpid()),
		jobsChan:    make(chan *workerdomain.EventMessage, concurrency),
		stopChan:    make(chan struct{}),
	}
}

// Start consumes events until ctx is canceled or the delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
