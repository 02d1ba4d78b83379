package event

import (
	"context"
	"sync"
	"sync/atomic"

	"advoid/pkg/config"
	"advoid/pkg/logging"
	"advoid/pkg/telemetry"
)

// channelCapacityFactor sizes the sink channels relative to the batch size.
// A full channel means the backend is not keeping up; further events are
// dropped rather than applying back-pressure to the datapath.
const channelCapacityFactor = 8

// BatchingSink fans request and response events out to two independent
// workers, each batching to an Uploader. Enqueueing is non-blocking.
type BatchingSink struct {
	requests  chan RequestEvent
	responses chan ResponseEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	logger    *logging.Logger
	metrics   *telemetry.Metrics
	closeOnce sync.Once
}

// NewBatchingSink starts the two workers and returns the sink. cfg supplies
// the flush interval and batch size; up receives one serialised payload per
// flush.
func NewBatchingSink(up Uploader, cfg config.SinkConfig, logger *logging.Logger, metrics *telemetry.Metrics) *BatchingSink {
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &BatchingSink{
		requests:  make(chan RequestEvent, cfg.BatchSize*channelCapacityFactor),
		responses: make(chan ResponseEvent, cfg.BatchSize*channelCapacityFactor),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		metrics:   metrics,
	}

	startWorker(s, s.requests, "request", up, cfg)
	startWorker(s, s.responses, "response", up, cfg)

	logger.Info("Batching event sink started",
		"interval", cfg.Interval,
		"batch_size", cfg.BatchSize,
	)

	return s
}

// startWorker runs one batching worker, restarting it if it panics.
func startWorker[T any](s *BatchingSink, ch <-chan T, kind string, up Uploader, cfg config.SinkConfig) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if runWorker(s.ctx, ch, kind, up, cfg.Interval, cfg.BatchSize, s.logger) {
				return
			}
			s.logger.Warn("Restarting sink worker", "kind", kind)
		}
	}()
}

// SendRequest enqueues a request event, dropping it when the channel is
// full.
func (s *BatchingSink) SendRequest(ev RequestEvent) {
	select {
	case s.requests <- ev:
	default:
		s.drop("request")
	}
}

// SendResponse enqueues a response event, dropping it when the channel is
// full.
func (s *BatchingSink) SendResponse(ev ResponseEvent) {
	select {
	case s.responses <- ev:
	default:
		s.drop("response")
	}
}

func (s *BatchingSink) drop(kind string) {
	total := s.dropped.Add(1)
	s.metrics.SinkEventsDropped.Add(context.Background(), 1)
	s.logger.Warn("Sink channel full, dropping event",
		"kind", kind,
		"dropped_total", total,
	)
}

// Dropped returns the number of events dropped on enqueue.
func (s *BatchingSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops the workers after they drain and flush outstanding batches.
// Safe to call more than once.
func (s *BatchingSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			s.logger.Info("Event sink shut down", "dropped_total", s.dropped.Load())
		case <-ctx.Done():
			s.logger.Warn("Event sink shutdown timed out", "error", ctx.Err())
		}
	})
	return nil
}
