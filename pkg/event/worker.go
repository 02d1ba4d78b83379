package event

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"advoid/pkg/logging"
)

// uploadTimeout bounds a single flush to the backend.
const uploadTimeout = 30 * time.Second

// Uploader ships one serialised batch to a backend. kind is "request" or
// "response" and selects the destination path.
type Uploader interface {
	Upload(ctx context.Context, kind string, payload []byte) error
}

// runWorker drains ch into batches and flushes each one when it reaches
// batchSize or when interval elapses, whichever comes first. It returns
// true when the worker is finished (channel drained after cancellation),
// false when it stopped on a panic and should be restarted.
func runWorker[T any](ctx context.Context, ch <-chan T, kind string, up Uploader, interval time.Duration, batchSize int, logger *logging.Logger) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Sink worker panicked", "kind", kind, "panic", r)
			done = false
		}
	}()

	batch := make([]T, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		payload := encodeBatch(batch, logger)
		if len(payload) > 0 {
			uploadCtx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
			if err := up.Upload(uploadCtx, kind, payload); err != nil {
				// At-most-once: the batch is dropped.
				logger.Error("Failed to upload events", "kind", kind, "events", len(batch), "error", err)
			}
			cancel()
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-ch:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush()
				ticker.Reset(interval)
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain whatever was enqueued before cancellation, then
			// flush the remainder and exit.
			for {
				select {
				case ev := <-ch:
					batch = append(batch, ev)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return true
				}
			}
		}
	}
}

// encodeBatch renders a batch as newline-delimited JSON, one object per
// line. Events that fail to serialise are skipped.
func encodeBatch[T any](batch []T, logger *logging.Logger) []byte {
	var buf bytes.Buffer
	for i := range batch {
		line, err := json.Marshal(batch[i])
		if err != nil {
			logger.Error("Failed to serialize event", "error", err)
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
