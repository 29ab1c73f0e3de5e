package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/metrics"
)

const writerQueueCap = 256

// EventSink is a destination for persisted transcript events.
type EventSink interface {
	AppendEvent(rec EventRecord) error
}

// Writer drains transcript events to the configured sinks on a
// background goroutine. Every failure is logged and dropped; nothing
// here ever blocks or fails the ingest path.
type Writer struct {
	db      EventSink
	kafka   *KafkaPublisher
	metrics *metrics.Metrics

	queue chan EventRecord
	done  chan struct{}
	once  sync.Once
}

func NewWriter(db EventSink, kafkaPub *KafkaPublisher) *Writer {
	w := &Writer{
		db:      db,
		kafka:   kafkaPub,
		metrics: metrics.Default,
		queue:   make(chan EventRecord, writerQueueCap),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue hands an event to the background writer. When the queue is
// full the event is dropped and counted; the caller is never blocked.
func (w *Writer) Enqueue(rec EventRecord) {
	select {
	case w.queue <- rec:
	default:
		w.metrics.PersistFailures.WithLabelValues("queue").Inc()
		log.Warn().Str("session_id", rec.SessionID).Uint64("seq", rec.Seq).Msg("persistence queue full, event dropped")
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.queue {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		if w.db != nil {
			if err := w.db.AppendEvent(rec); err != nil {
				w.metrics.PersistFailures.WithLabelValues("sqlite").Inc()
				log.Warn().Err(err).Str("session_id", rec.SessionID).Uint64("seq", rec.Seq).Msg("sqlite persist failed")
			}
		}
		if w.kafka != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.kafka.Publish(ctx, rec); err != nil {
				w.metrics.PersistFailures.WithLabelValues("kafka").Inc()
				log.Warn().Err(err).Str("session_id", rec.SessionID).Uint64("seq", rec.Seq).Msg("kafka persist failed")
			}
			cancel()
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.queue)
		<-w.done
	})
}
