// Package ingest is the single source-of-truth entry point for
// transcript fragments. Every producer, audio-derived or test/dev JSON,
// funnels through Pipeline.Ingest.
package ingest

import (
	"fmt"
	"strconv"

	"github.com/meetline/recapd/internal/bus"
	"github.com/meetline/recapd/internal/event"
	"github.com/meetline/recapd/internal/metrics"
	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/storage"
	"github.com/meetline/recapd/internal/transcript"
)

// DefaultMaxBufferChars bounds the per-session rolling text buffer.
const DefaultMaxBufferChars = 4000

// Fragment provenance labels.
const (
	SourceAudio = "audio"
	SourceTest  = "test"
)

// ConsumerPool lazily (re)creates the per-session recap consumer task.
type ConsumerPool interface {
	Ensure(sessionID string)
}

// Persister accepts canonical events for best-effort async persistence.
// Implementations must never block and must swallow their own failures.
type Persister interface {
	Enqueue(rec storage.EventRecord)
}

type Pipeline struct {
	store     *session.Store
	bus       *bus.Bus
	persist   Persister
	consumers ConsumerPool
	metrics   *metrics.Metrics

	maxBufferChars int
}

func NewPipeline(store *session.Store, eventBus *bus.Bus, persist Persister, consumers ConsumerPool) *Pipeline {
	return &Pipeline{
		store:          store,
		bus:            eventBus,
		persist:        persist,
		consumers:      consumers,
		metrics:        metrics.Default,
		maxBufferChars: DefaultMaxBufferChars,
	}
}

// Ingest validates the fragment, mutates session state, publishes the
// canonical event and returns its bus-assigned sequence number. A
// fragment that fails validation mutates nothing and produces no event.
func (p *Pipeline) Ingest(sessionID string, frag transcript.Fragment, source string) (uint64, error) {
	if err := frag.Validate(); err != nil {
		p.metrics.FragmentsRejected.WithLabelValues(rejectReason(err)).Inc()
		return 0, fmt.Errorf("ingest %s: %w", sessionID, err)
	}

	sess := p.store.Ensure(sessionID, nil)

	// The consumer task must be live before publish so this event
	// reaches its subscription.
	if p.consumers != nil {
		p.consumers.Ensure(sessionID)
	}

	buffer := sess.AppendText(frag.Text, p.maxBufferChars)

	payload := event.Transcript{
		Text:             frag.Text,
		IsFinal:          frag.IsFinal,
		Confidence:       frag.Confidence,
		Speaker:          frag.Speaker,
		TimeStart:        frag.TimeStart,
		TimeEnd:          frag.TimeEnd,
		Language:         frag.Language,
		Source:           source,
		TranscriptWindow: buffer,
	}

	env := p.bus.Publish(sessionID, payload)
	sess.RecordFragment(frag, env.Seq)

	if p.persist != nil {
		p.persist.Enqueue(storage.EventRecord{
			SessionID: sessionID,
			Seq:       env.Seq,
			Source:    source,
			Fragment:  frag,
		})
	}

	p.metrics.FragmentsIngested.WithLabelValues(source, strconv.FormatBool(frag.IsFinal)).Inc()
	return env.Seq, nil
}

func rejectReason(err error) string {
	switch err {
	case transcript.ErrEmptyText:
		return "empty_text"
	case transcript.ErrInvalidTimeRange:
		return "invalid_time_range"
	default:
		return "other"
	}
}
