// Package recap decides when the rolling window has accumulated enough
// new content to justify an inference call, performs the call, and
// reconciles the structured result back into session state.
package recap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/bus"
	"github.com/meetline/recapd/internal/event"
	"github.com/meetline/recapd/internal/metrics"
	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/transcript"
)

const (
	// TickSeconds is the minimum audio-time between recap ticks.
	TickSeconds = 30.0
	// WindowSeconds selects the recap input from the rolling window.
	WindowSeconds = 60.0
	// WindowMinSeconds is the minimum window span worth inferring over.
	WindowMinSeconds = 30.0

	// ConsumerIdleTimeout ends a session's consumer goroutine when no
	// bus events arrive; the next ingest recreates it.
	ConsumerIdleTimeout = 900 * time.Second

	inferenceTimeout = 30 * time.Second
)

// Scheduler runs one consumer goroutine per active session. The
// consumer drains its own bus subscription and re-evaluates the tick
// gate on every transcript event, so a slow inference call delays that
// session's consumer, never its producers.
type Scheduler struct {
	store   *session.Store
	bus     *bus.Bus
	inf     Inferencer
	metrics *metrics.Metrics
	now     func() time.Time

	idleTimeout time.Duration

	mu        sync.Mutex
	consumers map[string]struct{}
}

func NewScheduler(store *session.Store, eventBus *bus.Bus, inf Inferencer) *Scheduler {
	return &Scheduler{
		store:       store,
		bus:         eventBus,
		inf:         inf,
		metrics:     metrics.Default,
		now:         time.Now,
		idleTimeout: ConsumerIdleTimeout,
		consumers:   make(map[string]struct{}),
	}
}

// SetIdleTimeout overrides the consumer idle-exit timeout. Call before
// the first Ensure.
func (s *Scheduler) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		s.idleTimeout = d
	}
}

// Ensure starts the session's consumer goroutine if none is running.
func (s *Scheduler) Ensure(sessionID string) {
	s.mu.Lock()
	if _, running := s.consumers[sessionID]; running {
		s.mu.Unlock()
		return
	}
	s.consumers[sessionID] = struct{}{}
	sub := s.bus.Subscribe(sessionID)
	s.mu.Unlock()

	go s.consume(sessionID, sub)
}

func (s *Scheduler) consume(sessionID string, sub *bus.Subscription) {
	defer func() {
		s.mu.Lock()
		delete(s.consumers, sessionID)
		s.mu.Unlock()
		s.bus.Unsubscribe(sessionID, sub)
	}()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case env, ok := <-sub.Events():
			if !ok {
				return
			}
			if env.Event == event.KindTranscript {
				s.Evaluate(context.Background(), sessionID)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)
		case <-idle.C:
			log.Debug().Str("session_id", sessionID).Msg("recap consumer idle, exiting")
			return
		}
	}
}

// ShouldTick reports whether a recap tick is due: new content since the
// cursor, and at least TickSeconds of audio time since the last tick's
// anchor.
func ShouldTick(view session.RecapView) bool {
	if view.LastTranscriptSeq <= view.RecapCursorSeq {
		return false
	}
	return view.Anchor-view.LastTickAnchor >= TickSeconds
}

// Evaluate runs one tick evaluation for the session. Thin or empty
// windows consume the tick (cursor and anchor advance) without an
// inference call or a state event.
func (s *Scheduler) Evaluate(ctx context.Context, sessionID string) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return
	}

	view := sess.RecapSnapshot()
	if !ShouldTick(view) {
		return
	}

	frags := sess.SelectWindow(WindowSeconds, true)
	text := transcript.JoinText(frags)
	span := transcript.Span(frags)

	if text == "" || span < WindowMinSeconds {
		sess.CommitTick(view.Anchor, s.now(), view.LastTranscriptSeq)
		s.metrics.RecapTicksSkipped.WithLabelValues("thin_window").Inc()
		return
	}

	meta := Meta{
		CurrentTopicID: view.CurrentTopicID,
		CurrentTopic:   view.CurrentTopicTitle,
		WindowStart:    frags[0].TimeStart,
		WindowEnd:      frags[len(frags)-1].TimeEnd,
	}

	start := s.now()
	res := s.infer(ctx, sessionID, text, meta)
	latency := s.now().Sub(start)

	sess.ApplyRecap(res.Recap, res.Topic, res.NewTopic, res.Intent)
	sess.CommitTick(view.Anchor, s.now(), view.LastTranscriptSeq)

	s.metrics.RecapTicksFired.Inc()
	s.metrics.InferenceLatency.Observe(latency.Seconds())

	s.bus.Publish(sessionID, event.State{
		Recap:       res.Recap,
		Topic:       res.Topic,
		Intent:      res.Intent,
		WindowText:  text,
		WindowStart: meta.WindowStart,
		WindowEnd:   meta.WindowEnd,
		Actions:     []string{},
		Decisions:   []string{},
		Risks:       []string{},
		InferenceMS: latency.Milliseconds(),
		Fallback:    res.Fallback,
	})
}

// infer calls the black-box inferencer; any failure, transport or
// malformed content alike, resolves to the deterministic fallback.
func (s *Scheduler) infer(ctx context.Context, sessionID, text string, meta Meta) Result {
	if s.inf == nil {
		return Fallback(text, meta)
	}

	ctx, cancel := context.WithTimeout(ctx, inferenceTimeout)
	defer cancel()

	res, err := s.inf.Infer(ctx, text, meta)
	if err != nil {
		s.metrics.InferenceErrors.Inc()
		log.Warn().Err(err).Str("session_id", sessionID).Msg("recap inference failed, using fallback")
		return Fallback(text, meta)
	}
	return res
}
