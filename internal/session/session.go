// Package session owns the set of live sessions. The store is the
// single source of truth for session lookup and per-session sequence
// allocation; per-session mutable state is guarded by a session mutex so
// concurrent ingest and recap callers cannot interleave
// read-modify-write sequences on window or cursor fields.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/meetline/recapd/internal/event"
	"github.com/meetline/recapd/internal/transcript"
)

// Config is the expected audio/language configuration of a session.
type Config struct {
	LanguageCode    string
	AudioEncoding   string
	SampleRateHz    int
	Channels        int
	InterimResults  bool
	WordTimeOffsets bool
}

// DefaultConfig matches the documented ingest policy defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		AudioEncoding:  "PCM_S16LE",
		SampleRateHz:   16000,
		Channels:       1,
		InterimResults: true,
	}
}

// RecapView is a consistent snapshot of the fields that gate a recap
// tick.
type RecapView struct {
	LastTranscriptSeq uint64
	RecapCursorSeq    uint64
	Anchor            float64
	LastTickAnchor    float64
	LastTickAt        time.Time
	CurrentTopicID    string
	CurrentTopicTitle string
}

// Session is one live meeting capture. Created by the Store and mutated
// only through its methods.
type Session struct {
	ID        string
	Config    Config
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	seq          uint64
	textBuffer   string
	window       *transcript.Window

	lastTranscriptSeq uint64
	recapCursorSeq    uint64
	lastTickAt        time.Time
	lastTickAnchor    float64

	recap        string
	topics       []event.Topic
	currentTopic event.Topic
	intent       event.Intent
}

func newSession(id string, cfg Config, now time.Time) *Session {
	return &Session{
		ID:           id,
		Config:       cfg,
		CreatedAt:    now,
		lastActivity: now,
		window:       transcript.NewWindow(),
		intent:       event.NoIntent(),
	}
}

// Touch bumps last_activity_at.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// NextSeq allocates the next producer-facing sequence number for the
// session, monotonic from 1 for the session's lifetime.
func (s *Session) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// AppendText concatenates text onto the session's bounded rolling text
// buffer, keeping at most maxChars of suffix, and returns the buffer.
func (s *Session) AppendText(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	if text != "" {
		if s.textBuffer == "" {
			s.textBuffer = text
		} else {
			s.textBuffer += " " + text
		}
	}
	if maxChars > 0 && len(s.textBuffer) > maxChars {
		s.textBuffer = s.textBuffer[len(s.textBuffer)-maxChars:]
	}
	return s.textBuffer
}

// RecordFragment updates transcript bookkeeping after a canonical event
// was published at seq. Partials only move the last-seen pointers;
// finals additionally enter the rolling window and trigger pruning.
func (s *Session) RecordFragment(f transcript.Fragment, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTranscriptSeq = seq
	if f.IsFinal {
		s.window.AppendFinal(f)
	} else {
		s.window.SetPartial(f)
	}
}

// RecapSnapshot returns the tick-gating fields as one consistent view.
func (s *Session) RecapSnapshot() RecapView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RecapView{
		LastTranscriptSeq: s.lastTranscriptSeq,
		RecapCursorSeq:    s.recapCursorSeq,
		Anchor:            s.window.Anchor(),
		LastTickAnchor:    s.lastTickAnchor,
		LastTickAt:        s.lastTickAt,
		CurrentTopicID:    s.currentTopic.TopicID,
		CurrentTopicTitle: s.currentTopic.Title,
	}
}

// SelectWindow returns the recap input selection, see transcript.Window.
func (s *Session) SelectWindow(windowSec float64, includePartial bool) []transcript.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Select(windowSec, includePartial)
}

// CommitTick consumes a tick: the cursor catches up to lastSeq, the
// anchor and wall time advance, and the window is pruned again. Called
// for both fired and skipped ticks so a thin window is not re-evaluated
// on every subsequent fragment.
func (s *Session) CommitTick(anchor float64, now time.Time, lastSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recapCursorSeq = lastSeq
	s.lastTickAt = now
	s.lastTickAnchor = anchor
	s.window.Prune()
}

// ApplyRecap reconciles a recap result into session state. The intent is
// always fully replaced. A topic segment is appended only when the
// result flags a new topic or the session has none yet; otherwise the
// historical list is left untouched and only the current topic identity
// updates.
func (s *Session) ApplyRecap(recap string, topic event.Topic, newTopic bool, intent event.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recap = recap
	s.intent = intent
	if newTopic || len(s.topics) == 0 {
		s.topics = append(s.topics, topic)
	}
	s.currentTopic = topic
}

// Recap returns the latest recap text.
func (s *Session) Recap() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recap
}

// Intent returns the latest semantic intent.
func (s *Session) Intent() event.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// Topics returns a copy of the append-only topic segment list.
func (s *Session) Topics() []event.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Topic(nil), s.topics...)
}

// CurrentTopic returns the current topic identity.
func (s *Session) CurrentTopic() event.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTopic
}

// WindowLen returns the number of retained final fragments.
func (s *Session) WindowLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Len()
}
