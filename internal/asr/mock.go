package asr

import (
	"context"
	"sync"

	"github.com/meetline/recapd/internal/audio"
	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/transcript"
)

// MockFactory replays a scripted set of fragments as audio arrives.
// Each scripted fragment is emitted once the sample clock has passed
// its TimeEnd, so callers exercise the same pacing as a live engine.
// With an empty script the stream accepts audio and emits nothing,
// which is the behavior when no engine credentials are configured.
type MockFactory struct {
	Script []transcript.Fragment
}

func (f *MockFactory) Open(_ context.Context, cfg session.Config, onFragment FragmentHandler) (Stream, error) {
	script := make([]transcript.Fragment, len(f.Script))
	copy(script, f.Script)
	return &mockStream{
		onFragment: onFragment,
		clock:      audio.NewClock(cfg.SampleRateHz, cfg.Channels, 16),
		pending:    script,
	}, nil
}

type mockStream struct {
	onFragment FragmentHandler

	mu      sync.Mutex
	clock   *audio.Clock
	pending []transcript.Fragment
	stopped bool
}

func (s *mockStream) SendAudio(p []byte) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.clock.Advance(len(p))
	due := s.takeDueLocked(s.clock.Now())
	s.mu.Unlock()

	if s.onFragment != nil {
		for _, frag := range due {
			s.onFragment(frag)
		}
	}
	return nil
}

// Stop flushes any scripted fragments still pending, then drops them.
func (s *mockStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	rest := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.onFragment != nil {
		for _, frag := range rest {
			s.onFragment(frag)
		}
	}
}

func (s *mockStream) takeDueLocked(now float64) []transcript.Fragment {
	n := 0
	for n < len(s.pending) && s.pending[n].TimeEnd <= now {
		n++
	}
	due := s.pending[:n]
	s.pending = s.pending[n:]
	return due
}
