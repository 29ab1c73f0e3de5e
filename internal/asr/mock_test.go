package asr

import (
	"context"
	"sync"
	"testing"

	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/transcript"
)

type fragmentRecorder struct {
	mu    sync.Mutex
	frags []transcript.Fragment
}

func (r *fragmentRecorder) handle(frag transcript.Fragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frags = append(r.frags, frag)
}

func (r *fragmentRecorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frags))
	for i, f := range r.frags {
		out[i] = f.Text
	}
	return out
}

func TestMockStream_EmitsFragmentsAsClockAdvances(t *testing.T) {
	factory := &MockFactory{Script: []transcript.Fragment{
		{Sequence: 1, TimeStart: 0, TimeEnd: 1, Text: "hello", IsFinal: true},
		{Sequence: 2, TimeStart: 1, TimeEnd: 3, Text: "world", IsFinal: true},
	}}
	rec := &fragmentRecorder{}

	cfg := session.DefaultConfig()
	stream, err := factory.Open(context.Background(), cfg, rec.handle)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// One second of 16 kHz mono s16le audio.
	second := make([]byte, cfg.SampleRateHz*2)

	if err := stream.SendAudio(second); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := rec.texts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("after 1s got %v, want [hello]", got)
	}

	if err := stream.SendAudio(second); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := rec.texts(); len(got) != 1 {
		t.Fatalf("fragment ending at 3s emitted early: %v", got)
	}

	if err := stream.SendAudio(second); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := rec.texts(); len(got) != 2 || got[1] != "world" {
		t.Fatalf("after 3s got %v, want [hello world]", got)
	}
}

func TestMockStream_StopFlushesPending(t *testing.T) {
	factory := &MockFactory{Script: []transcript.Fragment{
		{Sequence: 1, TimeStart: 0, TimeEnd: 100, Text: "late", IsFinal: true},
	}}
	rec := &fragmentRecorder{}

	stream, err := factory.Open(context.Background(), session.DefaultConfig(), rec.handle)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	stream.Stop()
	if got := rec.texts(); len(got) != 1 || got[0] != "late" {
		t.Fatalf("Stop flush got %v, want [late]", got)
	}

	// Idempotent; the flushed fragment is not re-delivered.
	stream.Stop()
	if got := rec.texts(); len(got) != 1 {
		t.Fatalf("second Stop re-delivered: %v", got)
	}

	if err := stream.SendAudio(make([]byte, 32000)); err != nil {
		t.Fatalf("SendAudio after Stop: %v", err)
	}
	if got := rec.texts(); len(got) != 1 {
		t.Fatalf("audio after Stop produced fragments: %v", got)
	}
}

func TestMockFactory_EmptyScriptSilent(t *testing.T) {
	rec := &fragmentRecorder{}
	stream, err := (&MockFactory{}).Open(context.Background(), session.DefaultConfig(), rec.handle)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := stream.SendAudio(make([]byte, 64000)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	stream.Stop()
	if got := rec.texts(); len(got) != 0 {
		t.Fatalf("empty script emitted %v", got)
	}
}
