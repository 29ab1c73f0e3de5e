package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meetline/recapd/internal/bus"
	"github.com/meetline/recapd/internal/ingest"
	"github.com/meetline/recapd/internal/session"
)

func newTestDeps() Deps {
	store := session.NewStore()
	eventBus := bus.New()
	return Deps{
		Store:    store,
		Bus:      eventBus,
		Pipeline: ingest.NewPipeline(store, eventBus, nil, nil),
		Signer:   NewTokenSigner("test-secret", time.Minute),
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession_Defaults(t *testing.T) {
	deps := newTestDeps()
	h := Handler(deps)

	rec := postJSON(t, h, "/sessions", `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp createSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("missing session_id")
	}
	if resp.AudioWSURL != "/ws/audio/"+resp.SessionID {
		t.Fatalf("audio ws url %q", resp.AudioWSURL)
	}
	if resp.FrontendWSURL != "/ws/frontend/"+resp.SessionID {
		t.Fatalf("frontend ws url %q", resp.FrontendWSURL)
	}
	if resp.TranscriptTestWSURL != "/ws/transcripts/"+resp.SessionID {
		t.Fatalf("test ws url %q", resp.TranscriptTestWSURL)
	}

	policy := resp.IngestPolicy
	if policy.ExpectedAudio.Codec != "PCM_S16LE" || policy.ExpectedAudio.SampleRateHz != 16000 || policy.ExpectedAudio.Channels != 1 {
		t.Fatalf("expected_audio %+v", policy.ExpectedAudio)
	}
	if policy.RecommendedFrameMS != 250 || policy.MaxFrameMS != 1000 {
		t.Fatalf("frame policy %+v", policy)
	}

	if _, ok := deps.Store.Get(resp.SessionID); !ok {
		t.Fatal("session not in store")
	}
}

func TestCreateSession_ExplicitIDAndConfig(t *testing.T) {
	deps := newTestDeps()
	h := Handler(deps)

	body := `{"session_id":"meeting-1","language_code":"de-DE","target_sample_rate_hz":48000,"channels":2,"interim_results":false,"enable_word_time_offsets":true}`
	rec := postJSON(t, h, "/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	sess, ok := deps.Store.Get("meeting-1")
	if !ok {
		t.Fatal("session not created")
	}
	cfg := sess.Config
	if cfg.LanguageCode != "de-DE" || cfg.SampleRateHz != 48000 || cfg.Channels != 2 {
		t.Fatalf("config %+v", cfg)
	}
	if cfg.InterimResults {
		t.Fatal("interim_results override lost")
	}
	if !cfg.WordTimeOffsets {
		t.Fatal("enable_word_time_offsets lost")
	}

	// Same id again conflicts.
	rec = postJSON(t, h, "/sessions", `{"session_id":"meeting-1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate id: status %d", rec.Code)
	}
}

func TestCreateSession_BadInput(t *testing.T) {
	h := Handler(newTestDeps())

	if rec := postJSON(t, h, "/sessions", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: status %d", rec.Code)
	}
	if rec := postJSON(t, h, "/sessions", `{"session_id":"../etc"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id: status %d", rec.Code)
	}
}

func TestRegisterSource_MintsVerifiableToken(t *testing.T) {
	deps := newTestDeps()
	h := Handler(deps)

	postJSON(t, h, "/sessions", `{"session_id":"meeting-1"}`)

	rec := postJSON(t, h, "/sessions/meeting-1/sources", ``)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp sourceTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Scope != TokenScope {
		t.Fatalf("scope %q", resp.Scope)
	}
	if resp.SessionID != "meeting-1" {
		t.Fatalf("session_id %q", resp.SessionID)
	}
	if time.Until(resp.ExpiresAt) <= 0 {
		t.Fatalf("expires_at in the past: %v", resp.ExpiresAt)
	}
	if err := deps.Signer.Verify(resp.Token, "meeting-1"); err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if err := deps.Signer.Verify(resp.Token, "other"); err == nil {
		t.Fatal("token verified for wrong session")
	}
}

func TestRegisterSource_UnknownSession(t *testing.T) {
	h := Handler(newTestDeps())

	rec := postJSON(t, h, "/sessions/nope/sources", ``)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not found") {
		t.Fatalf("body %s", rec.Body.String())
	}
}

type recorderMock struct {
	calls chan string
}

func (r *recorderMock) CreateSession(id, languageCode string, sampleRateHz, channels int, createdAt time.Time) error {
	r.calls <- id
	return nil
}

func TestCreateSession_RecordsBestEffort(t *testing.T) {
	deps := newTestDeps()
	rec := &recorderMock{calls: make(chan string, 1)}
	deps.Recorder = rec
	h := Handler(deps)

	postJSON(t, h, "/sessions", `{"session_id":"meeting-1"}`)

	select {
	case id := <-rec.calls:
		if id != "meeting-1" {
			t.Fatalf("recorded id %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never recorded")
	}
}

func TestHealthz(t *testing.T) {
	h := Handler(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := Handler(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}
