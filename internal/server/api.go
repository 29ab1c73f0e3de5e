package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/session"
)

// Frame pacing advertised to audio producers.
const (
	RecommendedFrameMS = 250
	MaxFrameMS         = 1000
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type createSessionRequest struct {
	SessionID          string `json:"session_id"`
	LanguageCode       string `json:"language_code"`
	TargetSampleRateHz int    `json:"target_sample_rate_hz"`
	AudioEncoding      string `json:"audio_encoding"`
	Channels           int    `json:"channels"`
	InterimResults     *bool  `json:"interim_results"`
	WordTimeOffsets    bool   `json:"enable_word_time_offsets"`
}

type expectedAudio struct {
	Codec        string `json:"codec"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type ingestPolicy struct {
	ExpectedAudio      expectedAudio `json:"expected_audio"`
	RecommendedFrameMS int           `json:"recommended_frame_ms"`
	MaxFrameMS         int           `json:"max_frame_ms"`
}

type createSessionResponse struct {
	SessionID           string       `json:"session_id"`
	AudioWSURL          string       `json:"audio_ws_url"`
	FrontendWSURL       string       `json:"frontend_ws_url"`
	TranscriptTestWSURL string       `json:"transcript_test_ws_url"`
	IngestPolicy        ingestPolicy `json:"ingest_policy"`
}

type sourceTokenResponse struct {
	Token     string    `json:"token"`
	Scope     string    `json:"scope"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse request: %v", err))
			return
		}
		if req.SessionID != "" && !validSessionID(req.SessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		cfg := configFromRequest(req)

		var sess *session.Session
		if req.SessionID != "" {
			created, err := deps.Store.CreateWithID(req.SessionID, cfg)
			if err != nil {
				if errors.Is(err, session.ErrExists) {
					writeJSONError(w, http.StatusConflict, "session already exists")
					return
				}
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create session: %v", err))
				return
			}
			sess = created
		} else {
			sess = deps.Store.Create(cfg)
		}

		if deps.Recorder != nil {
			go func(id string, cfg session.Config) {
				if err := deps.Recorder.CreateSession(id, cfg.LanguageCode, cfg.SampleRateHz, cfg.Channels, time.Now().UTC()); err != nil {
					log.Warn().Err(err).Str("session_id", id).Msg("session persist failed")
				}
			}(sess.ID, cfg)
		}

		writeJSON(w, http.StatusCreated, createSessionResponse{
			SessionID:           sess.ID,
			AudioWSURL:          "/ws/audio/" + sess.ID,
			FrontendWSURL:       "/ws/frontend/" + sess.ID,
			TranscriptTestWSURL: "/ws/transcripts/" + sess.ID,
			IngestPolicy: ingestPolicy{
				ExpectedAudio: expectedAudio{
					Codec:        cfg.AudioEncoding,
					SampleRateHz: cfg.SampleRateHz,
					Channels:     cfg.Channels,
				},
				RecommendedFrameMS: RecommendedFrameMS,
				MaxFrameMS:         MaxFrameMS,
			},
		})
	})

	mux.HandleFunc("POST /sessions/{id}/sources", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if _, ok := deps.Store.Get(sessionID); !ok {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}

		token, expiresAt := deps.Signer.Mint(sessionID)
		writeJSON(w, http.StatusCreated, sourceTokenResponse{
			Token:     token,
			Scope:     TokenScope,
			SessionID: sessionID,
			ExpiresAt: expiresAt.UTC(),
		})
	})
}

// configFromRequest fills absent request fields from the documented
// defaults.
func configFromRequest(req createSessionRequest) session.Config {
	cfg := session.DefaultConfig()
	if req.LanguageCode != "" {
		cfg.LanguageCode = req.LanguageCode
	}
	if req.TargetSampleRateHz > 0 {
		cfg.SampleRateHz = req.TargetSampleRateHz
	}
	if req.AudioEncoding != "" {
		cfg.AudioEncoding = req.AudioEncoding
	}
	if req.Channels > 0 {
		cfg.Channels = req.Channels
	}
	if req.InterimResults != nil {
		cfg.InterimResults = *req.InterimResults
	}
	cfg.WordTimeOffsets = req.WordTimeOffsets
	return cfg
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
