// Package server is the HTTP/WebSocket surface: session creation,
// source registration, the three WebSocket legs (audio, dev/test
// transcript ingest, frontend fan-out), health and metrics.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/asr"
	"github.com/meetline/recapd/internal/bus"
	"github.com/meetline/recapd/internal/ingest"
	"github.com/meetline/recapd/internal/metrics"
	"github.com/meetline/recapd/internal/session"
)

// SessionRecorder persists session metadata best-effort; failures are
// logged and never surfaced to the client.
type SessionRecorder interface {
	CreateSession(id, languageCode string, sampleRateHz, channels int, createdAt time.Time) error
}

// Deps carries everything the routes need. ASR and Recorder may be
// nil; the audio leg then accepts frames without producing fragments,
// and sessions are not persisted.
type Deps struct {
	Store    *session.Store
	Bus      *bus.Bus
	Pipeline *ingest.Pipeline
	Signer   *TokenSigner
	ASR      asr.Factory
	Recorder SessionRecorder
	Metrics  *metrics.Metrics
}

func (d *Deps) metricsOrDefault() *metrics.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return metrics.Default
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	registerAPIRoutes(mux, deps)
	registerFrontendWS(mux, deps)
	registerIngestWS(mux, deps)
	registerAudioWS(mux, deps)

	return mux
}

func Serve(addr string, deps Deps) error {
	log.Info().Str("addr", addr).Msg("listening")
	return http.ListenAndServe(addr, Handler(deps))
}
