package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/event"
	"github.com/meetline/recapd/internal/ingest"
	"github.com/meetline/recapd/internal/logging"
	"github.com/meetline/recapd/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerFrontendWS wires the UI-facing fan-out leg. Every canonical
// event for the session is forwarded in publish order; transcript
// payloads are redacted first.
func registerFrontendWS(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /ws/frontend/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("frontend ws upgrade")
			return
		}
		defer func() { _ = conn.Close() }()

		deps.Store.Ensure(sessionID, nil)
		sub := deps.Bus.Subscribe(sessionID)
		defer deps.Bus.Unsubscribe(sessionID, sub)

		// The greeting rides the canonical stream so its seq counts.
		deps.Bus.Publish(sessionID, event.Connected{SessionID: sessionID})

		// Reader only detects disconnect; unsubscribing closes the
		// subscription channel and ends the write loop below.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					deps.Bus.Unsubscribe(sessionID, sub)
					return
				}
			}
		}()

		logger := logging.WithSession(sessionID)
		for env := range sub.Events() {
			if t, ok := env.Payload.(event.Transcript); ok {
				env.Payload = t.Redacted()
			}
			payload, err := json.Marshal(env)
			if err != nil {
				logger.Error().Err(err).Msg("envelope marshal")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	})
}

type ingestAck struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// registerIngestWS wires the dev/test leg: JSON fragments straight into
// the pipeline, one ack or error reply per message.
func registerIngestWS(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /ws/transcripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ingest ws upgrade")
			return
		}
		defer func() { _ = conn.Close() }()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				writeWSJSON(conn, wsError{Type: "error", Message: "expected JSON text message"})
				continue
			}

			var frag transcript.Fragment
			if err := json.Unmarshal(data, &frag); err != nil {
				writeWSJSON(conn, wsError{Type: "error", Message: "parse fragment: " + err.Error()})
				continue
			}

			seq, err := deps.Pipeline.Ingest(sessionID, frag, ingest.SourceTest)
			if err != nil {
				writeWSJSON(conn, wsError{Type: "error", Message: err.Error()})
				continue
			}
			writeWSJSON(conn, ingestAck{Type: "ingest_ack", Seq: seq})
		}
	})
}

func writeWSJSON(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
