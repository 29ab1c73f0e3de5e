package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/asr"
	"github.com/meetline/recapd/internal/ingest"
	"github.com/meetline/recapd/internal/logging"
	"github.com/meetline/recapd/internal/transcript"
)

// AudioForwardQueueCap bounds frames buffered between the WebSocket
// read loop and the recognition stream. A full queue drops the frame
// and tells the producer to slow down.
const AudioForwardQueueCap = 50

type audioStartMessage struct {
	Type  string `json:"type"`
	Audio struct {
		Codec        string `json:"codec"`
		SampleRateHz int    `json:"sample_rate_hz"`
		Channels     int    `json:"channels"`
	} `json:"audio"`
	LanguageCode string `json:"language_code"`
	FrameMS      int    `json:"frame_ms"`
	StreamID     string `json:"stream_id"`
	ClientTSMS   int64  `json:"client_ts_ms"`
}

type audioStartAck struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type audioIngestOK struct {
	Type           string `json:"type"`
	ReceivedBytes  int64  `json:"received_bytes"`
	ReceivedFrames int64  `json:"received_frames"`
}

type throttleMessage struct {
	Type             string `json:"type"`
	SuggestedFrameMS int    `json:"suggested_frame_ms"`
}

// registerAudioWS wires the authenticated audio leg: one start control
// message, then binary PCM frames forwarded to the recognition stream.
func registerAudioWS(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /ws/audio/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("audio ws upgrade")
			return
		}
		defer func() { _ = conn.Close() }()

		logger := logging.WithSession(sessionID)

		if err := deps.Signer.Verify(r.URL.Query().Get("token"), sessionID); err != nil {
			logger.Warn().Err(err).Msg("audio ingest rejected")
			closeWS(conn, websocket.ClosePolicyViolation, "invalid or missing ingest token")
			return
		}

		sess := deps.Store.Ensure(sessionID, nil)
		cfg := sess.Config

		start, err := readStartMessage(conn)
		if err != nil {
			closeWS(conn, websocket.CloseUnsupportedData, "expected start control message")
			return
		}
		if start.Audio.Codec != cfg.AudioEncoding ||
			start.Audio.SampleRateHz != cfg.SampleRateHz ||
			start.Audio.Channels != cfg.Channels {
			logger.Warn().
				Str("codec", start.Audio.Codec).
				Int("sample_rate_hz", start.Audio.SampleRateHz).
				Int("channels", start.Audio.Channels).
				Msg("audio format mismatch")
			closeWS(conn, websocket.CloseUnsupportedData, "audio format mismatch")
			return
		}

		writeWSJSON(conn, audioStartAck{Type: "audio_start_ack", SessionID: sessionID})

		var stream asr.Stream
		if deps.ASR != nil {
			s, err := deps.ASR.Open(r.Context(), cfg, func(frag transcript.Fragment) {
				if _, err := deps.Pipeline.Ingest(sessionID, frag, ingest.SourceAudio); err != nil {
					logger.Warn().Err(err).Msg("audio fragment rejected")
				}
			})
			if err != nil {
				logger.Error().Err(err).Msg("recognition stream open")
				closeWS(conn, websocket.CloseInternalServerErr, "recognition unavailable")
				return
			}
			stream = s
			defer stream.Stop()
		}

		m := deps.metricsOrDefault()
		frames := make(chan []byte, AudioForwardQueueCap)
		defer close(frames)
		go func() {
			for frame := range frames {
				if stream == nil {
					continue
				}
				if err := stream.SendAudio(frame); err != nil {
					logger.Warn().Err(err).Msg("audio forward")
					return
				}
			}
		}()

		var receivedBytes, receivedFrames int64
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				receivedBytes += int64(len(data))
				receivedFrames++
				m.AudioBytesReceived.Add(float64(len(data)))
				m.AudioFramesReceived.Inc()

				select {
				case frames <- data:
				default:
					m.AudioThrottleSent.Inc()
					writeWSJSON(conn, throttleMessage{Type: "throttle", SuggestedFrameMS: MaxFrameMS})
				}

				if receivedFrames == 1 {
					writeWSJSON(conn, audioIngestOK{
						Type:           "audio_ingest_ok",
						ReceivedBytes:  receivedBytes,
						ReceivedFrames: receivedFrames,
					})
				}

			case websocket.TextMessage:
				var ctrl struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(data, &ctrl); err == nil && ctrl.Type == "stop" {
					logger.Debug().
						Int64("received_bytes", receivedBytes).
						Int64("received_frames", receivedFrames).
						Msg("audio leg stopped")
					return
				}
			}
		}
	})
}

func readStartMessage(conn *websocket.Conn) (audioStartMessage, error) {
	var start audioStartMessage
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	msgType, data, err := conn.ReadMessage()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return start, err
	}
	if msgType != websocket.TextMessage {
		return start, websocket.ErrBadHandshake
	}
	if err := json.Unmarshal(data, &start); err != nil {
		return start, err
	}
	if start.Type != "start" {
		return start, websocket.ErrBadHandshake
	}
	return start, nil
}

func closeWS(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
