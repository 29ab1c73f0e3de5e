// Package event defines the canonical events that flow through the
// per-session bus. Payloads are typed; JSON happens only at the
// transport and storage boundaries.
package event

type Kind string

const (
	KindConnected  Kind = "connected"
	KindTranscript Kind = "transcript_event"
	KindState      Kind = "state"
	KindError      Kind = "error"
)

// Payload is the closed set of event payloads.
type Payload interface {
	Kind() Kind
}

// Envelope is the wire shape delivered to every subscriber:
// {event, session_id, seq, payload}. Seq is assigned by the bus and is
// strictly increasing per session, starting at 1.
type Envelope struct {
	Event     Kind    `json:"event"`
	SessionID string  `json:"session_id"`
	Seq       uint64  `json:"seq"`
	Payload   Payload `json:"payload"`
}

type Connected struct {
	SessionID string `json:"session_id"`
}

func (Connected) Kind() Kind { return KindConnected }

type Transcript struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker"`
	TimeStart  float64 `json:"time_start"`
	TimeEnd    float64 `json:"time_end"`
	Language   string  `json:"lang"`

	// Internal-only fields, stripped before frontend delivery.
	Source           string `json:"source,omitempty"`
	TranscriptWindow string `json:"transcript_window,omitempty"`
	Question         string `json:"question,omitempty"`
}

func (Transcript) Kind() Kind { return KindTranscript }

// Redacted returns a copy safe for UI-facing delivery.
func (t Transcript) Redacted() Transcript {
	t.Source = ""
	t.TranscriptWindow = ""
	t.Question = ""
	return t
}

type Topic struct {
	TopicID string  `json:"topic_id"`
	Title   string  `json:"title"`
	StartT  float64 `json:"start_t"`
	EndT    float64 `json:"end_t"`
}

// IntentNone is the neutral intent label applied at session start and
// whenever inference output cannot be parsed.
const IntentNone = "NO_INTENT"

type Intent struct {
	Label string         `json:"label"`
	Slots map[string]any `json:"slots"`
}

// NoIntent returns the fully-defaulted neutral intent.
func NoIntent() Intent {
	return Intent{Label: IntentNone, Slots: map[string]any{}}
}

type State struct {
	Recap      string  `json:"recap"`
	Topic      Topic   `json:"topic"`
	Intent     Intent  `json:"intent"`
	WindowText string  `json:"window_text"`
	WindowStart float64 `json:"window_start"`
	WindowEnd   float64 `json:"window_end"`

	// Kept empty for backward compatibility with older consumers.
	Actions   []string `json:"actions"`
	Decisions []string `json:"decisions"`
	Risks     []string `json:"risks"`

	InferenceMS int64 `json:"inference_ms"`
	Fallback    bool  `json:"fallback"`
}

func (State) Kind() Kind { return KindState }

type ErrorInfo struct {
	Message string `json:"message"`
}

func (ErrorInfo) Kind() Kind { return KindError }
