package recap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meetline/recapd/internal/event"
)

// FallbackRecapPrefix starts every deterministic fallback recap.
const FallbackRecapPrefix = "Recap unavailable; latest transcript: "

const fallbackRecapChars = 200

// Meta is the context handed to the inference call alongside the window
// text.
type Meta struct {
	CurrentTopicID string
	CurrentTopic   string
	WindowStart    float64
	WindowEnd      float64
}

// Result is a fully-populated recap outcome. Never partially filled:
// either strict parsing succeeded, or the caller substituted Fallback.
type Result struct {
	Recap    string
	Topic    event.Topic
	NewTopic bool
	Intent   event.Intent
	Fallback bool
}

// Inferencer is the black-box recap call: window text + meta in,
// structured result out. May fail or return malformed content; callers
// must treat both identically and fall back.
type Inferencer interface {
	Infer(ctx context.Context, windowText string, meta Meta) (Result, error)
}

// The closed semantic intent label set.
var intentLabels = map[string]struct{}{
	event.IntentNone: {},
	"QUESTION":       {},
	"ACTION_ITEM":    {},
	"DECISION":       {},
	"SCHEDULING":     {},
	"CLARIFICATION":  {},
}

type wireTopic struct {
	TopicID string   `json:"topic_id"`
	Title   string   `json:"title"`
	StartT  *float64 `json:"start_t"`
	EndT    *float64 `json:"end_t"`
}

type wireIntent struct {
	Label string         `json:"label"`
	Slots map[string]any `json:"slots"`
}

type wireResult struct {
	Recap    string     `json:"recap"`
	NewTopic bool       `json:"new_topic"`
	Topic    wireTopic  `json:"topic"`
	Intent   wireIntent `json:"intent"`
}

// parseResult is the strict first stage: the raw text must be one JSON
// object. Anything else is an error and the caller falls back.
func parseResult(raw string, meta Meta) (Result, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return Result{}, fmt.Errorf("parse recap result: not a JSON object")
	}
	var wire wireResult
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Result{}, fmt.Errorf("parse recap result: %w", err)
	}

	return Result{
		Recap:    strings.TrimSpace(wire.Recap),
		NewTopic: wire.NewTopic,
		Topic:    coerceTopic(wire.Topic, meta),
		Intent:   coerceIntent(wire.Intent),
	}, nil
}

// coerceTopic fills a possibly-sparse topic payload. Missing or invalid
// identity carries the current topic forward; missing bounds take the
// window bounds; an inverted range clamps end to start.
func coerceTopic(w wireTopic, meta Meta) event.Topic {
	topicID := strings.TrimSpace(w.TopicID)
	if topicID == "" {
		topicID = meta.CurrentTopicID
	}
	if topicID == "" {
		topicID = uuid.NewString()
	}

	title := strings.TrimSpace(w.Title)
	if title == "" {
		title = meta.CurrentTopic
	}
	if title == "" {
		title = "General"
	}

	startT := meta.WindowStart
	if w.StartT != nil {
		startT = *w.StartT
	}
	endT := meta.WindowEnd
	if w.EndT != nil {
		endT = *w.EndT
	}
	if endT < startT {
		endT = startT
	}

	return event.Topic{TopicID: topicID, Title: title, StartT: startT, EndT: endT}
}

func coerceIntent(w wireIntent) event.Intent {
	label := strings.ToUpper(strings.TrimSpace(w.Label))
	if _, ok := intentLabels[label]; !ok {
		return event.NoIntent()
	}
	slots := w.Slots
	if slots == nil {
		slots = map[string]any{}
	}
	return event.Intent{Label: label, Slots: slots}
}

// Fallback is the deterministic result used whenever inference fails or
// returns malformed content: a truncated-transcript recap, no intent,
// and the current topic carried forward unchanged.
func Fallback(windowText string, meta Meta) Result {
	text := strings.TrimSpace(windowText)
	if len(text) > fallbackRecapChars {
		text = text[:fallbackRecapChars]
	}
	return Result{
		Recap:    FallbackRecapPrefix + text,
		Topic:    coerceTopic(wireTopic{}, meta),
		NewTopic: false,
		Intent:   event.NoIntent(),
		Fallback: true,
	}
}
