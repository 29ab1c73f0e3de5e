// Package transcript holds the transcript fragment model and the
// per-session rolling retention window.
package transcript

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyText rejects fragments whose text is empty after trimming.
	ErrEmptyText = errors.New("fragment text is empty")
	// ErrInvalidTimeRange rejects fragments with time_end < time_start.
	ErrInvalidTimeRange = errors.New("fragment time_end precedes time_start")
)

// Fragment is one unit of producer output, partial or final. Sequence is
// producer-local; the canonical per-session sequence is assigned by the
// event bus at publish time.
type Fragment struct {
	Sequence   uint64  `json:"sequence"`
	TimeStart  float64 `json:"time_start"`
	TimeEnd    float64 `json:"time_end"`
	Speaker    string  `json:"speaker"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
}

// Validate checks the fragment invariants. A fragment that fails
// validation must not mutate session state or produce a canonical event.
func (f Fragment) Validate() error {
	if strings.TrimSpace(f.Text) == "" {
		return ErrEmptyText
	}
	if f.TimeEnd < f.TimeStart {
		return ErrInvalidTimeRange
	}
	return nil
}
