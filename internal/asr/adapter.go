// Package asr adapts black-box streaming speech-to-text engines into
// transcript fragment producers. The engines themselves are out of
// scope; this layer only frames audio in and fragments out.
package asr

import (
	"context"

	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/transcript"
)

// FragmentHandler receives each fragment the engine produces.
type FragmentHandler func(frag transcript.Fragment)

// Stream is one live recognition stream.
type Stream interface {
	// SendAudio forwards raw PCM bytes to the engine.
	SendAudio(p []byte) error
	// Stop closes the stream. Idempotent.
	Stop()
}

// Factory opens recognition streams for a session's audio format.
type Factory interface {
	Open(ctx context.Context, cfg session.Config, onFragment FragmentHandler) (Stream, error)
}
