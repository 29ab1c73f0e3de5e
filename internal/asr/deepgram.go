package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/audio"
	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/transcript"
)

const defaultDeepgramModel = "nova-2"

// DeepgramFactory opens live transcription streams against Deepgram.
type DeepgramFactory struct {
	APIKey string
	Model  string
}

func (f *DeepgramFactory) Open(ctx context.Context, cfg session.Config, onFragment FragmentHandler) (Stream, error) {
	if onFragment == nil {
		return nil, errors.New("asr: nil fragment handler")
	}
	model := f.Model
	if model == "" {
		model = defaultDeepgramModel
	}

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       cfg.LanguageCode,
		Diarize:        true,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: cfg.InterimResults,
		Encoding:       "linear16",
		SampleRate:     cfg.SampleRateHz,
		Channels:       cfg.Channels,
	}

	cb := &deepgramCallback{
		onFragment: onFragment,
		clock:      audio.NewClock(cfg.SampleRateHz, cfg.Channels, 16),
	}

	dgClient, err := client.NewWSUsingCallback(ctx, f.APIKey, cOptions, tOptions, cb)
	if err != nil {
		return nil, fmt.Errorf("asr: deepgram client: %w", err)
	}
	if ok := dgClient.Connect(); !ok {
		return nil, errors.New("asr: deepgram connect failed")
	}
	return &deepgramStream{client: dgClient, cb: cb}, nil
}

// deepgramClient is the slice of the SDK client the stream needs:
// audio bytes in, explicit stop.
type deepgramClient interface {
	io.Writer
	Stop()
}

type deepgramStream struct {
	client  deepgramClient
	cb      *deepgramCallback
	stopped sync.Once
}

func (s *deepgramStream) SendAudio(p []byte) error {
	s.cb.advance(len(p))
	_, err := s.client.Write(p)
	return err
}

func (s *deepgramStream) Stop() {
	s.stopped.Do(func() { s.client.Stop() })
}

// deepgramCallback translates live transcription messages into
// fragments. Word timings come from Deepgram when present; otherwise
// the sample clock supplies the window since the previous fragment.
type deepgramCallback struct {
	onFragment FragmentHandler

	mu          sync.Mutex
	clock       *audio.Clock
	seq         uint64
	lastEmitEnd float64
}

func (c *deepgramCallback) advance(byteLen int) {
	c.mu.Lock()
	c.clock.Advance(byteLen)
	c.mu.Unlock()
}

func (c *deepgramCallback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	c.seq++
	frag := transcript.Fragment{
		Sequence:   c.seq,
		Speaker:    "spk_0",
		Confidence: alt.Confidence,
		Text:       text,
		IsFinal:    mr.IsFinal,
	}
	if len(alt.Words) > 0 {
		first := alt.Words[0]
		last := alt.Words[len(alt.Words)-1]
		frag.TimeStart = first.Start
		frag.TimeEnd = last.End
		if first.Speaker != nil {
			frag.Speaker = fmt.Sprintf("spk_%d", *first.Speaker)
		}
	} else {
		frag.TimeStart = c.lastEmitEnd
		frag.TimeEnd = c.clock.Now()
	}
	if frag.IsFinal && frag.TimeEnd > c.lastEmitEnd {
		c.lastEmitEnd = frag.TimeEnd
	}
	c.mu.Unlock()

	c.onFragment(frag)
	return nil
}

func (c *deepgramCallback) Open(*api.OpenResponse) error {
	log.Debug().Msg("deepgram stream open")
	return nil
}

func (c *deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c *deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c *deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (c *deepgramCallback) Close(*api.CloseResponse) error {
	log.Debug().Msg("deepgram stream closed")
	return nil
}

func (c *deepgramCallback) Error(er *api.ErrorResponse) error {
	log.Warn().Str("code", er.ErrCode).Str("description", er.Description).Msg("deepgram error")
	return nil
}

func (c *deepgramCallback) UnhandledEvent([]byte) error { return nil }
