package recap

import (
	"context"
	"fmt"

	"github.com/meetline/recapd/internal/llm"
)

const systemPrompt = `You follow a live meeting transcript window and maintain a rolling recap.
Reply with one JSON object:
{"recap": "<2-3 sentence summary of the window>",
 "new_topic": <true if the conversation moved to a clearly new topic>,
 "topic": {"topic_id": "<stable id, reuse the current one unless new_topic>", "title": "<short topic title>", "start_t": <seconds>, "end_t": <seconds>},
 "intent": {"label": "<one of NO_INTENT, QUESTION, ACTION_ITEM, DECISION, SCHEDULING, CLARIFICATION>", "slots": {}}}`

// LLMInferencer performs recap inference through a completion client.
type LLMInferencer struct {
	client llm.Client
}

func NewLLMInferencer(client llm.Client) *LLMInferencer {
	return &LLMInferencer{client: client}
}

func (i *LLMInferencer) Infer(ctx context.Context, windowText string, meta Meta) (Result, error) {
	user := fmt.Sprintf(
		"Current topic: %q (id %q). Window covers %.1fs to %.1fs.\n\nTranscript window:\n%s",
		meta.CurrentTopic, meta.CurrentTopicID, meta.WindowStart, meta.WindowEnd, windowText,
	)

	raw, err := i.client.Complete(ctx, llm.Request{
		System:   systemPrompt,
		User:     user,
		WantJSON: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("recap inference: %w", err)
	}

	return parseResult(raw, meta)
}
