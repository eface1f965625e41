package orchestrationports

import (
	"context"
	"encoding/json"
	"time"
)

// ChatReply is a text reply from a backend agent.
type ChatReply struct {
	Message string          // must be non-empty to be actionable
	Raw     json.RawMessage // original payload, if the backend sent one
}

// AudioClip is an opaque audio payload; only its duration is consulted.
type AudioClip struct {
	Data     []byte
	Format   string
	Duration time.Duration
}

// ReplyHandlers is the bundle of callbacks a backend handle invokes for one subscriber.
// Any field may be nil.
type ReplyHandlers struct {
	OnChat  func(ChatReply)
	OnAudio func(*AudioClip) // nil clip means the backend returned no audio
	OnError func(message string)
}

// AgentHandle is the external backend that turns a prompt into a reply, asynchronously.
type AgentHandle interface {
	// Dispatch sends the prompt and returns once it is handed off; replies
	// arrive through the subscribed handlers.
	Dispatch(ctx context.Context, projectID, prompt string) error
	// Subscribe registers handlers and returns the matching unsubscribe func.
	Subscribe(h ReplyHandlers) (unsubscribe func())
}
