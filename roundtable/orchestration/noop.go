package orchestration

import (
	"context"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// noOpDisplay discards conversation lines.
type noOpDisplay struct{}

func (noOpDisplay) AddUserMessage(string)              {}
func (noOpDisplay) AddAssistantMessage(string, string) {}

// noOpInputLock ignores lock changes.
type noOpInputLock struct{}

func (noOpInputLock) SetInputLock(bool) {}

// noOpContextInput is always empty.
type noOpContextInput struct{}

func (noOpContextInput) Text() string { return "" }
func (noOpContextInput) Clear()       {}

// noOpNotifier drops warnings; they are still logged.
type noOpNotifier struct{}

func (noOpNotifier) Warn(string) {}

// noOpAudioPlayer plays nothing; the orchestrator still waits out the clip.
type noOpAudioPlayer struct{}

func (noOpAudioPlayer) Play(context.Context, *ports.AudioClip) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (noOpRateLimiter) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

func (noOpTracer) Event(context.Context, string, map[string]any) {}

var (
	_ ports.Display      = noOpDisplay{}
	_ ports.InputLock    = noOpInputLock{}
	_ ports.ContextInput = noOpContextInput{}
	_ ports.Notifier     = noOpNotifier{}
	_ ports.AudioPlayer  = noOpAudioPlayer{}
	_ ports.RateLimiter  = noOpRateLimiter{}
	_ ports.Tracer       = noOpTracer{}
)
