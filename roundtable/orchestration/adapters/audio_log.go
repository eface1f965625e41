package adapters

import (
	"context"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
	"github.com/rs/zerolog"
)

// LogAudioPlayer stands in for a speaker device: it records each clip and
// returns immediately, leaving the duration wait to the orchestrator.
type LogAudioPlayer struct {
	logger zerolog.Logger
}

func NewLogAudioPlayer(logger zerolog.Logger) *LogAudioPlayer {
	return &LogAudioPlayer{logger: logger.With().Str("component", "audio").Logger()}
}

func (p *LogAudioPlayer) Play(ctx context.Context, clip *ports.AudioClip) error {
	if clip == nil {
		return nil
	}
	p.logger.Debug().
		Str("format", clip.Format).
		Int("bytes", len(clip.Data)).
		Dur("duration", clip.Duration).
		Msg("Playing audio clip")
	return ctx.Err()
}

var _ ports.AudioPlayer = (*LogAudioPlayer)(nil)
