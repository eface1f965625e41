package orchestrationports

import "context"

// AudioPlayer starts playback of a clip. The orchestrator waits out the clip
// duration itself, so Play should not block until playback ends.
type AudioPlayer interface {
	Play(ctx context.Context, clip *AudioClip) error
}
