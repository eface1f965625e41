// Package conversation records who said what during a session and persists it.
package conversation

import "time"

// Turn is one immutable entry in the conversation log.
type Turn struct {
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
	Message     string `json:"message"`
	UnixMillis  int64  `json:"unixTimeMilliseconds"`
}

// Time returns the creation time of the turn.
func (t Turn) Time() time.Time {
	return time.UnixMilli(t.UnixMillis)
}

// SpokenBy reports whether the turn was authored by speakerID.
func (t Turn) SpokenBy(speakerID string) bool {
	return t.SpeakerID == speakerID
}
