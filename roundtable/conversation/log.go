package conversation

import (
	"strings"
	"sync"
	"time"
)

// Log is an append-only, insertion-ordered record of turns.
// It is safe for concurrent use; reply callbacks append from backend goroutines.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithClock overrides the clock used to stamp new turns.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLog creates an empty log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendTurn records a turn. Blank messages are dropped and reported as false.
func (l *Log) AppendTurn(speakerID, speakerName, message string) bool {
	if strings.TrimSpace(message) == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, Turn{
		SpeakerID:   speakerID,
		SpeakerName: speakerName,
		Message:     message,
		UnixMillis:  l.now().UnixMilli(),
	})
	return true
}

// Count returns the number of recorded turns.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Clear drops every turn.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}

// Turns returns a copy of all turns, oldest first.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// GetRecentTurns returns up to maxCount of the newest turns matching match,
// oldest first. A nil match accepts every turn.
func (l *Log) GetRecentTurns(match func(Turn) bool, maxCount int) []Turn {
	if maxCount <= 0 {
		return []Turn{}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Turn, 0, min(maxCount, len(l.turns)))
	for i := len(l.turns) - 1; i >= 0 && len(out) < maxCount; i-- {
		if match == nil || match(l.turns[i]) {
			out = append(out, l.turns[i])
		}
	}
	reverse(out)
	return out
}

// GetTurnsSinceLastAgentSpeak returns every turn recorded after the most recent
// turn by agentID, oldest first. If the agent never spoke the whole log is returned.
func (l *Log) GetTurnsSinceLastAgentSpeak(agentID string) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].SpokenBy(agentID) {
			start = i + 1
			break
		}
	}

	out := make([]Turn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out
}

func reverse(turns []Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
