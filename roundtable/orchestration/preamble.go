package orchestration

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

// PreambleTracker decides when an agent needs the participant preamble: once
// per agent, and again for everyone after the participant set changes.
type PreambleTracker struct {
	mu       sync.Mutex
	notified map[string]struct{}
	lastHash string
}

func NewPreambleTracker() *PreambleTracker {
	return &PreambleTracker{notified: make(map[string]struct{})}
}

// ShouldInclude recomputes the participant hash and reports whether agentID
// still needs the preamble. A changed hash forgets every prior notification.
func (t *PreambleTracker) ShouldInclude(agentID string, participants []*roster.AgentProfile) bool {
	hash := ParticipantHash(participants)

	t.mu.Lock()
	defer t.mu.Unlock()
	if hash != t.lastHash {
		t.lastHash = hash
		t.notified = make(map[string]struct{})
	}
	_, seen := t.notified[agentID]
	return !seen
}

// MarkNotified records that agentID received the preamble for the current set.
func (t *PreambleTracker) MarkNotified(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notified[agentID] = struct{}{}
}

// Reset forgets all notifications and the stored hash.
func (t *PreambleTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notified = make(map[string]struct{})
	t.lastHash = ""
}

// ParticipantHash is a stable digest of the sorted id/name pairs.
func ParticipantHash(participants []*roster.AgentProfile) string {
	entries := make([]string, 0, len(participants))
	for _, p := range participants {
		if p == nil {
			continue
		}
		entries = append(entries, p.ID+"="+p.Name)
	}
	sort.Strings(entries)

	sum := sha256.Sum256([]byte(strings.Join(entries, "|")))
	return hex.EncodeToString(sum[:])
}
