package orchestration

import (
	"sync"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// subscriptionRegistry maps agent identifiers to the unsubscribe func of the
// handlers attached to that agent's backend handle.
type subscriptionRegistry struct {
	mu   sync.Mutex
	subs map[string]func()
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[string]func())}
}

// Attach subscribes handlers once per agent. It reports whether a new subscription was made.
func (r *subscriptionRegistry) Attach(agentID string, handle ports.AgentHandle, handlers ports.ReplyHandlers) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[agentID]; ok {
		return false
	}
	r.subs[agentID] = handle.Subscribe(handlers)
	return true
}

// Detach unsubscribes agentID, if attached.
func (r *subscriptionRegistry) Detach(agentID string) {
	r.mu.Lock()
	unsubscribe, ok := r.subs[agentID]
	delete(r.subs, agentID)
	r.mu.Unlock()
	if ok && unsubscribe != nil {
		unsubscribe()
	}
}

// Retain detaches every agent not in keep.
func (r *subscriptionRegistry) Retain(keep map[string]struct{}) {
	r.mu.Lock()
	var stale []string
	for id := range r.subs {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.Detach(id)
	}
}

// DetachAll unsubscribes everything.
func (r *subscriptionRegistry) DetachAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]func())
	r.mu.Unlock()
	for _, unsubscribe := range subs {
		if unsubscribe != nil {
			unsubscribe()
		}
	}
}

// Attached reports whether agentID has live handlers.
func (r *subscriptionRegistry) Attached(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[agentID]
	return ok
}
