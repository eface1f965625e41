package roster

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Phase is the roster's position in the round lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCycling
)

func (p Phase) String() string {
	if p == PhaseCycling {
		return "cycling"
	}
	return "idle"
}

// Options configures a Roster.
type Options struct {
	RandomizeAfterOpening bool
	Rand                  *rand.Rand // nil seeds from the clock
}

// Roster holds the base membership list plus buffered mutations. Mutations
// queued through QueueAddAgent and QueueRemoveAgent take effect only at the
// next BeginCycle, so a round always iterates a stable snapshot.
type Roster struct {
	mu sync.Mutex

	base          []*AgentProfile
	pendingAdd    []*AgentProfile
	pendingRemove map[string]struct{}
	pendingUpdate map[string]*AgentProfile

	order  []*AgentProfile
	cursor int
	phase  Phase

	randomize bool
	rng       *rand.Rand
	logger    zerolog.Logger
}

// New creates an empty roster.
func New(opts Options, logger zerolog.Logger) *Roster {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Roster{
		pendingRemove: make(map[string]struct{}),
		pendingUpdate: make(map[string]*AgentProfile),
		cursor:        -1,
		randomize:     opts.RandomizeAfterOpening,
		rng:           rng,
		logger:        logger.With().Str("component", "roster").Logger(),
	}
}

// QueueAddAgent buffers profile for the next cycle, assigning it an identifier
// if it has none. It returns false when an agent with that identifier is
// already queued or already in the base list.
func (r *Roster) QueueAddAgent(profile *AgentProfile) bool {
	if profile == nil {
		return false
	}
	id := profile.EnsureID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(r.base, id) >= 0 || r.indexOf(r.pendingAdd, id) >= 0 {
		r.logger.Debug().Str("agent_id", id).Msg("Ignoring duplicate agent add")
		return false
	}
	r.pendingAdd = append(r.pendingAdd, profile)
	r.logger.Debug().Str("agent_id", id).Str("agent", profile.Name).Msg("Queued agent add")
	return true
}

// QueueRemoveAgent marks agentID for removal at the next cycle. Idempotent.
func (r *Roster) QueueRemoveAgent(agentID string) {
	if agentID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRemove[agentID] = struct{}{}
	r.logger.Debug().Str("agent_id", agentID).Msg("Queued agent removal")
}

// CancelRemoval withdraws a queued removal for agentID, if any.
func (r *Roster) CancelRemoval(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingRemove, agentID)
}

// BeginCycle folds queued removals, staged profile edits and then queued adds
// into the base list, recomputes the runtime order and rewinds the cursor. It
// returns the profiles that left the base list.
func (r *Roster) BeginCycle() (removed []*AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added, updated := len(r.pendingAdd), 0
	if len(r.pendingRemove) > 0 {
		kept := r.base[:0]
		for _, p := range r.base {
			if _, drop := r.pendingRemove[p.ID]; drop {
				removed = append(removed, p)
				continue
			}
			kept = append(kept, p)
		}
		// Clear the tail so dropped profiles are not retained by the backing array.
		for i := len(kept); i < len(r.base); i++ {
			r.base[i] = nil
		}
		r.base = kept
	}
	for i, p := range r.base {
		if next, ok := r.pendingUpdate[p.ID]; ok {
			r.base[i] = next
			updated++
		}
	}
	r.base = append(r.base, r.pendingAdd...)

	r.pendingAdd = nil
	r.pendingRemove = make(map[string]struct{})
	r.pendingUpdate = make(map[string]*AgentProfile)

	r.order = r.computeOrder()
	r.cursor = -1
	r.phase = PhaseCycling

	r.logger.Debug().
		Int("removed", len(removed)).
		Int("updated", updated).
		Int("added", added).
		Int("members", len(r.base)).
		Strs("order", names(r.order)).
		Msg("Cycle started")
	return removed
}

// computeOrder pins the first opening speaker and appends the remaining
// participating agents, shuffled when configured. Caller holds r.mu.
func (r *Roster) computeOrder() []*AgentProfile {
	var opening *AgentProfile
	rest := make([]*AgentProfile, 0, len(r.base))
	for _, p := range r.base {
		if !p.Participates {
			continue
		}
		if opening == nil && p.OpeningSpeaker {
			opening = p
			continue
		}
		rest = append(rest, p)
	}

	if r.randomize {
		r.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	}

	if opening == nil {
		return rest
	}
	return append([]*AgentProfile{opening}, rest...)
}

// TryGetNextAgent advances the cursor and returns the next agent in the
// runtime order, or false once the round is exhausted.
func (r *Roster) TryGetNextAgent() (*AgentProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		r.phase = PhaseIdle
		return nil, false
	}
	r.cursor++
	if r.cursor >= len(r.order) {
		r.cursor = len(r.order)
		r.phase = PhaseIdle
		return nil, false
	}
	return r.order[r.cursor], true
}

// Current returns the agent at the cursor, if any.
func (r *Roster) Current() (*AgentProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor < 0 || r.cursor >= len(r.order) {
		return nil, false
	}
	return r.order[r.cursor], true
}

// TryGetProfile looks agentID up in the base list. Agents queued for removal
// stay addressable until the next BeginCycle.
func (r *Roster) TryGetProfile(agentID string) (*AgentProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(r.base, agentID); i >= 0 {
		return r.base[i], true
	}
	return nil, false
}

// UpdateProfile stages an edit of the base-list profile with agentID. fn
// receives a copy, which replaces the live profile at the next BeginCycle, so
// profiles handed out for the running round never change underneath it.
// Successive updates before a cycle compose.
func (r *Roster) UpdateProfile(agentID string, fn func(*AgentProfile)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(r.base, agentID)
	if i < 0 {
		return false
	}
	src := r.base[i]
	if staged, ok := r.pendingUpdate[agentID]; ok {
		src = staged
	}
	next := *src
	fn(&next)
	next.ID = agentID
	r.pendingUpdate[agentID] = &next
	return true
}

// Agents returns a snapshot of the base list.
func (r *Roster) Agents() []*AgentProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AgentProfile, len(r.base))
	copy(out, r.base)
	return out
}

// Participants returns the participating agents of the base list.
func (r *Roster) Participants() []*AgentProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AgentProfile, 0, len(r.base))
	for _, p := range r.base {
		if p.Participates {
			out = append(out, p)
		}
	}
	return out
}

// Order returns a snapshot of the runtime order computed by the last BeginCycle.
func (r *Roster) Order() []*AgentProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AgentProfile, len(r.order))
	copy(out, r.order)
	return out
}

// PendingAgents returns the profiles queued for add.
func (r *Roster) PendingAgents() []*AgentProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AgentProfile, len(r.pendingAdd))
	copy(out, r.pendingAdd)
	return out
}

// Pending returns the identifiers still waiting for the next cycle.
func (r *Roster) Pending() (adds, removals []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pendingAdd {
		adds = append(adds, p.ID)
	}
	for id := range r.pendingRemove {
		removals = append(removals, id)
	}
	return adds, removals
}

// Phase returns the roster phase.
func (r *Roster) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Roster) indexOf(list []*AgentProfile, id string) int {
	for i, p := range list {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func names(list []*AgentProfile) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.DisplayName()
	}
	return out
}
