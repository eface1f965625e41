package roster

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoster(randomize bool, seed int64) *Roster {
	return New(Options{RandomizeAfterOpening: randomize, Rand: rand.New(rand.NewSource(seed))}, zerolog.Nop())
}

func agent(id string, opening bool) *AgentProfile {
	return &AgentProfile{ID: id, Name: id, ProjectID: "proj-" + id, Participates: true, OpeningSpeaker: opening}
}

// drain collects the identifiers TryGetNextAgent yields until exhaustion.
func drain(r *Roster) []string {
	var ids []string
	for {
		p, ok := r.TryGetNextAgent()
		if !ok {
			return ids
		}
		ids = append(ids, p.ID)
	}
}

func TestRoster_OpeningSpeakerFirst(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("bob", false))
	r.QueueAddAgent(agent("alice", true))
	r.QueueAddAgent(agent("carol", false))

	r.BeginCycle()

	assert.Equal(t, []string{"alice", "bob", "carol"}, drain(r))
}

func TestRoster_FirstOpeningSpeakerWins(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("bob", true))
	r.QueueAddAgent(agent("alice", true))

	r.BeginCycle()

	assert.Equal(t, []string{"bob", "alice"}, drain(r))
}

func TestRoster_ShuffleNeverMovesOpeningSpeaker(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		r := newTestRoster(true, seed)
		r.QueueAddAgent(agent("a", false))
		r.QueueAddAgent(agent("b", false))
		r.QueueAddAgent(agent("opener", true))
		r.QueueAddAgent(agent("c", false))
		r.QueueAddAgent(agent("d", false))

		for round := 0; round < 3; round++ {
			r.BeginCycle()
			ids := drain(r)
			require.Len(t, ids, 5)
			assert.Equal(t, "opener", ids[0], "seed %d round %d", seed, round)
			assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids[1:])
		}
	}
}

func TestRoster_ShuffleIsReproducibleWithSeed(t *testing.T) {
	build := func() *Roster {
		r := newTestRoster(true, 42)
		for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
			r.QueueAddAgent(agent(id, false))
		}
		r.BeginCycle()
		return r
	}
	assert.Equal(t, drain(build()), drain(build()))
}

func TestRoster_NonParticipatingExcluded(t *testing.T) {
	r := newTestRoster(false, 1)
	quiet := agent("quiet", true)
	quiet.Participates = false
	r.QueueAddAgent(quiet)
	r.QueueAddAgent(agent("bob", false))

	r.BeginCycle()

	assert.Equal(t, []string{"bob"}, drain(r))
	_, ok := r.TryGetProfile("quiet")
	assert.True(t, ok, "non-participating agents stay in the roster")
	assert.Len(t, r.Participants(), 1)
}

func TestRoster_MutationsInvisibleUntilNextCycle(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", true))
	r.QueueAddAgent(agent("bob", false))
	r.BeginCycle()
	assert.Equal(t, PhaseCycling, r.Phase())

	first, ok := r.TryGetNextAgent()
	require.True(t, ok)
	assert.Equal(t, "alice", first.ID)

	// Mid-round changes.
	r.QueueAddAgent(agent("carol", false))
	r.QueueRemoveAgent("bob")

	second, ok := r.TryGetNextAgent()
	require.True(t, ok)
	assert.Equal(t, "bob", second.ID, "removed agent still speaks this round")
	_, ok = r.TryGetNextAgent()
	assert.False(t, ok)
	assert.Equal(t, PhaseIdle, r.Phase())

	// Bob is addressable until the next cycle.
	_, ok = r.TryGetProfile("bob")
	assert.True(t, ok)
	_, ok = r.TryGetProfile("carol")
	assert.False(t, ok)

	r.BeginCycle()
	assert.Equal(t, []string{"alice", "carol"}, drain(r))
	_, ok = r.TryGetProfile("bob")
	assert.False(t, ok)
}

func TestRoster_QueueAddIsIdempotentPerID(t *testing.T) {
	r := newTestRoster(false, 1)
	p := agent("alice", false)

	assert.True(t, r.QueueAddAgent(p))
	assert.False(t, r.QueueAddAgent(p))
	assert.False(t, r.QueueAddAgent(agent("alice", false)))
	r.BeginCycle()
	assert.False(t, r.QueueAddAgent(agent("alice", false)), "already in base list")
	r.BeginCycle()

	assert.Len(t, r.Agents(), 1)
}

func TestRoster_QueueAddAssignsStableID(t *testing.T) {
	r := newTestRoster(false, 1)
	p := &AgentProfile{Name: "Anon", Participates: true}

	require.True(t, r.QueueAddAgent(p))
	id := p.ID
	assert.NotEmpty(t, id)
	assert.Equal(t, id, p.EnsureID())
	assert.False(t, r.QueueAddAgent(p))
	assert.False(t, r.QueueAddAgent(nil))
}

func TestRoster_QueueRemoveIsIdempotent(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", false))
	r.QueueAddAgent(agent("bob", false))
	r.BeginCycle()

	r.QueueRemoveAgent("alice")
	r.QueueRemoveAgent("alice")
	r.QueueRemoveAgent("")
	_, removals := r.Pending()
	assert.Equal(t, []string{"alice"}, removals)

	r.BeginCycle()
	assert.Equal(t, []string{"bob"}, drain(r))
}

func TestRoster_RemoveThenAddSameCycle(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", false))
	r.BeginCycle()

	// Removals apply before adds, but the add is rejected while alice is still in the base list.
	r.QueueRemoveAgent("alice")
	assert.False(t, r.QueueAddAgent(agent("alice", false)))
	r.BeginCycle()

	assert.Empty(t, r.Agents())
}

func TestRoster_EmptyRound(t *testing.T) {
	r := newTestRoster(false, 1)

	_, ok := r.TryGetNextAgent()
	assert.False(t, ok)

	r.BeginCycle()
	_, ok = r.TryGetNextAgent()
	assert.False(t, ok)
	_, ok = r.Current()
	assert.False(t, ok)
}

func TestRoster_CurrentTracksCursor(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", false))
	r.BeginCycle()

	_, ok := r.Current()
	assert.False(t, ok, "cursor starts before the first agent")

	r.TryGetNextAgent()
	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "alice", cur.ID)

	r.TryGetNextAgent()
	r.TryGetNextAgent()
	_, ok = r.Current()
	assert.False(t, ok)
}

func TestRoster_OrderSnapshotIsStable(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", false))
	r.BeginCycle()

	order := r.Order()
	r.QueueAddAgent(agent("bob", false))

	assert.Len(t, order, 1)
	assert.Len(t, r.Order(), 1)
}

func TestRoster_CancelRemoval(t *testing.T) {
	r := newTestRoster(false, 1)
	r.QueueAddAgent(agent("alice", false))
	r.BeginCycle()

	r.QueueRemoveAgent("alice")
	r.CancelRemoval("alice")
	r.BeginCycle()

	assert.Equal(t, []string{"alice"}, drain(r))
}

func TestRoster_UpdateProfileIsStagedUntilNextCycle(t *testing.T) {
	r := newTestRoster(false, 1)
	require.True(t, r.QueueAddAgent(agent("alice", false)))
	r.BeginCycle()

	live, ok := r.TryGetProfile("alice")
	require.True(t, ok)

	assert.True(t, r.UpdateProfile("alice", func(p *AgentProfile) { p.Name = "Alice 2" }))
	assert.True(t, r.UpdateProfile("alice", func(p *AgentProfile) { p.Persona = "terse"; p.ID = "hijack" }))
	assert.False(t, r.UpdateProfile("ghost", func(p *AgentProfile) { p.Name = "x" }))

	// The running round keeps reading an unchanged profile.
	assert.Equal(t, "alice", live.Name)
	assert.Empty(t, live.Persona)
	current, _ := r.TryGetProfile("alice")
	assert.Same(t, live, current)

	r.BeginCycle()
	next, ok := r.TryGetProfile("alice")
	require.True(t, ok)
	assert.NotSame(t, live, next)
	assert.Equal(t, "Alice 2", next.Name, "successive edits compose")
	assert.Equal(t, "terse", next.Persona)
	assert.Equal(t, "alice", next.ID, "the identifier never changes")
	assert.Equal(t, "alice", live.Name)
}

func TestRoster_BeginCycleReturnsRemovedProfiles(t *testing.T) {
	r := newTestRoster(false, 1)
	alice, bob := agent("alice", false), agent("bob", false)
	r.QueueAddAgent(alice)
	r.QueueAddAgent(bob)
	assert.Empty(t, r.BeginCycle())

	r.QueueRemoveAgent("bob")
	r.QueueRemoveAgent("ghost")
	removed := r.BeginCycle()
	require.Len(t, removed, 1)
	assert.Same(t, bob, removed[0])
}

func TestRoster_PendingAgents(t *testing.T) {
	r := newTestRoster(false, 1)
	carol := agent("carol", false)
	r.QueueAddAgent(carol)

	pending := r.PendingAgents()
	require.Len(t, pending, 1)
	assert.Same(t, carol, pending[0])

	r.BeginCycle()
	assert.Empty(t, r.PendingAgents())
}
