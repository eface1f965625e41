package orchestration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

func fixedLog(turns ...[3]string) *conversation.Log {
	now := time.Unix(1_700_000_000, 0)
	log := conversation.NewLog(conversation.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	for _, t := range turns {
		log.AppendTurn(t[0], t[1], t[2])
	}
	return log
}

func TestContextBuilder_Build(t *testing.T) {
	alice := &roster.AgentProfile{ID: "alice", Name: "Alice", Participates: true}
	bob := &roster.AgentProfile{ID: "bob", Name: "Bob", Participates: true}
	agents := []*roster.AgentProfile{alice, bob}

	log := fixedLog(
		[3]string{"player", "Player", "What's the weather?"},
		[3]string{"alice", "Alice", "Sunny"},
		[3]string{"player", "Player", "And tomorrow?\r\n"},
	)

	b := NewContextBuilder(DefaultContextOptions())

	tests := []struct {
		name     string
		agent    *roster.AgentProfile
		extra    string
		preamble bool
		want     string
	}{
		{
			name:     "preamble and full history for a new agent",
			agent:    bob,
			preamble: true,
			want:     "You are in a conversation with Player, Alice.\nPlayer: What's the weather?\nAlice: Sunny\nPlayer: And tomorrow?",
		},
		{
			name:  "only turns since the agent last spoke",
			agent: alice,
			want:  "Player: And tomorrow?",
		},
		{
			name:  "extra context before history",
			agent: alice,
			extra: "  Be brief.  ",
			want:  "Be brief.\nPlayer: And tomorrow?",
		},
		{
			name: "nil agent",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Build(tt.agent, log, tt.extra, "Player", agents, tt.preamble)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextBuilder_PersonaAndOptions(t *testing.T) {
	agent := &roster.AgentProfile{ID: "alice", Name: "Alice", Persona: "You are a meteorologist."}
	other := &roster.AgentProfile{ID: "bob"}
	log := fixedLog([3]string{"player", "Me", "Hi"})

	b := NewContextBuilder(ContextOptions{Separator: " | ", PreambleFormat: "Present: %s", NameJoiner: " & "})
	got := b.Build(agent, log, "", "Me", []*roster.AgentProfile{agent, other}, true)

	assert.Equal(t, "Present: Me & bob | You are a meteorologist. | Me: Hi", got)
}

func TestContextBuilder_NothingNew(t *testing.T) {
	agent := &roster.AgentProfile{ID: "alice", Name: "Alice"}
	log := fixedLog([3]string{"alice", "Alice", "Last word"})

	b := NewContextBuilder(ContextOptions{})
	assert.Empty(t, b.Build(agent, log, "", "Player", nil, false))
	assert.Empty(t, b.Build(agent, nil, "", "", nil, true))
}

func TestPreambleTracker(t *testing.T) {
	a := &roster.AgentProfile{ID: "a", Name: "A"}
	b := &roster.AgentProfile{ID: "b", Name: "B"}
	c := &roster.AgentProfile{ID: "c", Name: "C"}
	tracker := NewPreambleTracker()

	ab := []*roster.AgentProfile{a, b}
	assert.True(t, tracker.ShouldInclude("a", ab))
	tracker.MarkNotified("a")
	assert.False(t, tracker.ShouldInclude("a", ab))
	assert.True(t, tracker.ShouldInclude("b", ab))
	tracker.MarkNotified("b")

	// Order does not matter.
	assert.False(t, tracker.ShouldInclude("a", []*roster.AgentProfile{b, a}))

	abc := []*roster.AgentProfile{a, b, c}
	assert.True(t, tracker.ShouldInclude("a", abc), "adding a participant re-notifies everyone")
	assert.True(t, tracker.ShouldInclude("b", abc))

	tracker.MarkNotified("a")
	renamed := []*roster.AgentProfile{a, b, {ID: "c", Name: "Cee"}}
	assert.True(t, tracker.ShouldInclude("a", renamed), "a rename changes the participant set")

	tracker.MarkNotified("a")
	tracker.Reset()
	assert.True(t, tracker.ShouldInclude("a", renamed))
}

func TestParticipantHash(t *testing.T) {
	a := &roster.AgentProfile{ID: "a", Name: "A"}
	b := &roster.AgentProfile{ID: "b", Name: "B"}

	assert.Equal(t, ParticipantHash([]*roster.AgentProfile{a, b}), ParticipantHash([]*roster.AgentProfile{b, a, nil}))
	assert.NotEqual(t, ParticipantHash([]*roster.AgentProfile{a}), ParticipantHash([]*roster.AgentProfile{a, b}))
	assert.Len(t, ParticipantHash(nil), 64)
}

func TestSubscriptionRegistry(t *testing.T) {
	alice := newStubAgent(nil)
	bob := newStubAgent(nil)
	reg := newSubscriptionRegistry()

	assert.True(t, reg.Attach("alice", alice, ports.ReplyHandlers{}))
	assert.False(t, reg.Attach("alice", alice, ports.ReplyHandlers{}), "attach is once per agent")
	assert.True(t, reg.Attach("bob", bob, ports.ReplyHandlers{}))
	assert.Equal(t, 1, alice.Subscribers())

	reg.Retain(map[string]struct{}{"bob": {}})
	assert.False(t, reg.Attached("alice"))
	assert.Equal(t, 0, alice.Subscribers())
	assert.True(t, reg.Attached("bob"))

	reg.Detach("missing")
	reg.DetachAll()
	assert.Equal(t, 0, bob.Subscribers())
	assert.False(t, reg.Attached("bob"))
}

func TestTurnError(t *testing.T) {
	err := &TurnError{AgentID: "bob", AgentName: "Bob", Kind: KindTimeout, Err: ErrTurnTimeout}
	assert.ErrorIs(t, err, ErrTurnTimeout)
	assert.Equal(t, "timeout turn for agent Bob (bob): agent did not reply in time", err.Error())
}
