package orchestration

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

// ContextOptions controls how prompts are rendered.
type ContextOptions struct {
	Separator      string // joins sections and rendered turns
	PreambleFormat string // fmt format receiving the joined participant names
	NameJoiner     string // joins participant names inside the preamble
}

// DefaultContextOptions returns sensible defaults.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		Separator:      "\n",
		PreambleFormat: "You are in a conversation with %s.",
		NameJoiner:     ", ",
	}
}

// ContextBuilder renders the prompt text sent to one agent. The backend keeps
// its own memory of what it has been shown, so only turns since the agent last
// spoke are included.
type ContextBuilder struct {
	opts ContextOptions
}

// NewContextBuilder fills unset options with defaults.
func NewContextBuilder(opts ContextOptions) *ContextBuilder {
	def := DefaultContextOptions()
	if opts.Separator == "" {
		opts.Separator = def.Separator
	}
	if opts.PreambleFormat == "" {
		opts.PreambleFormat = def.PreambleFormat
	}
	if opts.NameJoiner == "" {
		opts.NameJoiner = def.NameJoiner
	}
	return &ContextBuilder{opts: opts}
}

// Build assembles, in order: the participant preamble (when requested), the
// agent persona, extra context, and the new turns rendered as "name: message".
// It returns "" for a nil agent.
func (b *ContextBuilder) Build(
	agent *roster.AgentProfile,
	log *conversation.Log,
	extraContext string,
	playerName string,
	agents []*roster.AgentProfile,
	includeParticipantContext bool,
) string {
	if agent == nil {
		return ""
	}

	sections := make([]string, 0, 4)
	if includeParticipantContext {
		if preamble := b.Preamble(agent, playerName, agents); preamble != "" {
			sections = append(sections, preamble)
		}
	}
	if persona := norm(agent.Persona); persona != "" {
		sections = append(sections, persona)
	}
	if extra := norm(extraContext); extra != "" {
		sections = append(sections, extra)
	}
	if log != nil {
		if history := b.renderTurns(agent.ID, log.GetTurnsSinceLastAgentSpeak(agent.ID)); history != "" {
			sections = append(sections, history)
		}
	}

	return strings.TrimSpace(strings.Join(sections, b.opts.Separator))
}

// Preamble renders the one-line "who else is here" text for agent.
func (b *ContextBuilder) Preamble(agent *roster.AgentProfile, playerName string, agents []*roster.AgentProfile) string {
	names := make([]string, 0, len(agents)+1)
	if playerName = strings.TrimSpace(playerName); playerName != "" {
		names = append(names, playerName)
	}
	for _, other := range agents {
		if other == nil || other.ID == agent.ID {
			continue
		}
		names = append(names, other.DisplayName())
	}
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf(b.opts.PreambleFormat, strings.Join(names, b.opts.NameJoiner))
}

func (b *ContextBuilder) renderTurns(agentID string, turns []conversation.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.SpokenBy(agentID) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.SpeakerName, norm(t.Message)))
	}
	return strings.Join(lines, b.opts.Separator)
}

// norm normalizes newlines and trims whitespace.
func norm(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }
