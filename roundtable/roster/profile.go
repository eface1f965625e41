// Package roster owns agent membership and the per-round speaking order.
package roster

import (
	"github.com/google/uuid"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// AgentProfile describes one conversational agent.
type AgentProfile struct {
	ID             string            // assigned once, never regenerated
	Name           string            // display name
	ProjectID      string            // backend routing identifier
	Handle         ports.AgentHandle // executing backend handle
	Participates   bool              // false keeps the agent in the roster but out of rounds
	OpeningSpeaker bool              // pinned first in every round
	Persona        string            // optional persona preamble
}

// EnsureID assigns a stable identifier if the profile has none and returns it.
func (p *AgentProfile) EnsureID() string {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return p.ID
}

// DisplayName falls back to the identifier when no name is configured.
func (p *AgentProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
