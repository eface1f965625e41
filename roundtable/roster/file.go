package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSpec is one agent entry in a roster file.
type AgentSpec struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Project        string `yaml:"project"`
	Participates   *bool  `yaml:"participates"`
	OpeningSpeaker bool   `yaml:"opening_speaker"`
	Persona        string `yaml:"persona"`
}

// File is the on-disk roster document.
type File struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadFile parses a YAML roster file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 - roster path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roster file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Agents))
	for i, spec := range f.Agents {
		if spec.ID == "" {
			return nil, fmt.Errorf("roster file %s: agent %d has no id", path, i)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("roster file %s: duplicate agent id %q", path, spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	return &f, nil
}

// Profile builds an AgentProfile from the spec. Participation defaults to true.
func (s AgentSpec) Profile() *AgentProfile {
	participates := true
	if s.Participates != nil {
		participates = *s.Participates
	}
	return &AgentProfile{
		ID:             s.ID,
		Name:           s.Name,
		ProjectID:      s.Project,
		Participates:   participates,
		OpeningSpeaker: s.OpeningSpeaker,
		Persona:        s.Persona,
	}
}

// Apply copies the mutable flags of the spec onto an existing profile.
func (s AgentSpec) Apply(p *AgentProfile) {
	fresh := s.Profile()
	p.Name = fresh.Name
	p.ProjectID = fresh.ProjectID
	p.Participates = fresh.Participates
	p.OpeningSpeaker = fresh.OpeningSpeaker
	p.Persona = fresh.Persona
}
