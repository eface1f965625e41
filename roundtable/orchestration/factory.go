package orchestration

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/roundtable/roundtable/config"
	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	"github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/adapters"
	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

// Factory creates and wires orchestration components from configuration.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewFactory creates a new orchestration factory.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateRoster creates an empty roster with the configured ordering.
func (f *Factory) CreateRoster() *roster.Roster {
	seed := f.cfg.Roster.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return roster.New(roster.Options{
		RandomizeAfterOpening: f.cfg.Roster.RandomizeAfterOpening,
		Rand:                  rand.New(rand.NewSource(seed)),
	}, f.logger)
}

// CreateContextBuilder creates a prompt builder from the context section.
func (f *Factory) CreateContextBuilder() *ContextBuilder {
	return NewContextBuilder(ContextOptions{
		Separator:      f.cfg.Context.Separator,
		PreambleFormat: f.cfg.Context.PreambleFormat,
		NameJoiner:     f.cfg.Context.NameJoiner,
	})
}

// CreatePolicy creates a round policy from config. Negative timeouts are clamped to zero.
func (f *Factory) CreatePolicy() Policy {
	policy := Policy{
		TurnTimeout:   f.cfg.Orchestrator.TurnTimeout,
		ReleaseOnChat: f.cfg.Orchestrator.ReleaseOnChat,
	}
	if policy.TurnTimeout < 0 {
		f.logger.Warn().Dur("turn_timeout", policy.TurnTimeout).Msg("TurnTimeout clamped to 0 (disabled)")
		policy.TurnTimeout = 0
	}
	return policy
}

// CreateOrchestrator creates a fully wired TurnOrchestrator. Surfaces in c
// take precedence; the limiter and tracer come from config when unset.
func (f *Factory) CreateOrchestrator(log *conversation.Log, r *roster.Roster, c Collaborators) *TurnOrchestrator {
	if log == nil {
		log = conversation.NewLog()
	}
	if r == nil {
		r = f.CreateRoster()
	}
	if c.Limiter == nil {
		c.Limiter = f.createRateLimiter()
	}
	if c.Tracer == nil {
		c.Tracer = f.createTracer()
	}

	return NewTurnOrchestrator(log, r, f.CreateContextBuilder(), c, Options{
		PlayerName:  f.cfg.Session.PlayerName,
		Session:     conversation.NewSession(time.Now()),
		LogDir:      f.cfg.Session.LogDir(),
		PrettyPrint: f.cfg.Session.PrettyPrint,
		Policy:      f.CreatePolicy(),
	}, f.logger)
}

// HandleFactory returns a constructor of websocket handles to the configured backend.
func (f *Factory) HandleFactory() roster.HandleFactory {
	return func(profile *roster.AgentProfile) (ports.AgentHandle, error) {
		if f.cfg.Backend.URL == "" {
			return nil, fmt.Errorf("no backend url configured for agent %s", profile.ID)
		}
		return adapters.NewWebsocketAgent(adapters.WebsocketAgentConfig{
			URL:         f.cfg.Backend.URL,
			AgentID:     profile.ID,
			APIKey:      os.Getenv(f.cfg.Backend.APIKeyEnv),
			DialTimeout: f.cfg.Backend.DialTimeout,
		}, f.logger)
	}
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Orchestrator.RateLimitEnabled {
		return noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Orchestrator.RateLimitCapacity, f.cfg.Orchestrator.RateLimitRefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Orchestrator.EnableTracing {
		return noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}
