package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTranscript    = errors.New("transcript is empty")
	ErrInputLocked        = errors.New("input is locked while a round is in progress")
	ErrOrchestratorClosed = errors.New("orchestrator is closed")
	ErrMissingRouting     = errors.New("agent has no backend routing id")
	ErrMissingHandle      = errors.New("agent has no backend handle")
	ErrTurnTimeout        = errors.New("agent did not reply in time")
	ErrBackend            = errors.New("backend reported an error")
)

// FailureKind classifies why an agent's turn did not complete.
type FailureKind string

const (
	KindConfiguration FailureKind = "configuration"
	KindTransport     FailureKind = "transport"
	KindTimeout       FailureKind = "timeout"
)

// TurnError describes a skipped or failed agent turn. It never aborts the round.
type TurnError struct {
	AgentID   string
	AgentName string
	Kind      FailureKind
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s turn for agent %s (%s): %v", e.Kind, e.AgentName, e.AgentID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
