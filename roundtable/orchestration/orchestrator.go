package orchestration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	internal "github.com/ZanzyTHEbar/roundtable/roundtable"
	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

// State is the orchestrator's position in the round lifecycle.
type State int

const (
	StateAwaitingInput State = iota
	StateRoundInProgress
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateRoundInProgress:
		return "round_in_progress"
	case StatePersisting:
		return "persisting"
	default:
		return "awaiting_input"
	}
}

// TurnStatus is the outcome of one agent's turn within a round.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnSkipped   TurnStatus = "skipped"
	TurnCancelled TurnStatus = "cancelled"
)

// Policy controls round execution.
type Policy struct {
	TurnTimeout   time.Duration // per-agent reply deadline; 0 waits for a failure notification
	ReleaseOnChat bool          // complete the turn on the text reply instead of waiting for audio
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{TurnTimeout: 60 * time.Second}
}

// Options configures a TurnOrchestrator.
type Options struct {
	PlayerID    string
	PlayerName  string
	Session     conversation.Session
	LogDir      string // snapshot directory; empty disables persistence
	PrettyPrint bool
	Policy      Policy

	// OnRoundComplete, if set, receives every finished or cancelled round.
	OnRoundComplete func(RoundResult)
}

// Collaborators are the external surfaces the orchestrator drives. Nil fields fall back to no-ops.
type Collaborators struct {
	Display      ports.Display
	InputLock    ports.InputLock
	ContextInput ports.ContextInput
	Audio        ports.AudioPlayer
	Notifier     ports.Notifier
	Limiter      ports.RateLimiter
	Tracer       ports.Tracer
}

// RoundResult summarizes a round.
type RoundResult struct {
	Round      int
	Completed  []string // agent ids
	Failed     []string
	Skipped    []string
	Cancelled  bool
	PersistErr error
	Err        error // recovered panic, if any
}

func (r *RoundResult) record(agentID string, status TurnStatus) {
	switch status {
	case TurnCompleted:
		r.Completed = append(r.Completed, agentID)
	case TurnFailed:
		r.Failed = append(r.Failed, agentID)
	case TurnSkipped:
		r.Skipped = append(r.Skipped, agentID)
	}
}

// turnOutcome is delivered exactly once per dispatched turn.
type turnOutcome struct {
	audio *ports.AudioClip
	err   error
}

// activeTurn is the single agent currently awaiting a reply.
type activeTurn struct {
	agentID   string
	agentName string
	done      chan turnOutcome
	resolved  bool
}

// resolve delivers out once. Caller holds the orchestrator lock.
func (t *activeTurn) resolve(out turnOutcome) {
	if t.resolved {
		return
	}
	t.resolved = true
	t.done <- out
}

// TurnOrchestrator drives rounds: one human utterance, then each eligible
// agent in roster order, strictly one at a time.
type TurnOrchestrator struct {
	log      *conversation.Log
	roster   *roster.Roster
	builder  *ContextBuilder
	preamble *PreambleTracker
	registry *subscriptionRegistry

	display  ports.Display
	lock     ports.InputLock
	ctxInput ports.ContextInput
	audio    ports.AudioPlayer
	notifier ports.Notifier
	limiter  ports.RateLimiter
	tracer   ports.Tracer

	opts   Options
	logger zerolog.Logger

	// startMu serializes the cancel, wait and install sequence of startRound.
	startMu sync.Mutex

	mu           sync.Mutex
	state        State
	inputLocked  bool
	closed       bool
	round        int
	cancel       context.CancelFunc
	roundDone    chan struct{}
	active       *activeTurn
	pendingExtra string
}

// NewTurnOrchestrator creates an orchestrator over log and r.
func NewTurnOrchestrator(
	log *conversation.Log,
	r *roster.Roster,
	builder *ContextBuilder,
	c Collaborators,
	opts Options,
	logger zerolog.Logger,
) *TurnOrchestrator {
	if builder == nil {
		builder = NewContextBuilder(DefaultContextOptions())
	}
	if opts.PlayerID == "" {
		opts.PlayerID = internal.DefaultPlayerID
	}
	if opts.PlayerName == "" {
		opts.PlayerName = internal.DefaultPlayerName
	}
	if opts.Session.ID == "" {
		opts.Session = conversation.NewSession(time.Now())
	}

	o := &TurnOrchestrator{
		log:      log,
		roster:   r,
		builder:  builder,
		preamble: NewPreambleTracker(),
		registry: newSubscriptionRegistry(),
		display:  c.Display,
		lock:     c.InputLock,
		ctxInput: c.ContextInput,
		audio:    c.Audio,
		notifier: c.Notifier,
		limiter:  c.Limiter,
		tracer:   c.Tracer,
		opts:     opts,
		logger:   logger.With().Str("component", "orchestrator").Str("session", opts.Session.ID).Logger(),
	}
	if o.display == nil {
		o.display = noOpDisplay{}
	}
	if o.lock == nil {
		o.lock = noOpInputLock{}
	}
	if o.ctxInput == nil {
		o.ctxInput = noOpContextInput{}
	}
	if o.audio == nil {
		o.audio = noOpAudioPlayer{}
	}
	if o.notifier == nil {
		o.notifier = noOpNotifier{}
	}
	if o.limiter == nil {
		o.limiter = noOpRateLimiter{}
	}
	if o.tracer == nil {
		o.tracer = noOpTracer{}
	}
	return o
}

// State returns the current lifecycle state.
func (o *TurnOrchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// InputLocked reports whether new transcripts are currently rejected.
func (o *TurnOrchestrator) InputLocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputLocked
}

// Log returns the conversation log.
func (o *TurnOrchestrator) Log() *conversation.Log { return o.log }

// Session returns the session the log is persisted under.
func (o *TurnOrchestrator) Session() conversation.Session { return o.opts.Session }

// QueueExtraContext attaches text to every prompt of the next round.
func (o *TurnOrchestrator) QueueExtraContext(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.pendingExtra != "" {
		o.pendingExtra += "\n" + text
		return
	}
	o.pendingExtra = text
}

// SubmitTranscript records a finalized human transcript and starts a round,
// cancelling any round still in progress. Blank transcripts are dropped.
func (o *TurnOrchestrator) SubmitTranscript(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		o.logger.Debug().Msg("Dropping empty transcript")
		return ErrEmptyTranscript
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	if o.inputLocked {
		o.mu.Unlock()
		o.logger.Debug().Msg("Rejecting transcript while input is locked")
		return ErrInputLocked
	}
	// Claim the input surface before releasing the lock so a concurrent submit is rejected.
	o.inputLocked = true

	message := text
	if extra := strings.TrimSpace(o.ctxInput.Text()); extra != "" {
		message = text + " " + extra
	}
	o.log.AppendTurn(o.opts.PlayerID, o.opts.PlayerName, message)
	o.mu.Unlock()

	o.ctxInput.Clear()
	o.display.AddUserMessage(message)

	o.startRound()
	return nil
}

// ReportInputError handles a recoverable speech-to-text error by unlocking input.
func (o *TurnOrchestrator) ReportInputError(message string) {
	o.logger.Warn().Str("error", message).Msg("Input error reported; unlocking input")
	o.notifier.Warn(message)
	o.setInputLocked(false)
}

// Wait blocks until the current round, if any, has finished.
func (o *TurnOrchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.roundDone
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any active round and unsubscribes from every agent handle.
func (o *TurnOrchestrator) Close() error {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	cancel, done := o.cancel, o.roundDone
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	o.registry.DetachAll()
	o.setInputLocked(false)
	o.logger.Info().Msg("Orchestrator closed")
	return nil
}

// startRound cancels the previous round, waits for it to unwind, then launches
// a new one. Concurrent starters run one after another, so each cancels the
// round installed by the one before it.
func (o *TurnOrchestrator) startRound() {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	prevCancel, prevDone := o.cancel, o.roundDone
	o.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.setInputLocked(false)
		return
	}
	// A previous round that finished on its own may have released the input.
	o.inputLocked = true
	o.round++
	round := o.round
	extra := o.pendingExtra
	o.pendingExtra = ""
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.roundDone = done
	o.state = StateRoundInProgress
	o.mu.Unlock()

	o.lock.SetInputLock(true)
	go o.runRound(ctx, cancel, done, round, extra)
}

func (o *TurnOrchestrator) runRound(ctx context.Context, cancel context.CancelFunc, done chan struct{}, round int, extra string) {
	defer close(done)
	defer cancel()

	result := RoundResult{Round: round}
	var pc panics.Catcher
	pc.Try(func() { o.executeRound(ctx, &result, extra) })
	if recovered := pc.Recovered(); recovered != nil {
		result.Err = recovered.AsError()
		o.logger.Error().Err(result.Err).Int("round", round).Msg("Round panicked")
		o.notifier.Warn(fmt.Sprintf("round %d aborted: %v", round, result.Err))
	}

	o.clearActive()

	if ctx.Err() != nil {
		result.Cancelled = true
		o.logger.Info().Int("round", round).Msg("Round cancelled")
		o.emit(result)
		return
	}

	o.completeRound(&result)
	o.emit(result)
}

// executeRound applies pending roster changes and walks the runtime order.
func (o *TurnOrchestrator) executeRound(ctx context.Context, result *RoundResult, extra string) {
	ctx, finish := o.tracer.StartSpan(ctx, "round", map[string]any{
		"round":   result.Round,
		"session": o.opts.Session.ID,
	})
	defer func() { finish(ctx.Err()) }()

	removed := o.roster.BeginCycle()
	o.retainSubscriptions()
	o.releaseRemoved(removed)

	for ctx.Err() == nil {
		agent, ok := o.roster.TryGetNextAgent()
		if !ok {
			break
		}
		status := o.runTurn(ctx, agent, extra)
		result.record(agent.ID, status)
	}
}

// runTurn dispatches one prompt and waits for exactly one outcome.
func (o *TurnOrchestrator) runTurn(ctx context.Context, agent *roster.AgentProfile, extra string) TurnStatus {
	logger := o.logger.With().Str("agent_id", agent.ID).Str("agent", agent.Name).Logger()

	if !agent.Participates {
		logger.Debug().Msg("Agent not participating; skipping")
		return TurnSkipped
	}
	if agent.Handle == nil {
		o.warnTurn(&TurnError{AgentID: agent.ID, AgentName: agent.Name, Kind: KindConfiguration, Err: ErrMissingHandle})
		return TurnSkipped
	}
	if strings.TrimSpace(agent.ProjectID) == "" {
		o.warnTurn(&TurnError{AgentID: agent.ID, AgentName: agent.Name, Kind: KindConfiguration, Err: ErrMissingRouting})
		return TurnSkipped
	}

	participants := o.roster.Participants()
	includePreamble := o.preamble.ShouldInclude(agent.ID, participants)
	prompt := o.builder.Build(agent, o.log, extra, o.opts.PlayerName, participants, includePreamble)
	if prompt == "" {
		logger.Debug().Msg("Nothing new to tell agent; skipping")
		return TurnSkipped
	}

	if o.registry.Attach(agent.ID, agent.Handle, o.handlersFor(agent.ID)) {
		logger.Debug().Msg("Subscribed to agent replies")
	}

	release, err := o.limiter.Acquire(ctx, agent.ID)
	if err != nil {
		o.warnTurn(&TurnError{AgentID: agent.ID, AgentName: agent.Name, Kind: KindTransport, Err: err})
		return TurnFailed
	}
	defer release()

	ctx, finish := o.tracer.StartSpan(ctx, "turn", map[string]any{
		"agent_id": agent.ID,
		"preamble": includePreamble,
	})
	var turnErr error
	defer func() { finish(turnErr) }()
	fail := func(kind FailureKind, err error) TurnStatus {
		te := &TurnError{AgentID: agent.ID, AgentName: agent.Name, Kind: kind, Err: err}
		turnErr = te
		o.warnTurn(te)
		return TurnFailed
	}

	turn := o.beginTurn(agent)
	defer o.endTurn(turn)

	if err := agent.Handle.Dispatch(ctx, agent.ProjectID, prompt); err != nil {
		if ctx.Err() != nil {
			return TurnCancelled
		}
		return fail(KindTransport, err)
	}
	if includePreamble {
		o.preamble.MarkNotified(agent.ID)
	}
	logger.Debug().Bool("preamble", includePreamble).Int("prompt_len", len(prompt)).Msg("Prompt dispatched")
	o.tracer.Event(ctx, "prompt_dispatched", map[string]any{"agent_id": agent.ID, "prompt_len": len(prompt)})

	var timeout <-chan time.Time
	if o.opts.Policy.TurnTimeout > 0 {
		timer := time.NewTimer(o.opts.Policy.TurnTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return TurnCancelled
	case <-timeout:
		o.tracer.Event(ctx, "turn_timeout", map[string]any{"agent_id": agent.ID})
		return fail(KindTimeout, ErrTurnTimeout)
	case out := <-turn.done:
		o.tracer.Event(ctx, "reply_received", map[string]any{
			"agent_id": agent.ID,
			"audio":    out.audio != nil,
			"error":    out.err != nil,
		})
		if out.err != nil {
			return fail(KindTransport, out.err)
		}
		if out.audio != nil && out.audio.Duration > 0 {
			if !o.play(ctx, logger, out.audio) {
				return TurnCancelled
			}
		}
		return TurnCompleted
	}
}

// play starts playback and waits out the clip. It returns false if cancelled.
func (o *TurnOrchestrator) play(ctx context.Context, logger zerolog.Logger, clip *ports.AudioClip) bool {
	if err := o.audio.Play(ctx, clip); err != nil {
		logger.Warn().Err(err).Msg("Audio playback failed")
		o.notifier.Warn(fmt.Sprintf("audio playback failed: %v", err))
		return ctx.Err() == nil
	}

	timer := time.NewTimer(clip.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// completeRound unlocks input and persists the full log snapshot.
func (o *TurnOrchestrator) completeRound(result *RoundResult) {
	o.mu.Lock()
	o.state = StatePersisting
	o.mu.Unlock()

	o.setInputLocked(false)

	if o.opts.LogDir != "" {
		if err := o.log.SaveToDisk(o.opts.LogDir, o.opts.Session.FileName(), o.opts.PrettyPrint); err != nil {
			result.PersistErr = err
			o.logger.Warn().Err(err).Msg("Failed to persist conversation log")
			o.notifier.Warn(fmt.Sprintf("failed to persist conversation log: %v", err))
		}
	}

	o.mu.Lock()
	o.state = StateAwaitingInput
	o.mu.Unlock()

	o.logger.Info().
		Int("round", result.Round).
		Strs("completed", result.Completed).
		Strs("failed", result.Failed).
		Strs("skipped", result.Skipped).
		Int("turns", o.log.Count()).
		Msg("Round complete")
}

func (o *TurnOrchestrator) emit(result RoundResult) {
	if o.opts.OnRoundComplete != nil {
		o.opts.OnRoundComplete(result)
	}
}

func (o *TurnOrchestrator) setInputLocked(locked bool) {
	o.mu.Lock()
	o.inputLocked = locked
	o.mu.Unlock()
	o.lock.SetInputLock(locked)
}

// retainSubscriptions drops handlers of agents no longer in the base list.
func (o *TurnOrchestrator) retainSubscriptions() {
	agents := o.roster.Agents()
	keep := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		keep[a.ID] = struct{}{}
	}
	o.registry.Retain(keep)
}

// releaseRemoved unsubscribes agents that left the base list and closes their
// handles.
func (o *TurnOrchestrator) releaseRemoved(removed []*roster.AgentProfile) {
	for _, p := range removed {
		o.registry.Detach(p.ID)
		if c, ok := p.Handle.(io.Closer); ok {
			if err := c.Close(); err != nil {
				o.logger.Debug().Err(err).Str("agent_id", p.ID).Msg("Failed to close removed agent handle")
			}
		}
	}
}

func (o *TurnOrchestrator) beginTurn(agent *roster.AgentProfile) *activeTurn {
	turn := &activeTurn{
		agentID:   agent.ID,
		agentName: agent.DisplayName(),
		done:      make(chan turnOutcome, 1),
	}
	o.mu.Lock()
	o.active = turn
	o.mu.Unlock()
	return turn
}

func (o *TurnOrchestrator) endTurn(turn *activeTurn) {
	o.mu.Lock()
	if o.active == turn {
		o.active = nil
	}
	o.mu.Unlock()
}

func (o *TurnOrchestrator) clearActive() {
	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()
}

// currentTurn returns the active turn if it belongs to agentID and is unresolved.
// Caller holds o.mu.
func (o *TurnOrchestrator) currentTurn(agentID string) *activeTurn {
	if o.active == nil || o.active.agentID != agentID || o.active.resolved {
		return nil
	}
	return o.active
}

func (o *TurnOrchestrator) handlersFor(agentID string) ports.ReplyHandlers {
	return ports.ReplyHandlers{
		OnChat:  func(r ports.ChatReply) { o.onChat(agentID, r) },
		OnAudio: func(c *ports.AudioClip) { o.onAudio(agentID, c) },
		OnError: func(msg string) { o.onError(agentID, msg) },
	}
}

// onChat records a text reply from the current agent. The turn stays open
// for the paired audio reply unless the policy releases on chat.
func (o *TurnOrchestrator) onChat(agentID string, reply ports.ChatReply) {
	message := strings.TrimSpace(reply.Message)
	if message == "" {
		o.logger.Debug().Str("agent_id", agentID).Msg("Ignoring chat reply without a message")
		return
	}

	o.mu.Lock()
	turn := o.currentTurn(agentID)
	if turn == nil {
		o.mu.Unlock()
		o.logger.Debug().Str("agent_id", agentID).Msg("Ignoring chat reply from non-current agent")
		return
	}
	// Append before any release so the next agent's prompt sees this reply.
	o.log.AppendTurn(agentID, turn.agentName, message)
	if o.opts.Policy.ReleaseOnChat {
		turn.resolve(turnOutcome{})
	}
	o.mu.Unlock()

	o.display.AddAssistantMessage(turn.agentName, message)
}

func (o *TurnOrchestrator) onAudio(agentID string, clip *ports.AudioClip) {
	o.mu.Lock()
	defer o.mu.Unlock()
	turn := o.currentTurn(agentID)
	if turn == nil {
		o.logger.Debug().Str("agent_id", agentID).Msg("Ignoring audio reply from non-current agent")
		return
	}
	turn.resolve(turnOutcome{audio: clip})
}

func (o *TurnOrchestrator) onError(agentID, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	turn := o.currentTurn(agentID)
	if turn == nil {
		o.logger.Debug().Str("agent_id", agentID).Str("error", message).Msg("Ignoring error from non-current agent")
		return
	}
	turn.resolve(turnOutcome{err: fmt.Errorf("%w: %s", ErrBackend, message)})
}

func (o *TurnOrchestrator) warnTurn(err *TurnError) {
	o.logger.Warn().
		Err(err.Err).
		Str("agent_id", err.AgentID).
		Str("agent", err.AgentName).
		Str("kind", string(err.Kind)).
		Msg("Agent turn did not complete")
	o.notifier.Warn(err.Error())
}
