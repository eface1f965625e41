package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

// stubAgent implements AgentHandle for testing. reply (or replyCtx, which
// also sees the dispatch context) runs on its own goroutine after every
// successful dispatch. A non-nil block holds Dispatch until it is closed.
type stubAgent struct {
	mu          sync.Mutex
	subs        map[int]ports.ReplyHandlers
	next        int
	prompts     []string
	closed      int
	dispatchErr error
	block       chan struct{}
	reply       func(a *stubAgent, prompt string)
	replyCtx    func(ctx context.Context, a *stubAgent, prompt string)
}

func newStubAgent(reply func(a *stubAgent, prompt string)) *stubAgent {
	return &stubAgent{subs: make(map[int]ports.ReplyHandlers), reply: reply}
}

// says replies with a chat message followed by an empty audio reply.
func says(text string) func(a *stubAgent, prompt string) {
	return func(a *stubAgent, _ string) {
		a.Chat(text)
		a.Audio(nil)
	}
}

func (a *stubAgent) Dispatch(ctx context.Context, _ string, prompt string) error {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	err, reply, replyCtx, block := a.dispatchErr, a.reply, a.replyCtx, a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}
	switch {
	case replyCtx != nil:
		go replyCtx(ctx, a, prompt)
	case reply != nil:
		go reply(a, prompt)
	}
	return nil
}

func (a *stubAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *stubAgent) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *stubAgent) Subscribe(h ports.ReplyHandlers) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.subs[id] = h
	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *stubAgent) handlers() []ports.ReplyHandlers {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ports.ReplyHandlers, 0, len(a.subs))
	for _, h := range a.subs {
		out = append(out, h)
	}
	return out
}

func (a *stubAgent) Chat(text string) {
	for _, h := range a.handlers() {
		h.OnChat(ports.ChatReply{Message: text})
	}
}

func (a *stubAgent) Audio(clip *ports.AudioClip) {
	for _, h := range a.handlers() {
		h.OnAudio(clip)
	}
}

func (a *stubAgent) Fail(message string) {
	for _, h := range a.handlers() {
		h.OnError(message)
	}
}

func (a *stubAgent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}

func (a *stubAgent) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

type mockDisplay struct{ mock.Mock }

func (m *mockDisplay) AddUserMessage(text string)                   { m.Called(text) }
func (m *mockDisplay) AddAssistantMessage(speakerName, text string) { m.Called(speakerName, text) }

type mockInputLock struct{ mock.Mock }

func (m *mockInputLock) SetInputLock(locked bool) { m.Called(locked) }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Warn(message string) { m.Called(message) }

type mockAudioPlayer struct{ mock.Mock }

func (m *mockAudioPlayer) Play(ctx context.Context, clip *ports.AudioClip) error {
	return m.Called(ctx, clip).Error(0)
}

// recordingTracer keeps the names of emitted events.
type recordingTracer struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (r *recordingTracer) Event(_ context.Context, name string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingTracer) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type contextField struct {
	mu   sync.Mutex
	text string
}

func (f *contextField) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *contextField) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = ""
}

func profile(id, name string, handle ports.AgentHandle) *roster.AgentProfile {
	return &roster.AgentProfile{
		ID:           id,
		Name:         name,
		ProjectID:    "proj-" + id,
		Handle:       handle,
		Participates: true,
	}
}

// testRig wires an orchestrator over a fixed session and a temp log directory.
type testRig struct {
	o       *TurnOrchestrator
	log     *conversation.Log
	roster  *roster.Roster
	session conversation.Session
	logDir  string
	results chan RoundResult
}

func newRig(t *testing.T, policy Policy, c Collaborators, agents ...*roster.AgentProfile) *testRig {
	t.Helper()

	rig := &testRig{
		log:     conversation.NewLog(),
		roster:  roster.New(roster.Options{}, zerolog.Nop()),
		session: conversation.NewSession(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)),
		logDir:  t.TempDir(),
		results: make(chan RoundResult, 16),
	}
	for _, a := range agents {
		require.True(t, rig.roster.QueueAddAgent(a))
	}

	rig.o = NewTurnOrchestrator(rig.log, rig.roster, nil, c, Options{
		Session:         rig.session,
		LogDir:          rig.logDir,
		Policy:          policy,
		OnRoundComplete: func(r RoundResult) { rig.results <- r },
	}, zerolog.Nop())
	t.Cleanup(func() { _ = rig.o.Close() })
	return rig
}

func (r *testRig) waitRound(t *testing.T) RoundResult {
	t.Helper()
	select {
	case res := <-r.results:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for round to finish")
		return RoundResult{}
	}
}

func (r *testRig) messages() []string {
	turns := r.log.Turns()
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.SpeakerName + ": " + t.Message
	}
	return out
}

func testPolicy() Policy {
	return Policy{TurnTimeout: 2 * time.Second}
}
