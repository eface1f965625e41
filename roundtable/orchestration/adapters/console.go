package adapters

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// ConsoleDisplay prints conversation lines and warnings to a writer.
type ConsoleDisplay struct {
	mu         sync.Mutex
	w          io.Writer
	playerName string
}

func NewConsoleDisplay(w io.Writer, playerName string) *ConsoleDisplay {
	return &ConsoleDisplay{w: w, playerName: playerName}
}

func (d *ConsoleDisplay) AddUserMessage(text string) {
	d.printf("%s: %s\n", d.playerName, text)
}

func (d *ConsoleDisplay) AddAssistantMessage(speakerName, text string) {
	d.printf("%s: %s\n", speakerName, text)
}

func (d *ConsoleDisplay) Warn(message string) {
	d.printf("! %s\n", message)
}

func (d *ConsoleDisplay) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format, args...)
}

// InputGate remembers the lock state so a line-based reader can honour it.
type InputGate struct {
	locked atomic.Bool
}

func (g *InputGate) SetInputLock(locked bool) { g.locked.Store(locked) }

// Locked reports the last lock state.
func (g *InputGate) Locked() bool { return g.locked.Load() }

// ContextField is an in-memory manual context input.
type ContextField struct {
	mu   sync.Mutex
	text string
}

// Set replaces the field contents.
func (f *ContextField) Set(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = strings.TrimSpace(text)
}

func (f *ContextField) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *ContextField) Clear() { f.Set("") }

var (
	_ ports.Display      = (*ConsoleDisplay)(nil)
	_ ports.Notifier     = (*ConsoleDisplay)(nil)
	_ ports.InputLock    = (*InputGate)(nil)
	_ ports.ContextInput = (*ContextField)(nil)
)
