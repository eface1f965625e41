package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/roundtable/roundtable/config"
	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
	"github.com/ZanzyTHEbar/roundtable/roundtable/logging"
	"github.com/ZanzyTHEbar/roundtable/roundtable/orchestration"
	"github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/adapters"
	"github.com/ZanzyTHEbar/roundtable/roundtable/roster"
)

const chatHelp = `Type a line and press enter to speak. Commands:
  /context <text>  attach text to your next line
  /note <text>     give every agent extra context for the next round
  /remove <id>     remove an agent after the current round
  /who             list the roster
  /quit            end the session`

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session on stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	factory := orchestration.NewFactory(cfg, logger)
	handles := factory.HandleFactory()
	r := factory.CreateRoster()

	if cfg.Roster.File != "" {
		f, err := roster.LoadFile(cfg.Roster.File)
		if err != nil {
			return err
		}
		if err := roster.Sync(r, f, handles, logger); err != nil {
			return err
		}
		if cfg.Roster.Watch {
			watcher := roster.NewWatcher(cfg.Roster.File, r, handles, logger)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Warn().Err(err).Msg("Roster watcher stopped")
				}
			}()
		}
	} else {
		logger.Warn().Msg("No roster file configured; only your own lines will be recorded")
	}
	defer closeHandles(r, logger)

	display := adapters.NewConsoleDisplay(out, cfg.Session.PlayerName)
	gate := &adapters.InputGate{}
	field := &adapters.ContextField{}

	o := factory.CreateOrchestrator(conversation.NewLog(), r, orchestration.Collaborators{
		Display:      display,
		InputLock:    gate,
		ContextInput: field,
		Audio:        adapters.NewLogAudioPlayer(logging.Component(logger, "audio")),
		Notifier:     display,
	})
	defer o.Close()

	fmt.Fprintf(out, "Session %s, log: %s\n", o.Session().ID, o.Session().Path(cfg.Session.DataDir, cfg.Session.LogDirName))
	fmt.Fprintln(out, chatHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed; let the last round finish before exiting.
				return o.Wait(ctx)
			}
			if quit := handleLine(o, r, field, display, out, line); quit {
				return nil
			}
		}
	}
}

// handleLine applies one input line and reports whether the session should end.
func handleLine(
	o *orchestration.TurnOrchestrator,
	r *roster.Roster,
	field *adapters.ContextField,
	display *adapters.ConsoleDisplay,
	out io.Writer,
	line string,
) bool {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch command {
	case "/quit":
		return true
	case "/context":
		field.Set(arg)
	case "/note":
		o.QueueExtraContext(arg)
	case "/remove":
		r.QueueRemoveAgent(strings.TrimSpace(arg))
	case "/who":
		for _, p := range r.Agents() {
			fmt.Fprintf(out, "  %s (%s) participates=%t opening=%t\n", p.DisplayName(), p.ID, p.Participates, p.OpeningSpeaker)
		}
		for _, p := range r.PendingAgents() {
			fmt.Fprintf(out, "  %s (%s) joins next round\n", p.DisplayName(), p.ID)
		}
	default:
		err := o.SubmitTranscript(line)
		switch {
		case errors.Is(err, orchestration.ErrInputLocked):
			display.Warn("agents are still talking; wait for the round to finish")
		case errors.Is(err, orchestration.ErrEmptyTranscript):
		case err != nil:
			display.Warn(err.Error())
		}
	}
	return false
}

// closeHandles closes the handles of base-list agents and of adds that never
// reached a cycle.
func closeHandles(r *roster.Roster, logger zerolog.Logger) {
	for _, p := range append(r.Agents(), r.PendingAgents()...) {
		if c, ok := p.Handle.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Debug().Err(err).Str("agent_id", p.ID).Msg("Failed to close agent handle")
			}
		}
	}
}
