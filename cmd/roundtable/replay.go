package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/roundtable/roundtable/conversation"
)

func newReplayCmd() *cobra.Command {
	var (
		last    int
		speaker string
	)
	cmd := &cobra.Command{
		Use:   "replay <conversation.json>",
		Short: "Print a saved conversation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := conversation.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			return replay(cmd.OutOrStdout(), log, speaker, last)
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "only the most recent N turns (0 for all)")
	cmd.Flags().StringVarP(&speaker, "speaker", "s", "", "only turns by this speaker id")
	return cmd
}

func replay(out io.Writer, log *conversation.Log, speaker string, last int) error {
	var match func(conversation.Turn) bool
	if speaker != "" {
		match = func(t conversation.Turn) bool { return t.SpokenBy(speaker) }
	}
	if last <= 0 {
		last = log.Count()
	}

	for _, t := range log.GetRecentTurns(match, last) {
		if _, err := fmt.Fprintf(out, "[%s] %s: %s\n", t.Time().UTC().Format("15:04:05"), t.SpeakerName, t.Message); err != nil {
			return err
		}
	}
	return nil
}
