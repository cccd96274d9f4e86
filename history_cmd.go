package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/history"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List past generations",
	Long:    paragraph(fmt.Sprintf("\nList %s, newest first.", keyword("past generations"))),
	Example: paragraph("ttsgen history\nttsgen history -n 50\nttsgen history --prune 720h"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logToStderr()
		applyLogLevel(cfg.LogLevel)

		if !cfg.History.Enabled {
			return errors.New("history is disabled (history.enabled: false)")
		}
		store, err := history.Open(cmd.Context(), cfg.History.Path, nil)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		if prune, _ := cmd.Flags().GetDuration("prune"); prune > 0 {
			n, err := store.Prune(cmd.Context(), time.Now().Add(-prune))
			if err != nil {
				return err
			}
			fmt.Printf("%s %d entries older than %s\n", keyword("removed"), n, prune)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(faint("No generations yet."))
			return nil
		}
		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show, 0 for all")
	historyCmd.Flags().Duration("prune", 0, "delete entries older than this and exit")
}

func printEntry(e history.Entry) {
	head := fmt.Sprintf("%s  %-6s %-10s %2d chunks  %6s", humanize.Time(e.StartedAt), e.Mode, e.Voice, e.Chunks, e.Duration.Round(100*time.Millisecond))
	if e.ArtifactSize > 0 {
		head += "  " + humanize.Bytes(uint64(e.ArtifactSize))
	}
	fmt.Println(keyword(e.ID[:min(8, len(e.ID))]) + "  " + faint(head))
	fmt.Println("  " + e.Preview)
	if e.Error != "" {
		fmt.Println("  " + errStyle.Render(e.Error))
	}
}
