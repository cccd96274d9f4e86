package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [FILTER]",
	Short:   "List the voices offered by the engine",
	Long:    paragraph(fmt.Sprintf("\nList the voices of the configured engine, %s by id, name, language or traits.", keyword("fuzzy filtered"))),
	Example: paragraph("ttsgen voices\nttsgen voices brit\nttsgen voices --engine ws"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logToStderr()
		applyLogLevel(cfg.LogLevel)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		rt, err := startSession(ctx, cfg, playback.NewVirtualOutput(), false, false)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Debug("shutdown", "err", err)
			}
		}()

		voices := rt.session.Voices()
		if len(args) == 1 {
			voices = filterVoices(voices, args[0])
		}
		for _, v := range voices {
			line := fmt.Sprintf("%-12s %-10s %-6s %s", v.ID, v.Name, v.Language, v.Gender)
			if v.Traits != "" {
				line += " " + v.Traits
			}
			if v.ID == cfg.Voice {
				line = keyword(line)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// voiceSource adapts a voice list to fuzzy.Source.
type voiceSource []synth.Voice

func (s voiceSource) String(i int) string {
	v := s[i]
	return strings.Join([]string{v.ID, v.Name, v.Language, v.Gender, v.Traits}, " ")
}

func (s voiceSource) Len() int { return len(s) }

// filterVoices returns the voices matching pattern, best match first.
func filterVoices(voices []synth.Voice, pattern string) []synth.Voice {
	matches := fuzzy.FindFrom(pattern, voiceSource(voices))
	out := make([]synth.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}
