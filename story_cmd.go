package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
)

var storyCmd = &cobra.Command{
	Use:   "story SCRIPT",
	Short: "Speak a dialogue script with one voice per character",
	Long: paragraph(fmt.Sprintf("\nRead a YAML or JSON script of %s lines and speak them in order into one continuous recording.",
		keyword("character/dialog"))),
	Example: paragraph("ttsgen story play.yml\nttsgen story play.yml --cast Alice=af_heart,Bob=bm_george --out play.wav\nttsgen story play.yml --cast Narrator= --list"),
	Args:    cobra.ExactArgs(1),
	RunE:    runStory,
}

func init() {
	addGenerateFlags(storyCmd)
	storyCmd.Flags().StringToString("cast", nil, "character to voice assignments; an empty voice skips the character")
	storyCmd.Flags().Bool("list", false, "print the cast and exit")
}

func runStory(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", args[0], err)
	}
	sc, err := session.ParseScript(data)
	if err != nil {
		return err
	}
	cast, _ := cmd.Flags().GetStringToString("cast")
	list, _ := cmd.Flags().GetBool("list")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	opts := readPlaybackOptions(cmd)
	if list {
		opts.silent = true
	}
	title := sc.Title
	if title == "" {
		title = "Story"
	}

	return runJob(cmd.Context(), opts, !noCache, title, func(ctx context.Context, rt *runtime) error {
		voices := sc.VoiceMapping(rt.session.Voices(), cast)
		if list {
			for _, c := range sc.Characters() {
				v := voices[c]
				if v == "" {
					v = faint("(skipped)")
				}
				fmt.Printf("%s %s\n", keyword(c), v)
			}
			return nil
		}

		res, err := rt.session.Story(ctx, sc, voices)
		if opts.plain {
			fmt.Fprintf(os.Stderr, "%s %d lines, %d skipped, %s of audio\n",
				keyword("generated"), len(res.Lines), res.Skipped, res.Duration.Round(10*time.Millisecond))
		}
		return err
	})
}
