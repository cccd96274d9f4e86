package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("build man page: %w", err)
		}
		page = page.WithSection("Files", "Configuration is read from ttsgen.yml in the user config directory, then from TTSGEN_* environment variables and a .env file in the working directory.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
