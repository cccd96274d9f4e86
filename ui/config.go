package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse bool
	AltScreen   bool `env:"TTSGEN_UI_ALT_SCREEN" envDefault:"false"`

	// Step sizes for the transport keys.
	SeekStep   time.Duration `env:"TTSGEN_UI_SEEK_STEP" envDefault:"5s"`
	VolumeStep float64       `env:"TTSGEN_UI_VOLUME_STEP" envDefault:"0.1"`

	// Volume is the initial output volume.
	Volume float64

	// Refresh is how often the view polls the session.
	Refresh time.Duration `env:"TTSGEN_UI_REFRESH" envDefault:"100ms"`

	// ExitWhenDone quits once generation has finished and playback has
	// stopped.
	ExitWhenDone bool

	// Title is shown above the player.
	Title string
}
