package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
)

var (
	green  = lipgloss.Color("#04B575")
	yellow = lipgloss.Color("#ECFD65")
	blue   = lipgloss.Color("#00AAFF")
	red    = lipgloss.Color("#FF5F87")
	gray   = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	dim    = lipgloss.AdaptiveColor{Light: "#DDDADA", Dark: "#3C3C3C"}

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EE6FF8"))
	labelStyle    = lipgloss.NewStyle().Foreground(gray)
	sentenceStyle = lipgloss.NewStyle().Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(red)
)

// statusDisplay renders a session snapshot.
type statusDisplay struct {
	snap   session.Snapshot
	volume float64
}

// transportIcon returns an icon and colour for the playback state.
func transportIcon(st playback.State) (string, lipgloss.TerminalColor) {
	switch st {
	case playback.StatePlaying:
		return "▶", green
	case playback.StatePaused:
		return "⏸", yellow
	case playback.StateWaiting:
		return "⟳", blue
	default:
		return "■", gray
	}
}

// statusColor returns the colour used for the generation status.
func statusColor(st session.Status) lipgloss.TerminalColor {
	switch st {
	case session.StatusReady:
		return green
	case session.StatusError:
		return red
	case session.StatusInit, session.StatusLoading:
		return gray
	default:
		return blue
	}
}

// CompactStatus is the one-line transport summary.
func (s statusDisplay) CompactStatus() string {
	pb := s.snap.Playback
	icon, color := transportIcon(pb.State)

	out := lipgloss.NewStyle().Foreground(color).Render(icon + " " + pb.State.String())
	out += labelStyle.Render(fmt.Sprintf("  %s / %s", formatTime(pb.Position), formatTime(pb.Total)))
	if pb.Generating {
		out += lipgloss.NewStyle().Foreground(blue).Render("  +")
	}
	return out
}

// GenerationStatus describes chunk progress.
func (s statusDisplay) GenerationStatus() string {
	st := s.snap.Status
	text := string(st)
	if p := s.snap.Progress; p.Total > 0 {
		text += fmt.Sprintf(" %d/%d", p.Completed, p.Total)
	}
	if el := s.snap.Elapsed(); el > 0 {
		text += labelStyle.Render(" in " + el.Round(100*time.Millisecond).String())
	}
	return lipgloss.NewStyle().Foreground(statusColor(st)).Render(text)
}

// ChunkBar draws one cell per chunk, filled for completed chunks.
func (s statusDisplay) ChunkBar(width int) string {
	p := s.snap.Progress
	if p.Total <= 0 || width < 10 {
		return ""
	}
	filled := p.Completed * width / p.Total
	if filled > width {
		filled = width
	}
	return lipgloss.NewStyle().Foreground(statusColor(s.snap.Status)).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(dim).Render(strings.Repeat("░", width-filled))
}

// Details lists device, volume, artifact and the current sentence.
func (s statusDisplay) Details(width int) string {
	var lines []string

	info := fmt.Sprintf("%s %s   %s %3.0f%%", labelStyle.Render("device"), s.snap.Device,
		labelStyle.Render("volume"), s.volume*100)
	if a := s.snap.Artifact; a != nil {
		info += fmt.Sprintf("   %s %s, %d chunks", labelStyle.Render("merged"), humanize.Bytes(uint64(a.Size())), a.Chunks)
	}
	lines = append(lines, info)

	if s.snap.Sentence != "" && width > 8 {
		lines = append(lines, sentenceStyle.Render(fitLine("“"+s.snap.Sentence+"”", width)))
	}
	if s.snap.Error != "" {
		lines = append(lines, errorStyle.Render(fitLine("✗ "+s.snap.Error, width)))
	}
	return strings.Join(lines, "\n")
}

// fitLine truncates s to width cells.
func fitLine(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// percent is the playback position as a fraction of the total.
func (s statusDisplay) percent() float64 {
	pb := s.snap.Playback
	if pb.Total <= 0 {
		return 0
	}
	p := float64(pb.Position) / float64(pb.Total)
	if p > 1 {
		return 1
	}
	return p
}

// formatTime renders d as m:ss.
func formatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
