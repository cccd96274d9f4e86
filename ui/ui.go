// Package ui provides the terminal player shown while speech is generated
// and played.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
)

// Job is the generation work the player drives, such as a single request
// or a story.
type Job func(ctx context.Context) error

type (
	tickMsg time.Time
	jobDoneMsg struct{ err error }
)

type model struct {
	cfg     Config
	session *session.Session
	job     Job
	ctx     context.Context
	cancel  context.CancelFunc

	keys     keyMap
	help     help.Model
	bar      progress.Model
	spinner  spinner.Model
	status   statusDisplay
	width    int
	volume   float64
	jobDone  bool
	jobErr   error
	quitting bool
}

// NewProgram returns a new Tea program playing s while job runs.
func NewProgram(cfg Config, s *session.Session, job Job) *tea.Program {
	log.Debug("starting player", "alt_screen", cfg.AltScreen, "refresh", cfg.Refresh)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, s, job), opts...)
}

func newModel(cfg Config, s *session.Session, job Job) model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = 100 * time.Millisecond
	}
	if cfg.SeekStep <= 0 {
		cfg.SeekStep = 5 * time.Second
	}
	if cfg.VolumeStep <= 0 {
		cfg.VolumeStep = 0.1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return model{
		cfg:     cfg,
		session: s,
		job:     job,
		ctx:     ctx,
		cancel:  cancel,
		keys:    newKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:   60,
		volume:  cfg.Volume,
	}
}

// Err returns the job's error once the program has exited.
func Err(m tea.Model) error {
	if mm, ok := m.(model); ok {
		return mm.jobErr
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.runJob(), m.tick(), m.spinner.Tick)
}

func (m model) runJob() tea.Cmd {
	if m.job == nil {
		return func() tea.Msg { return jobDoneMsg{} }
	}
	job, ctx := m.job, m.ctx
	return func() tea.Msg {
		return jobDoneMsg{err: job(ctx)}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(10, msg.Width-16)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.status = statusDisplay{snap: m.session.Snapshot(), volume: m.volume}
		if m.cfg.ExitWhenDone && m.jobDone && m.status.snap.Playback.State == playback.StateStopped {
			return m.quit()
		}
		return m, m.tick()

	case jobDoneMsg:
		m.jobDone = true
		m.jobErr = msg.err
		if msg.err != nil {
			log.Debug("generation finished with error", "err", msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	player := m.session.Player()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Toggle):
		if err := player.PauseOrToggle(); err != nil {
			log.Debug("toggle", "err", err)
		}

	case key.Matches(msg, m.keys.Back):
		m.seekBy(-m.cfg.SeekStep)

	case key.Matches(msg, m.keys.Forward):
		m.seekBy(m.cfg.SeekStep)

	case key.Matches(msg, m.keys.Restart):
		if err := player.Seek(0); err != nil {
			log.Debug("seek", "err", err)
		}

	case key.Matches(msg, m.keys.VolumeUp):
		m.setVolume(m.volume + m.cfg.VolumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		m.setVolume(m.volume - m.cfg.VolumeStep)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	m.status = statusDisplay{snap: m.session.Snapshot(), volume: m.volume}
	return m, nil
}

func (m *model) seekBy(d time.Duration) {
	player := m.session.Player()
	target := player.Position() + d
	if target < 0 {
		target = 0
	}
	if err := player.Seek(target); err != nil {
		log.Debug("seek", "err", err)
	}
}

func (m *model) setVolume(v float64) {
	v = min(1, max(0, v))
	m.volume = v
	m.session.Player().SetVolume(v)
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	return m, tea.Quit
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.cfg.Title != "" {
		b.WriteString(titleStyle.Render(m.cfg.Title) + "\n\n")
	}

	gen := m.status.GenerationStatus()
	if m.status.snap.Status.Busy() {
		gen = m.spinner.View() + gen
	}
	b.WriteString(gen + "\n")
	if bar := m.status.ChunkBar(m.bar.Width); bar != "" {
		b.WriteString(bar + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(m.status.percent()) + "  " + m.status.CompactStatus() + "\n")
	b.WriteString(m.status.Details(m.width) + "\n\n")

	b.WriteString(lipgloss.NewStyle().Foreground(gray).Render(m.help.View(m.keys)))
	return b.String()
}
