// Package tui reads playback keys from the terminal. It runs bubbletea
// without its renderer; the video owns the screen.
package tui

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/pipeline"
)

const (
	// Debounce is the minimum gap between two accepted keys.
	Debounce = 200 * time.Millisecond

	// StartDelay is how long input is ignored after start.
	StartDelay = 300 * time.Millisecond

	SeekStep   = 10 * time.Second
	VolumeStep = 0.05
)

// Controller is the playback surface driven by keys.
type Controller interface {
	SeekBy(ctx context.Context, d time.Duration) error
	TogglePause() bool
	AdjustVolume(delta float64) float64
	Stop()
}

// Options configure a Model.
type Options struct {
	Keys KeyMap

	// Help shows msg on the status line until it is called again with "".
	// Without Help the key help is shown through Status.
	Help   func(msg string)
	Status func(msg string)
	Logger *log.Logger

	now func() time.Time
}

type seekDoneMsg struct{ err error }

// Model is the bubbletea model for the key thread.
type Model struct {
	ctrl Controller
	keys KeyMap
	help help.Model
	opts Options
	log  *log.Logger

	started  time.Time
	last     time.Time
	showHelp bool
	quitting bool
}

// NewModel returns a model that forwards keys to ctrl.
func NewModel(ctrl Controller, opts Options) Model {
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if len(opts.Keys.Quit.Keys()) == 0 {
		opts.Keys = DefaultKeyMap()
	}
	h := help.New()
	h.Styles = helpStyles()
	return Model{
		ctrl:    ctrl,
		keys:    opts.Keys,
		help:    h,
		opts:    opts,
		log:     opts.Logger.With("component", "keys"),
		started: opts.now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// accept applies the start delay and the debounce.
func (m *Model) accept() bool {
	now := m.opts.now()
	if now.Sub(m.started) < StartDelay {
		return false
	}
	if !m.last.IsZero() && now.Sub(m.last) < Debounce {
		return false
	}
	m.last = now
	return true
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// quit is never debounced
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			m.ctrl.Stop()
			return m, tea.Quit
		}
		if !m.accept() {
			return m, nil
		}
		return m.updateKey(msg)

	case seekDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, pipeline.ErrClosed) {
			m.log.Warn("seek failed", "err", msg.err)
		}
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Pause):
		m.ctrl.TogglePause()
	case key.Matches(msg, m.keys.Back):
		return m, m.seek(-SeekStep)
	case key.Matches(msg, m.keys.Forward):
		return m, m.seek(SeekStep)
	case key.Matches(msg, m.keys.VolDown):
		m.ctrl.AdjustVolume(-VolumeStep)
	case key.Matches(msg, m.keys.VolUp):
		m.ctrl.AdjustVolume(VolumeStep)
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		if m.showHelp {
			m.setHelp(m.help.ShortHelpView(m.keys.ShortHelp()))
		} else {
			m.setHelp("")
		}
	}
	return m, nil
}

// seek runs off the event loop; it waits for the pipeline to freeze.
func (m Model) seek(d time.Duration) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return seekDoneMsg{err: ctrl.SeekBy(context.Background(), d)}
	}
}

func (m Model) setHelp(msg string) {
	if m.opts.Help != nil {
		m.opts.Help(msg)
		return
	}
	m.status(msg)
}

func (m Model) status(msg string) {
	if m.opts.Status != nil {
		m.opts.Status(msg)
	}
}

// View implements tea.Model. Nothing is drawn.
func (m Model) View() string {
	return ""
}

// Run reads keys from in until the user quits or ctx ends. ctrl is stopped
// on return either way.
func Run(ctx context.Context, ctrl Controller, in io.Reader, opts Options) error {
	defer ctrl.Stop()

	p := tea.NewProgram(NewModel(ctrl, opts),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
