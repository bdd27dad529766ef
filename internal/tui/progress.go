// Package tui renders live sweep progress in the terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/Iron-Ham/sweeper/internal/watch"
)

const (
	defaultWidth = 60
	minBarWidth  = 10
)

// KeyMap defines the progress view's key bindings.
type KeyMap struct {
	Quit key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// updateMsg carries a snapshot from the watcher.
type updateMsg watch.Update

// closedMsg reports that the watcher stopped.
type closedMsg struct{}

// ProgressModel is a bubbletea model showing the progress of one sweep.
type ProgressModel struct {
	sweepID      string
	updates      <-chan watch.Update
	exitWhenDone bool

	progress sweep.Progress
	err      error
	received bool
	width    int

	keys KeyMap
	help help.Model
}

// NewProgressModel creates a model fed by updates. With exitWhenDone the
// program quits once every trial is done.
func NewProgressModel(sweepID string, updates <-chan watch.Update, exitWhenDone bool) ProgressModel {
	return ProgressModel{
		sweepID:      sweepID,
		updates:      updates,
		exitWhenDone: exitWhenDone,
		width:        defaultWidth,
		keys:         DefaultKeyMap(),
		help:         help.New(),
	}
}

// Progress returns the last snapshot shown.
func (m ProgressModel) Progress() sweep.Progress {
	return m.progress
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func waitForUpdate(updates <-chan watch.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case updateMsg:
		m.received = true
		m.err = msg.Err
		if msg.Err == nil {
			m.progress = msg.Progress
		}
		if m.exitWhenDone && m.progress.Finished() {
			return m, tea.Quit
		}
		return m, waitForUpdate(m.updates)

	case closedMsg:
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(Title.Render("sweep " + m.sweepID))
	b.WriteString("\n")

	if !m.received {
		b.WriteString(Muted.Render("loading trial list..."))
		b.WriteString("\n")
		return ContentBox.Render(b.String())
	}

	p := m.progress
	b.WriteString(renderBar(p, m.barWidth()))
	b.WriteString(fmt.Sprintf(" %3.0f%%\n\n", p.Fraction()*100))

	counts := []struct {
		label string
		n     int
	}{
		{"done", p.Done},
		{"running", p.Running},
		{"pending", p.Unclaimed},
		{"untracked", p.Untracked},
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		if c.label == "untracked" && c.n == 0 {
			continue
		}
		parts = append(parts, stateStyle(c.label).Render(fmt.Sprintf("%d", c.n))+" "+Muted.Render(c.label))
	}
	b.WriteString(strings.Join(parts, Muted.Render("  ·  ")))
	b.WriteString(Muted.Render(fmt.Sprintf("  of %d", p.Total)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(Error.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return ContentBox.Render(b.String())
}

func (m ProgressModel) barWidth() int {
	// Leave room for the box border, padding and percentage.
	w := m.width - 14
	if w < minBarWidth {
		w = minBarWidth
	}
	return w
}

// renderBar draws done and running trials as filled segments of a bar of
// the given width.
func renderBar(p sweep.Progress, width int) string {
	if p.Total == 0 {
		return BarEmpty.Render(strings.Repeat("░", width))
	}
	done := p.Done * width / p.Total
	running := (p.Done + p.Running) * width / p.Total
	running -= done
	empty := width - done - running

	return lipgloss.JoinHorizontal(lipgloss.Top,
		BarFilled.Render(strings.Repeat("█", done)),
		BarActive.Render(strings.Repeat("▓", running)),
		BarEmpty.Render(strings.Repeat("░", empty)),
	)
}

// Run shows progress until the user quits, the updates channel closes, or
// (with exitWhenDone) the sweep finishes. When out is not a terminal each
// snapshot is printed as a plain line instead.
func Run(ctx context.Context, sweepID string, updates <-chan watch.Update, out io.Writer, exitWhenDone bool) error {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		model := NewProgressModel(sweepID, updates, exitWhenDone)
		_, err := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx)).Run()
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return RunPlain(ctx, updates, out, exitWhenDone)
}

// RunPlain prints one line per snapshot.
func RunPlain(ctx context.Context, updates <-chan watch.Update, out io.Writer, exitWhenDone bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Err != nil {
				fmt.Fprintf(out, "%s error: %v\n", u.Time.Format("15:04:05"), u.Err)
				continue
			}
			fmt.Fprintf(out, "%s %s\n", u.Time.Format("15:04:05"), u.Progress)
			if exitWhenDone && u.Progress.Finished() {
				return nil
			}
		}
	}
}
