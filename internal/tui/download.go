package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"swiftly/internal/remote"
)

const tickInterval = 150 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// tickMsg drives the spinner.
type tickMsg time.Time

// DownloadModel renders one download: a phase line, a progress bar when the
// size is known and a byte counter.
type DownloadModel struct {
	title    string
	phase    string
	bar      progress.Model
	progress remote.Progress
	started  time.Time
	done     bool
	err      error
	tick     int
}

// NewDownloadModel creates a model titled title.
func NewDownloadModel(title string) DownloadModel {
	return DownloadModel{
		title:    title,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		progress: remote.Progress{Total: -1},
		started:  time.Now(),
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init satisfies the tea.Model interface.
func (m DownloadModel) Init() tea.Cmd {
	return scheduleTick()
}

// Update satisfies the tea.Model interface.
func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, scheduleTick()

	case ProgressMsg:
		if msg.Received >= m.progress.Received {
			m.progress.Received = msg.Received
		}
		m.progress.Total = msg.Total
		return m, nil

	case PhaseMsg:
		m.phase = msg.Text
		m.started = time.Now()
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		width := msg.Width - 30
		if width > 60 {
			width = 60
		}
		if width > 10 {
			m.bar.Width = width
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.err = ErrInterrupted
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m DownloadModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	spinner := spinnerFrames[m.tick%len(spinnerFrames)]
	phase := m.phase
	if phase == "" {
		phase = m.title
	}
	fmt.Fprintf(&b, "%s %s %s\n", spinner, phase, HintStyle.Render("("+formatElapsed(time.Since(m.started))+")"))

	pr := m.progress
	if fraction := pr.Fraction(); fraction >= 0 {
		fmt.Fprintf(&b, "  %s %s / %s\n", m.bar.ViewAs(fraction),
			humanize.Bytes(uint64(pr.Received)), humanize.Bytes(uint64(pr.Total)))
	} else if pr.Received > 0 {
		fmt.Fprintf(&b, "  %s received\n", humanize.Bytes(uint64(pr.Received)))
	}
	return b.String()
}

// Received returns the byte count of the latest progress event.
func (m DownloadModel) Received() int64 {
	return m.progress.Received
}

// Done returns whether the model has finished (work done or error).
func (m DownloadModel) Done() bool {
	return m.done
}

// Err returns any fatal error that occurred.
func (m DownloadModel) Err() error {
	return m.err
}

// ProgressLine formats a progress event for plain output, e.g.
// "42% (21 MB / 50 MB)" or "21 MB" when the size is unknown.
func ProgressLine(received, total int64) string {
	if total > 0 {
		pct := received * 100 / total
		return fmt.Sprintf("%d%% (%s / %s)", pct, humanize.Bytes(uint64(received)), humanize.Bytes(uint64(total)))
	}
	return humanize.Bytes(uint64(received))
}
