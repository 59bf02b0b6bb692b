package tui

import (
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrInterrupted is returned when the user quits the TUI before the work
// finished.
var ErrInterrupted = errors.New("interrupted")

// RunWithWork creates a bubbletea program, launches workFn in a goroutine,
// and blocks until the program exits. workFn receives a send callback
// forwarding to tea.Program.Send; its returned error ends the program.
func RunWithWork(out io.Writer, model DownloadModel, workFn func(send func(tea.Msg)) error) error {
	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithInput(nil))

	workErr := make(chan error, 1)
	go func() {
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)

		err := workFn(p.Send)
		workErr <- err
		if err != nil {
			p.Send(ErrorMsg{Err: err})
			return
		}
		p.Send(WorkDoneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(DownloadModel); ok && errors.Is(m.Err(), ErrInterrupted) {
		return m.Err()
	}
	return <-workErr
}
