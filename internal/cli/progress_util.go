package cli

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"swiftly/internal/remote"
	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

// progressSink routes engine progress to whichever renderer is active.
// send is set once the TUI program is running; before that, and in plain
// mode, events go to the line printer.
type progressSink struct {
	mu    sync.Mutex
	send  func(tea.Msg)
	plain *plainProgress
}

func (p *progressSink) setSend(send func(tea.Msg)) {
	p.mu.Lock()
	p.send = send
	p.mu.Unlock()
}

func (p *progressSink) report(v toolchain.Version, pr remote.Progress) {
	p.mu.Lock()
	send, plain := p.send, p.plain
	p.mu.Unlock()

	if send != nil {
		send(tui.ProgressMsg{Received: pr.Received, Total: pr.Total})
		return
	}
	if plain != nil {
		plain.report(v, pr)
	}
}

// plainProgress prints one line per ten percent, or per 10 MB when the
// size is unknown.
type plainProgress struct {
	w    io.Writer
	last int64
	seen bool
}

const unknownSizeStep = 10 << 20

func (p *plainProgress) report(v toolchain.Version, pr remote.Progress) {
	step := pr.Received / unknownSizeStep
	if pr.Total > 0 {
		step = pr.Received * 10 / pr.Total
	}
	if p.seen && step == p.last {
		return
	}
	p.seen, p.last = true, step
	fmt.Fprintf(p.w, "Downloading %s: %s\n", v.Name(), tui.ProgressLine(pr.Received, pr.Total))
}
