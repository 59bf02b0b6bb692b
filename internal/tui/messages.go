package tui

// ProgressMsg reports bytes received so far. Total is -1 when unknown.
type ProgressMsg struct {
	Received int64
	Total    int64
}

// PhaseMsg replaces the line shown above the progress bar.
type PhaseMsg struct {
	Text string
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
