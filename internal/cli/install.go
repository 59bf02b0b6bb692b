package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"swiftly/internal/config"
	"swiftly/internal/engine"
	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

var (
	installToken      string
	installNoProgress bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <selector>",
		Short: "Download and install a toolchain",
		Long: `Download and install a toolchain. The selector may be
latest, a stable version (5, 5.7, 5.7.1) or a snapshot
(main-snapshot, 5.7-snapshot, main-snapshot-2022-10-22).
The first toolchain installed becomes the active one.`,
		Args: cobra.ExactArgs(1),
		RunE: runInstall,
	}

	cmd.Flags().StringVar(&installToken, "token", "", "GitHub token for release lookups (defaults to GITHUB_TOKEN)")
	cmd.Flags().BoolVar(&installNoProgress, "no-progress", false, "Disable interactive progress output")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	sel, err := toolchain.ParseSelector(args[0])
	if err != nil {
		return err
	}

	outWriter := cmd.OutOrStdout()
	mode := tui.DetectMode(outWriter, installNoProgress, outputJSON)
	sink := &progressSink{}
	if mode == tui.ModePlain {
		sink.plain = &plainProgress{w: cmd.ErrOrStderr()}
	}

	s, err := openSession(sessionOptions{token: installToken, progress: sink.report})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := s.store.Load(); errors.Is(err, config.ErrNotInitialized) {
		if _, _, err := s.engine.Init(ctx); err != nil {
			return err
		}
	}
	s.logger.Printf("install %s started", sel)

	var result engine.InstallResult
	work := func() error {
		var err error
		result, err = s.engine.Install(ctx, sel)
		return err
	}

	if mode == tui.ModeTUI {
		done := make(chan struct{})
		model := tui.NewDownloadModel("Installing " + sel.String())
		err = tui.RunWithWork(outWriter, model, func(send func(tea.Msg)) error {
			defer close(done)
			sink.setSend(send)
			send(tui.PhaseMsg{Text: "Resolving " + sel.String()})
			return work()
		})
		cancel()
		<-done
	} else {
		err = work()
	}
	if err != nil {
		s.logger.Printf("install %s failed: %v", sel, err)
		return err
	}

	if outputJSON {
		return writeJSON(cmd, result)
	}
	writeInstallResult(outWriter, result)
	return nil
}

func writeInstallResult(out io.Writer, result engine.InstallResult) {
	name := result.Version.DisplayName()
	status := tui.StatusStyle(string(result.Outcome))
	switch result.Outcome {
	case engine.OutcomeAlreadyInstalled:
		fmt.Fprintln(out, status.Render(name+" is already installed"))
		return
	default:
		fmt.Fprintln(out, status.Render("Installed "+name))
	}
	if result.Activated {
		fmt.Fprintf(out, "%s is now in use\n", tui.ActiveStyle.Render(name))
	}
	for _, hint := range result.Hints {
		fmt.Fprintln(out, tui.HintStyle.Render(hint))
	}
}
