package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"swiftly/internal/engine"
	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <selector>",
		Short: "Switch the active toolchain",
		Long:  "Switch the active toolchain to the newest installed toolchain matching the selector.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUse,
	}
}

func runUse(cmd *cobra.Command, args []string) error {
	sel, err := toolchain.ParseSelector(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.Use(cmd.Context(), sel)
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	status := tui.StatusStyle(string(result.Outcome))
	switch result.Outcome {
	case engine.OutcomeNoMatch:
		fmt.Fprintln(out, status.Render(fmt.Sprintf("no matching installed toolchain for %q", args[0])))
	case engine.OutcomeAlreadyInUse:
		fmt.Fprintln(out, status.Render(result.Version.DisplayName()+" is already in use"))
	default:
		line := "Now using " + tui.ActiveStyle.Render(result.Version.DisplayName())
		if result.Previous != nil {
			line += tui.HintStyle.Render(" (was " + result.Previous.DisplayName() + ")")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
