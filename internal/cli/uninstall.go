package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"swiftly/internal/engine"
	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

var uninstallAll bool

func newUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall <selector>",
		Short: "Remove installed toolchains",
		Long: `Remove the newest installed toolchain matching the selector, or every
match with --all. Removing the active toolchain switches to the newest
remaining stable release.`,
		Args: cobra.ExactArgs(1),
		RunE: runUninstall,
	}

	cmd.Flags().BoolVar(&uninstallAll, "all", false, "Remove every installed toolchain matching the selector")

	return cmd
}

func runUninstall(cmd *cobra.Command, args []string) error {
	sel, err := toolchain.ParseSelector(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var spinner *tui.StatusWriter
	if !outputJSON {
		spinner = tui.StartStatus(cmd.ErrOrStderr(), "Removing "+sel.String())
	}
	result, err := s.engine.UninstallMatching(cmd.Context(), sel, uninstallAll)
	spinner.Stop()
	if err != nil && result.Outcome == "" {
		return err
	}
	if outputJSON {
		if werr := writeJSON(cmd, result); werr != nil {
			return werr
		}
		return err
	}

	out := cmd.OutOrStdout()
	status := tui.StatusStyle(string(result.Outcome))
	if result.Outcome == engine.OutcomeNoMatch {
		fmt.Fprintln(out, status.Render(fmt.Sprintf("no matching installed toolchain for %q", args[0])))
		return err
	}
	for _, v := range result.Removed {
		fmt.Fprintln(out, status.Render("Uninstalled "+v.DisplayName()))
	}
	if result.WasActive {
		if result.Active != nil {
			fmt.Fprintf(out, "%s is now in use\n", tui.ActiveStyle.Render(result.Active.DisplayName()))
		} else {
			fmt.Fprintln(out, tui.WarnStyle.Render("No toolchain is in use"))
		}
	}
	return err
}
