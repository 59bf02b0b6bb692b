package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [selector]",
		Short: "List installed toolchains",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
}

var listColumns = []tui.Column{
	{Header: "TOOLCHAIN", Width: 28},
	{Header: "KIND", Width: 8},
	{Header: "ACTIVE", Width: 6},
}

func runList(cmd *cobra.Command, args []string) error {
	var sel *toolchain.Selector
	if len(args) == 1 {
		parsed, err := toolchain.ParseSelector(args[0])
		if err != nil {
			return err
		}
		sel = &parsed
	}

	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.List(sel)
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if len(result.Entries) == 0 {
		fmt.Fprintln(out, "No toolchains installed.")
		return nil
	}
	rows := make([][]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		active := ""
		if entry.InUse {
			active = "*"
		}
		rows = append(rows, []string{entry.Version.Name(), entry.Version.Kind.String(), active})
	}
	fmt.Fprint(out, tui.RenderTable(listColumns, rows))
	return nil
}
