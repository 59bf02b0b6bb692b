package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"swiftly/internal/engine"
	"swiftly/internal/toolchain"
	"swiftly/internal/tui"
)

var doctorRepair bool

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the swiftly home for problems",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}

	cmd.Flags().BoolVar(&doctorRepair, "repair", false, "Reconcile the config with the toolchains on disk")

	return cmd
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

type doctorResult struct {
	engine.Report
	Checks []healthCheck `json:"checks"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var report engine.Report
	if doctorRepair {
		var spinner *tui.StatusWriter
		if !outputJSON {
			spinner = tui.StartStatus(cmd.ErrOrStderr(), "Repairing "+s.home.Root)
		}
		report, err = s.engine.Repair(cmd.Context())
		spinner.Stop()
	} else {
		report, err = s.engine.Doctor(cmd.Context())
	}
	if err != nil && report.Home == "" {
		return err
	}

	checks := buildChecks(report)
	if outputJSON {
		if werr := writeJSON(cmd, doctorResult{Report: report, Checks: checks}); werr != nil {
			return werr
		}
		return err
	}
	writeDoctorResult(cmd, report, checks)
	return err
}

func buildChecks(r engine.Report) []healthCheck {
	var checks []healthCheck

	switch {
	case len(r.Missing) > 0 || len(r.Orphaned) > 0:
		var parts []string
		if len(r.Missing) > 0 {
			parts = append(parts, "missing: "+joinVersions(r.Missing))
		}
		if len(r.Orphaned) > 0 {
			parts = append(parts, "unrecorded: "+strings.Join(r.Orphaned, ", "))
		}
		checks = append(checks, healthCheck{Name: "Toolchains", Status: "error", Summary: strings.Join(parts, "; ")})
	case len(r.Staging) > 0:
		checks = append(checks, healthCheck{
			Name:    "Toolchains",
			Status:  "warning",
			Summary: fmt.Sprintf("%d interrupted install(s) left behind", len(r.Staging)),
		})
	default:
		checks = append(checks, healthCheck{Name: "Toolchains", Status: "ok", Summary: "config matches disk"})
	}

	active := "none"
	if r.InUse != nil {
		active = r.InUse.Name()
	}
	if len(r.LinkProblems) > 0 {
		checks = append(checks, healthCheck{Name: "Links", Status: "error", Summary: strings.Join(r.LinkProblems, "; ")})
	} else {
		checks = append(checks, healthCheck{Name: "Links", Status: "ok", Summary: "active: " + active})
	}

	if r.PathWarning != "" {
		checks = append(checks, healthCheck{Name: "PATH", Status: "warning", Summary: r.PathWarning})
	} else if r.InUse != nil {
		checks = append(checks, healthCheck{Name: "PATH", Status: "ok", Summary: "swift resolves to " + r.BinDir})
	}
	return checks
}

func writeDoctorResult(cmd *cobra.Command, r engine.Report, checks []healthCheck) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("SWIFTLY HEALTH:")+" "+r.Home)
	if r.Platform.NamePretty != "" {
		fmt.Fprintf(out, "  %-12s %s\n", "Platform:", r.Platform.NamePretty)
	}

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	for _, action := range r.Actions {
		fmt.Fprintf(out, "  repaired: %s\n", action)
	}
	if !doctorRepair && (len(r.Missing) > 0 || len(r.Orphaned) > 0 || len(r.Staging) > 0 || len(r.LinkProblems) > 0) {
		fmt.Fprintln(out, "Run `swiftly doctor --repair` to fix.")
	}
}

func joinVersions(versions []toolchain.Version) string {
	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = v.Name()
	}
	return strings.Join(names, ", ")
}
