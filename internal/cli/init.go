package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"swiftly/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the swiftly home and config for this platform",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

type initResult struct {
	Home     string                    `json:"home"`
	BinDir   string                    `json:"binDir"`
	Created  bool                      `json:"created"`
	Settings string                    `json:"settings,omitempty"`
	Platform config.PlatformDefinition `json:"platform"`
}

func runInit(cmd *cobra.Command, _ []string) error {
	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, created, err := s.engine.Init(cmd.Context())
	if err != nil {
		return err
	}

	wroteSettings, err := config.WriteDefaultSettings(s.home.SettingsFile, s.settings)
	if err != nil {
		return err
	}

	result := initResult{Home: s.home.Root, BinDir: s.home.BinDir, Created: created, Platform: cfg.Platform}
	if wroteSettings {
		result.Settings = s.home.SettingsFile
	}
	if outputJSON {
		return writeJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "Initialized swiftly in %s (%s)\n", s.home.Root, cfg.Platform.NamePretty)
	} else {
		fmt.Fprintf(out, "swiftly already initialized in %s\n", s.home.Root)
	}
	if wroteSettings {
		fmt.Fprintf(out, "Wrote default settings to %s\n", s.home.SettingsFile)
	}
	fmt.Fprintf(out, "Add %s to your PATH to use the active toolchain.\n", s.home.BinDir)
	return nil
}
