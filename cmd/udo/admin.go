package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/basket/udo/internal/config"
	"github.com/basket/udo/internal/doctor"
	"github.com/basket/udo/internal/tui"
)

func doctorCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, index, link and state problems",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wp, err := a.workingPath()
			if err != nil {
				return err
			}
			diag := doctor.Run(cmd.Context(), &a.cfg, wp, Version)

			if jsonOutput {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(diag); err != nil {
					return fmt.Errorf("encode json: %w", err)
				}
			} else {
				fmt.Fprintf(a.out, "UDO Doctor Report (%s)\n", diag.Timestamp.Format(time.RFC3339))
				fmt.Fprintf(a.out, "System: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
				fmt.Fprintln(a.out, "---")
				for _, res := range diag.Results {
					fmt.Fprintln(a.out, tui.CheckLine(res.Status, res.Name, res.Message))
					if res.Detail != "" {
						fmt.Fprintf(a.out, "    %s\n", res.Detail)
					}
				}
			}
			if diag.Failed() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit ~/.udo/config.yaml",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := yaml.Marshal(a.cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "# %s\n", config.ConfigPath(a.cfg.HomeDir))
				_, err = a.out.Write(out)
				return err
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write config.yaml with the defaults",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := config.ConfigPath(a.cfg.HomeDir)
				wrote, err := config.WriteDefault(a.cfg.HomeDir)
				if err != nil {
					return err
				}
				if !wrote {
					fmt.Fprintf(a.out, "%s already exists\n", path)
					return nil
				}
				fmt.Fprintf(a.out, "wrote %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set one top-level key",
			Args:  exactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Set(a.cfg.HomeDir, args[0], args[1]); err != nil {
					return err
				}
				if _, err := config.Load(); err != nil {
					return fmt.Errorf("config.yaml no longer loads: %w", err)
				}
				fmt.Fprintf(a.out, "%s = %s\n", args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

func projectsCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List linked projects, most recently used first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := a.resolver.Registry().Entries()
			if jsonOutput {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No linked projects.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(a.out, "%-20s %-30s %s  %s\n",
					e.Name, e.StorageID, e.LastAccessedAt.Local().Format("2006-01-02 15:04"), e.WorkingPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the list as JSON")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the udo version",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "udo %s\n", Version)
			return nil
		},
	}
}
