package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postbox/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage postbox configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(path)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return err
				}
				target = expanded
			}

			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			}

			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Target path for the sample config")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing config file")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, exists, err := config.Load(strings.TrimSpace(path))

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Path", statusInfo, resolvedPath, colorize))
			if exists {
				fmt.Fprintln(out, renderStatusLine("Exists", statusOK, "yes", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Exists", statusWarn, "no, defaults in effect", colorize))
			}
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Valid", statusError, err.Error(), colorize))
				return fmt.Errorf("configuration is invalid")
			}
			fmt.Fprintln(out, renderStatusLine("Valid", statusOK, "yes", colorize))
			fmt.Fprintln(out, renderStatusLine("Data dir", statusInfo, cfg.Paths.DataDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, cfg.QueueDBPath(), colorize))
			fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, cfg.SocketPath(), colorize))
			fmt.Fprintln(out, renderStatusLine("API base URL", statusInfo, cfg.API.BaseURL, colorize))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Configuration file to validate")
	return cmd
}
