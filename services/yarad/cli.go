package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarmguard/yarad/services/yarad/config"
)

// errNotImplemented is returned by declared but unwired subcommands.
var errNotImplemented = errors.New("not implemented")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the yarad command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "yarad",
		Short:         "yarad - rule based file scanning daemon",
		Long:          "yarad loads a directory of scanning rules and serves scan requests over a local control socket.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "config file")

	cmd.AddCommand(newStartCommand(opts))
	cmd.AddCommand(newCheckConfigCommand(opts))
	cmd.AddCommand(newShowRulesDirCommand(opts))
	for _, name := range []string{"status", "stop", "restart", "show-rules-name", "pid"} {
		cmd.AddCommand(newUnwiredCommand(name))
	}
	return cmd
}

func newStartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), opts.ConfigPath)
		},
	}
}

func newCheckConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(opts.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", opts.ConfigPath)
			return nil
		},
	}
}

func newShowRulesDirCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-rules-dir",
		Short: "Print the configured rules directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.RulesDir)
			return nil
		},
	}
}

func newUnwiredCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: name + " (not implemented)",
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("%s: %w", name, errNotImplemented)
		},
	}
}
