// Package main is the entry point for the filebot CLI.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/filebot/internal/config"
	"github.com/flemzord/filebot/internal/core"
	"github.com/flemzord/filebot/internal/security"
	"github.com/flemzord/filebot/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "filebot",
		Short:         "Telegram file request bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), hashPasswordCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filebot %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	level, _ := cmd.Flags().GetString("log-level")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start filebot with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			if !interactive() {
				return runAsService(params)
			}
			return app.Run(params)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Persistent data directory (default $XDG_DATA_HOME/filebot)")
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				path = resolved
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			return checkConfig(cmd.OutOrStdout(), path, dataDir)
		},
	}
	addRunFlags(check)
	cmd.AddCommand(check)
	return cmd
}

// checkConfig loads path and provisions every module without starting any.
func checkConfig(out io.Writer, path, dataDir string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = app.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logger := app.NewLogger(cfg.Logging, "error", os.Stderr, security.NewRedactor())
	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	a := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := a.LoadModules(ids); err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func hashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an admin password for admin_password_hash",
		Long:  "Reads the password from --password, a prompt on a terminal, or the first line of stdin, and prints its PBKDF2 hash.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" && isTerminal(cmd.InOrStdin()) {
				if err := promptPassword(&password); err != nil {
					return err
				}
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().String("password", "", "Password to hash (read from stdin when empty)")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func promptPassword(password *string) error {
	var confirm string
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Admin password").
			EchoMode(huh.EchoModePassword).
			Value(password),
		huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if s != *password {
					return errors.New("passwords do not match")
				}
				return nil
			}).
			Value(&confirm),
	)).Run()
}
