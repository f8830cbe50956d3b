package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/filebot/pkg/app"
)

const serviceName = "filebot"

var serviceActions = []string{"install", "uninstall", "start", "stop", "restart", "status"}

// program adapts app.RunContext to the service manager's Start/Stop calls.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.RunContext(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func interactive() bool {
	return service.Interactive()
}

// runAsService hands control to the platform service manager.
func runAsService(params app.RunParams) error {
	s, err := service.New(&program{params: params}, serviceConfig(params.ConfigPath, params.DataDir))
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	return s.Run()
}

// serviceConfig describes the installed unit. The service re-runs this
// binary with "start" and the given paths.
func serviceConfig(cfgPath, dataDir string) *service.Config {
	args := []string{"start"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: "filebot",
		Description: "Telegram file request bot",
		Arguments:   args,
		Option: service.KeyValue{
			"Restart": "on-failure",
		},
	}
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status>",
		Short:     "Manage filebot as a system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: serviceActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if args[0] == "install" {
				if cfgPath == "" {
					resolved, err := app.ResolveConfigPath()
					if err != nil {
						return err
					}
					cfgPath = resolved
				}
				abs, err := filepath.Abs(cfgPath)
				if err != nil {
					return err
				}
				cfgPath = abs
			}

			s, err := service.New(&program{}, serviceConfig(cfgPath, dataDir))
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}
			out := cmd.OutOrStdout()

			if args[0] == "status" {
				st, err := s.Status()
				if errors.Is(err, service.ErrNotInstalled) {
					fmt.Fprintln(out, "not installed")
					return nil
				}
				if err != nil {
					return fmt.Errorf("service status: %w", err)
				}
				fmt.Fprintln(out, statusText(st))
				return nil
			}

			if err := service.Control(s, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(out, "service %s: ok\n", args[0])
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
