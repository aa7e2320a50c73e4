package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/pausr"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	appsFlags := &AppsFlags{}
	terminateFlags := &TerminateFlags{}
	settingsFlags := &SettingsFlags{}
	loginFlags := &LoginFlags{}

	c := command{flags: globalFlags, out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStopCommand(globalFlags),
		createMigrateCommand(globalFlags),
		createStatusCommand(c),
		createAppsCommand(c, appsFlags),
		createAppCommand(c, "pause", "Pause an app and mark it sticky", command.Pause),
		createAppCommand(c, "resume", "Resume an app and clear its sticky flag", command.Resume),
		createAppCommand(c, "toggle", "Flip the pause state of an app", command.Toggle),
		createTerminateCommand(c, terminateFlags),
		createAppCommand(c, "exclude", "Disable automatic focus pausing for an app", command.Exclude),
		createAppCommand(c, "include", "Re-enable automatic focus pausing for an app", command.Include),
		createSettingsCommand(c, settingsFlags),
		createLoginCommand(c, loginFlags),
		createHashPasswordCommand(),
	)
	return root
}

// createRootCommand creates the root command with the persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pausr",
		Short: "Focus-driven game pause orchestrator",
		Long: `Pausr pauses background games and resumes the focused one by stopping
and continuing their process trees, and pauses everything before suspend.

Examples:
  pausr serve --config=pausr.toml        # Start the orchestrator
  pausr apps                             # List running apps and their state
  pausr pause 1245620                    # Pause an app manually
  pausr settings set --auto-pause=true
  pausr status --api-url=http://deck:8787/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (default from config or http://127.0.0.1:8787/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&flags.CACert, "ca-cert", "", "CA certificate for a TLS-enabled daemon")
	root.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	root.PersistentFlags().StringVar(&flags.Token, "token", os.Getenv("PAUSR_TOKEN"), "bearer token from 'pausr login' (env PAUSR_TOKEN)")

	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the pausr daemon",
		Long: `Start the orchestrator: host event sources, the engine and the HTTP API.
Configuration is read from the TOML file; every key has a default.

Examples:
  pausr serve                          # Defaults (store: ./pausr.db)
  pausr serve pausr.toml
  pausr serve --daemonize              # Background; pidfile from [server].pidfile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(cmd.Context(), serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")

	return cmd
}

func runServe(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := pausr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	flags.PidFile = cfg.Resolve(cfg.Server.PidFile)
	if flags.Daemonize {
		logfile := flags.LogFile
		if logfile == "" {
			logfile = cfg.Resolve(cfg.Server.LogFile)
		}
		return daemonize(flags.PidFile, logfile)
	}

	lc := cfg.Log.Logger()
	lc.File.Path = cfg.Resolve(lc.File.Path)
	log := lc.NewSlogger()

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := pausr.NewDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("pausr serving", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath, "tls", cfg.Server.TLS.Enabled)
	if err := d.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("pausr stopped")
	return nil
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a daemon started with a pidfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pausr.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			pidFile := cfg.Resolve(cfg.Server.PidFile)
			if pidFile == "" {
				return fmt.Errorf("[server].pidfile is not configured")
			}
			pid, err := readPidFile(pidFile)
			if err != nil {
				return err
			}
			p, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := p.Signal(syscall.SIGTERM); err != nil {
				if kerr := p.Kill(); kerr != nil {
					return fmt.Errorf("signal %d: %w", pid, errors.Join(err, kerr))
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent stop to PID %d\n", pid)
			return nil
		},
	}
}
