package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/loykin/pausr"
	"github.com/loykin/pausr/internal/settings"
	sfactory "github.com/loykin/pausr/internal/store/factory"
	"github.com/loykin/pausr/pkg/client"
	"github.com/spf13/cobra"
)

// command runs the client-side subcommands against a daemon.
type command struct {
	flags *GlobalFlags
	out   io.Writer
}

// apiURL picks --api-url, else derives the URL from the config's [server].
func (c command) apiURL() (string, error) {
	if c.flags.APIUrl != "" {
		return c.flags.APIUrl, nil
	}
	if c.flags.ConfigPath == "" {
		return client.DefaultConfig().BaseURL, nil
	}
	cfg, err := pausr.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("error loading config: %w", err)
	}
	return baseURLFor(cfg.Server.Listen, cfg.Server.BasePath, cfg.Server.TLS.Enabled), nil
}

// baseURLFor turns a listen address into a URL a local client can dial.
func baseURLFor(listen, basePath string, tls bool) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "127.0.0.1", "8787"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if tls {
		scheme = "https"
	}
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return scheme + "://" + net.JoinHostPort(host, port) + strings.TrimRight(basePath, "/")
}

func (c command) client() (*client.Client, error) {
	url, err := c.apiURL()
	if err != nil {
		return nil, err
	}
	cfg := client.DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = c.flags.APITimeout
	cfg.CACert = c.flags.CACert
	cfg.Insecure = c.flags.Insecure
	cfg.Token = c.flags.Token
	return client.New(cfg)
}

func (c command) Status(ctx context.Context) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "running=%d tracked=%d starting=%t suspend_pending=%t key_pending=%t\n",
		st.Running, st.Tracked, st.Starting, st.SuspendPending, st.KeyPending)
	return nil
}

func (c command) Apps(ctx context.Context, asJSON bool) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	apps, err := cl.Apps(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(apps)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "APPID\tNAME\tPID\tPAUSED\tSTICKY\tEXCLUDED")
	for _, a := range apps {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%t\t%t\n", a.AppID, a.Name, a.PID, a.Paused, a.Sticky, a.Excluded)
	}
	return tw.Flush()
}

func (c command) printApp(a client.App) {
	_, _ = fmt.Fprintf(c.out, "%d %s paused=%t sticky=%t\n", a.AppID, a.Name, a.Paused, a.Sticky)
}

func (c command) manual(ctx context.Context, appID uint32, op func(*client.Client, context.Context, uint32) (client.App, error)) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	a, err := op(cl, ctx, appID)
	if err != nil {
		return err
	}
	c.printApp(a)
	return nil
}

func (c command) Pause(ctx context.Context, appID uint32) error {
	return c.manual(ctx, appID, (*client.Client).Pause)
}

func (c command) Resume(ctx context.Context, appID uint32) error {
	return c.manual(ctx, appID, (*client.Client).Resume)
}

func (c command) Toggle(ctx context.Context, appID uint32) error {
	return c.manual(ctx, appID, (*client.Client).Toggle)
}

func (c command) Terminate(ctx context.Context, appID uint32, force bool) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.Terminate(ctx, appID, force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%d terminated\n", appID)
	return nil
}

func (c command) Exclude(ctx context.Context, appID uint32) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.Exclude(ctx, appID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%d excluded from automatic pausing\n", appID)
	return nil
}

func (c command) Include(ctx context.Context, appID uint32) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.Include(ctx, appID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%d included in automatic pausing\n", appID)
	return nil
}

func (c command) printSettings(s client.Settings) {
	_, _ = fmt.Fprintf(c.out, "autoPause=%t overlayPause=%t pauseBeforeSuspend=%t excluded=%v\n",
		s.AutoPause, s.OverlayPause, s.PauseBeforeSuspend, s.NoAutoPause)
}

func (c command) ShowSettings(ctx context.Context) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	s, err := cl.Settings(ctx)
	if err != nil {
		return err
	}
	c.printSettings(s)
	return nil
}

func (c command) UpdateSettings(ctx context.Context, p client.SettingsPatch) error {
	if p.AutoPause == nil && p.OverlayPause == nil && p.PauseBeforeSuspend == nil && p.NoAutoPause == nil {
		return fmt.Errorf("nothing to update: pass at least one setting flag")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	s, err := cl.UpdateSettings(ctx, p)
	if err != nil {
		return err
	}
	c.printSettings(s)
	return nil
}

// parseAppID accepts a positive decimal app id.
func parseAppID(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid app id %q", s)
	}
	return uint32(v), nil
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the orchestrator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withOut(cmd).Status(cmd.Context())
		},
	}
}

func createAppsCommand(c command, flags *AppsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List running apps with their pause state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withOut(cmd).Apps(cmd.Context(), flags.JSON)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

// createAppCommand builds a "<verb> <appid>" command.
func createAppCommand(c command, use, short string, run func(command, context.Context, uint32) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <appid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return run(c.withOut(cmd), cmd.Context(), id)
		},
	}
}

func createTerminateCommand(c command, flags *TerminateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate <appid>",
		Short: "Resume and terminate an app's process tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return c.withOut(cmd).Terminate(cmd.Context(), id, flags.Force)
		},
	}
	cmd.Flags().BoolVar(&flags.Force, "force", false, "send SIGKILL instead of SIGTERM")
	return cmd
}

func createSettingsCommand(c command, flags *SettingsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withOut(cmd).ShowSettings(cmd.Context())
		},
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: `Change settings; only the flags given are sent.

Examples:
  pausr settings set --auto-pause=true
  pausr settings set --overlay-pause=false --pause-before-suspend=true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p client.SettingsPatch
			fs := cmd.Flags()
			if fs.Changed("auto-pause") {
				p.AutoPause = &flags.AutoPause
			}
			if fs.Changed("overlay-pause") {
				p.OverlayPause = &flags.OverlayPause
			}
			if fs.Changed("pause-before-suspend") {
				p.PauseBeforeSuspend = &flags.PauseBeforeSuspend
			}
			return c.withOut(cmd).UpdateSettings(cmd.Context(), p)
		},
	}
	set.Flags().BoolVar(&flags.AutoPause, "auto-pause", false, "pause unfocused apps automatically")
	set.Flags().BoolVar(&flags.OverlayPause, "overlay-pause", false, "pause the focused app while the overlay is open")
	set.Flags().BoolVar(&flags.PauseBeforeSuspend, "pause-before-suspend", false, "pause every app before system suspend")
	cmd.AddCommand(set)
	return cmd
}

// createMigrateCommand runs the legacy settings migration without a daemon.
func createMigrateCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy settings into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pausr.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := sfactory.Open(ctx, cfg.Resolve(cfg.Store.DSN))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			m := settings.New(st, settings.WithLegacyFile(cfg.Resolve(cfg.Store.LegacyFile)))
			if err := m.Init(ctx); err != nil {
				return err
			}
			s := m.Snapshot()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "autoPause=%t overlayPause=%t pauseBeforeSuspend=%t excluded=%v\n",
				s.AutoPause, s.OverlayPause, s.PauseBeforeSuspend, s.NoAutoPause)
			return nil
		},
	}
}

// withOut routes output to the cobra command's writer (tests capture it).
func (c command) withOut(cmd *cobra.Command) command {
	c.out = cmd.OutOrStdout()
	return c
}
