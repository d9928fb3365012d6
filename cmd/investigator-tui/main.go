// Command investigator-tui starts or joins an investigation session and
// renders its task progress in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/procurewatch/investigator/internal/app"
	"github.com/procurewatch/investigator/internal/client"
	"github.com/procurewatch/investigator/internal/config"
	"github.com/procurewatch/investigator/internal/logging"
	"github.com/procurewatch/investigator/internal/session"
	"github.com/spf13/cobra"
)

var (
	configPath string
	baseURL    string
	tenderID   string
	sessionID  string
	token      string
	plain      bool
	recent     int
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "investigator-tui",
	Short: "Watch a tender investigation",
	Long: `Watch a tender investigation.

With --tender a new investigation is started on the relay; with only
--session an existing one is joined. Task progress is rendered as a
terminal UI, or streamed as text lines with --plain.`,
	SilenceUsage: true,
	RunE:         runWatch,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print relay health",
	RunE:  runHealth,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config file")
	pf.StringVar(&baseURL, "url", "", "Relay base URL (default from config)")
	pf.StringVar(&token, "token", "", "Auth token (if the relay requires it)")
	pf.StringVar(&logFile, "log-file", "", "Write logs to this file")

	f := rootCmd.Flags()
	f.StringVar(&tenderID, "tender", "", "Tender id to investigate")
	f.StringVar(&sessionID, "session", "", "Session id to start or join")
	f.BoolVar(&plain, "plain", false, "Stream text lines instead of the TUI")
	f.IntVar(&recent, "recent", 0, "Recent events shown in the task detail (default from config)")

	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	if baseURL != "" {
		cfg.Client.BaseURL = baseURL
	}
	if recent > 0 {
		cfg.Client.RecentEvents = recent
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var out io.Writer = io.Discard
	cleanup := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		cleanup = func() { f.Close() }
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Output: out,
	})
	return cfg, cleanup, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	if tenderID == "" && sessionID == "" {
		return errors.New("one of --tender or --session is required")
	}

	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()
	log := logging.Component("tui")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := sessionID
	if tenderID != "" {
		hc := client.NewHTTPClient(cfg.Client.BaseURL, token)
		startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		resp, err := hc.StartInvestigation(startCtx, tenderID, sessionID)
		cancel()
		if err != nil {
			return err
		}
		id = resp.SessionID
		log.Info().Str("session", id).Str("tender", tenderID).Msg(resp.Message)
	}

	var holder session.Holder
	defer holder.Close()
	sess, err := holder.Replace(ctx, func(ctx context.Context) (*session.Session, error) {
		return session.Start(ctx, session.Dialer(cfg.Client.BaseURL, token, logging.Component("channel")), id, logging.Component("session"))
	})
	if err != nil {
		return err
	}

	if plain {
		return app.RunPlain(ctx, sess, cmd.OutOrStdout())
	}

	p := tea.NewProgram(app.New(sess, cfg.Client.RecentEvents), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	h, err := client.NewHTTPClient(cfg.Client.BaseURL, token).Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d sessions, %d clients, cpu %.1f%%, mem %.1f%%\n",
		h.Service, h.Status, h.Sessions, h.Clients, h.CPUPercent, h.MemPercent)
	return nil
}
