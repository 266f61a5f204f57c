package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mrlokans/kobo-notion-sync/internal/config"
	"github.com/mrlokans/kobo-notion-sync/internal/scheduler"
	"github.com/mrlokans/kobo-notion-sync/internal/secrets"
)

// ScheduleCommand runs the daemon that syncs daily at the configured time.
type ScheduleCommand struct {
	Verbose bool
}

// NewScheduleCommand creates a new ScheduleCommand.
func NewScheduleCommand() *ScheduleCommand {
	return &ScheduleCommand{}
}

// ParseFlags parses command line flags.
func (cmd *ScheduleCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s schedule\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run the daemon that syncs daily at the time set in the config.\n")
	}
	return fs.Parse(args)
}

// Run starts the daemon and blocks until interrupted.
func (cmd *ScheduleCommand) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Schedule.Enabled {
		return &config.ConfigurationError{Field: "schedule.enabled", Reason: "scheduling is disabled in config"}
	}

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	token, err := secrets.NewStore(configDir).Get()
	if err != nil {
		return err
	}

	syncCmd := &SyncCommand{Verbose: cmd.Verbose, stdin: os.Stdin}
	runOnce := func(ctx context.Context) error {
		session, err := syncCmd.runSync(ctx, cfg, token, configDir)
		if err != nil {
			return err
		}
		syncCmd.report(session)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lockPath := filepath.Join(configDir, "sync.lock")
	fmt.Printf("⏰ Scheduling daily sync at %s (Ctrl-C to stop)\n", cfg.Schedule.Time)
	return scheduler.New(lockPath, runOnce).Start(ctx, cfg.Schedule.Time)
}
