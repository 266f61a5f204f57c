package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/mrlokans/kobo-notion-sync/internal/config"
	"github.com/mrlokans/kobo-notion-sync/internal/covers"
	"github.com/mrlokans/kobo-notion-sync/internal/entities"
	"github.com/mrlokans/kobo-notion-sync/internal/highlightcache"
	"github.com/mrlokans/kobo-notion-sync/internal/kobo"
	"github.com/mrlokans/kobo-notion-sync/internal/lock"
	"github.com/mrlokans/kobo-notion-sync/internal/notify"
	"github.com/mrlokans/kobo-notion-sync/internal/notion"
	"github.com/mrlokans/kobo-notion-sync/internal/secrets"
	"github.com/mrlokans/kobo-notion-sync/internal/syncer"
)

var (
	successLine = color.New(color.FgGreen)
	errorLine   = color.New(color.FgRed)
	warnLine    = color.New(color.FgYellow)
)

// SyncCommand runs one sync from a connected device to the configured
// database.
type SyncCommand struct {
	Full           bool
	DryRun         bool
	NoNotification bool
	DevicePath     string
	Verbose        bool

	stdin io.Reader
}

// NewSyncCommand creates a new SyncCommand.
func NewSyncCommand() *SyncCommand {
	return &SyncCommand{stdin: os.Stdin}
}

// ParseFlags parses command line flags.
func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	fs.BoolVar(&cmd.Full, "full", false, "Delete all tracked pages and resync from scratch")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Show what would be synced without writing anything")
	fs.BoolVar(&cmd.NoNotification, "no-notification", false, "Skip the desktop notification")
	fs.StringVar(&cmd.DevicePath, "device", "", "Kobo mount path (default: auto-detect)")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sync highlights from a connected Kobo e-reader to Notion.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s sync\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -dry-run\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -full\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -device /media/user/KOBOeReader\n", os.Args[0])
	}

	return fs.Parse(args)
}

// Run executes the sync command.
func (cmd *SyncCommand) Run() error {
	fmt.Println("📚 Kobo → Notion Sync")
	fmt.Println("=====================")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	token, err := secrets.NewStore(configDir).Get()
	if err != nil {
		return err
	}

	if cmd.Full && !cmd.DryRun {
		if !cmd.confirmFullResync() {
			fmt.Println("Aborted.")
			return nil
		}
	}

	lockPath := filepath.Join(configDir, "sync.lock")
	l, err := lock.Acquire(lockPath)
	if err != nil {
		return err
	}
	defer l.Release()

	session, err := cmd.runSync(context.Background(), cfg, token, configDir)
	if err != nil {
		return err
	}

	cmd.report(session)
	if !cmd.NoNotification && cfg.Sync.Notifications && !cmd.DryRun {
		notify.New().Send("Kobo → Notion Sync", session.Summary())
	}

	if session.Status() == entities.SyncStatusFailed {
		return errors.New(session.Summary())
	}
	if session.Status() == entities.SyncStatusPartial {
		return fmt.Errorf("%d books failed to sync", len(session.Errors))
	}
	return nil
}

// runSync wires the collaborators and executes the session. Shared with
// the schedule daemon.
func (cmd *SyncCommand) runSync(ctx context.Context, cfg *config.Config, token, configDir string) (*entities.SyncSession, error) {
	reader, err := cmd.openDevice(cfg)
	if err != nil {
		return nil, err
	}

	info := reader.DeviceInfo()
	fmt.Printf("🔌 Device: %s at %s\n", info.Model, info.MountPath)
	if !info.Recognized {
		warnLine.Println("⚠️  Unrecognized device model, proceeding anyway")
	}

	var cache syncer.HighlightCache
	if cfg.Sync.DedupStrategy == config.DedupByCache {
		store, err := openCache(configDir)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		cache = store
	}

	client := notion.NewClient(token)
	fields := notion.BookPageFields{
		Description: cfg.Notion.HasDescription,
		TimeSpent:   cfg.Notion.HasTimeSpent,
	}

	s := syncer.New(reader, client, covers.NewFinder(), cache, cfg.Notion.DatabaseID, fields)
	if cmd.Verbose || cmd.DryRun {
		s.SetProgress(func(format string, args ...any) {
			fmt.Printf("   "+format+"\n", args...)
		})
	}

	return s.Run(ctx, syncer.Options{Full: cmd.Full, DryRun: cmd.DryRun}), nil
}

func (cmd *SyncCommand) openDevice(cfg *config.Config) (*kobo.Reader, error) {
	switch {
	case cmd.DevicePath != "":
		return kobo.NewReader(cmd.DevicePath)
	case cfg.Device.MountPath != "":
		return kobo.NewReader(cfg.Device.MountPath)
	default:
		return kobo.DetectDevice()
	}
}

// openCache validates the cache database first and rebuilds it when
// corrupted, so a damaged cache degrades to a full re-dedup instead of a
// failed run.
func openCache(configDir string) (*highlightcache.Store, error) {
	path := filepath.Join(configDir, "cache", "highlights.db")
	if v := highlightcache.Validate(path); !v.Valid {
		warnLine.Printf("⚠️  Highlight cache corrupted (%s), rebuilding\n", v.Reason)
		return highlightcache.Rebuild(path)
	}
	return highlightcache.Open(path)
}

func (cmd *SyncCommand) confirmFullResync() bool {
	fmt.Print("⚠️  Full resync deletes and recreates every tracked page. Continue? [y/N]: ")
	scanner := bufio.NewScanner(cmd.stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func (cmd *SyncCommand) report(session *entities.SyncSession) {
	fmt.Println()
	switch session.Status() {
	case entities.SyncStatusSuccess:
		successLine.Printf("✅ %s\n", session.Summary())
	case entities.SyncStatusPartial:
		warnLine.Printf("⚠️  %s\n", session.Summary())
	default:
		errorLine.Printf("❌ %s\n", session.Summary())
	}

	if cmd.DryRun {
		fmt.Printf("   Dry run: would create %d, recreate %d, skip %d\n",
			session.BooksCreated, session.BooksUpdated, session.BooksSkipped)
	} else {
		fmt.Printf("   Books: %d created, %d updated, %d unchanged\n",
			session.BooksCreated, session.BooksUpdated, session.BooksSkipped)
	}
	if session.CacheHits+session.CacheMisses > 0 {
		fmt.Printf("   Deduplication: %.0f%% of highlights already synced\n", session.DeduplicationRate())
	}
	for _, msg := range session.Errors {
		errorLine.Printf("   ✗ %s\n", msg)
	}
}
