package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/mrlokans/kobo-notion-sync/internal/config"
	"github.com/mrlokans/kobo-notion-sync/internal/kobo"
	"github.com/mrlokans/kobo-notion-sync/internal/notion"
	"github.com/mrlokans/kobo-notion-sync/internal/secrets"
)

// SetupCommand runs the interactive first-time configuration wizard.
type SetupCommand struct {
	DevicePath string

	stdin   io.Reader
	scanner *bufio.Scanner
	// readToken is swapped in tests; the default hides terminal input.
	readToken func() (string, error)
}

// NewSetupCommand creates a new SetupCommand.
func NewSetupCommand() *SetupCommand {
	return &SetupCommand{
		stdin: os.Stdin,
		readToken: func() (string, error) {
			data, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			return string(data), err
		},
	}
}

// ParseFlags parses command line flags.
func (cmd *SetupCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	fs.StringVar(&cmd.DevicePath, "device", "", "Kobo mount path (default: auto-detect)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s setup [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Interactive setup: API token, device detection, database selection.\n\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run executes the wizard.
func (cmd *SetupCommand) Run() error {
	ctx := context.Background()
	fmt.Println("🛠  Kobo → Notion Sync Setup")
	fmt.Println("============================")

	// Step 1: API token.
	fmt.Print("\nPaste your Notion integration token (input hidden): ")
	token, err := cmd.readToken()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return &config.ConfigurationError{Field: "token", Reason: "token must not be empty"}
	}

	client := notion.NewClient(token)
	workspace, err := client.ValidateToken(ctx)
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	successLine.Printf("✅ Connected to workspace %q\n", workspace.Name)

	// Step 2: device.
	mountPath, err := cmd.detectDevice()
	if err != nil {
		return err
	}

	// Step 3: database.
	database, err := cmd.pickDatabase(ctx, client)
	if err != nil {
		return err
	}

	// Step 4: schema.
	if err := cmd.ensureSchema(ctx, client, database.ID); err != nil {
		return err
	}

	// Step 5: optional properties.
	hasDescription := cmd.confirm("Add a Description property (book blurb)?")
	hasTimeSpent := cmd.confirm("Add a Time Spent property (reading minutes)?")
	if err := client.AddOptionalProperties(ctx, database.ID, hasDescription, hasTimeSpent); err != nil {
		return err
	}

	cfg := &config.Config{
		Notion: config.Notion{
			DatabaseID:     database.ID,
			WorkspaceName:  workspace.Name,
			HasDescription: hasDescription,
			HasTimeSpent:   hasTimeSpent,
		},
		Device: config.Device{MountPath: mountPath},
		Sync: config.Sync{
			DedupStrategy: config.DedupByDate,
			Notifications: true,
		},
		Schedule: config.Schedule{Enabled: false, Time: "09:00"},
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := secrets.NewStore(configDir).Put(token); err != nil {
		return err
	}

	successLine.Println("\n✅ Setup complete. Run `kobo-notion-sync sync` to sync your highlights.")
	return nil
}

func (cmd *SetupCommand) detectDevice() (string, error) {
	if cmd.DevicePath != "" {
		reader, err := kobo.NewReader(cmd.DevicePath)
		if err != nil {
			return "", err
		}
		info := reader.DeviceInfo()
		successLine.Printf("✅ Found %s at %s\n", info.Model, info.MountPath)
		return cmd.DevicePath, nil
	}

	reader, err := kobo.DetectDevice()
	if err != nil {
		warnLine.Println("⚠️  No device connected; you can still finish setup and sync later")
		return "", nil
	}
	info := reader.DeviceInfo()
	successLine.Printf("✅ Found %s at %s\n", info.Model, info.MountPath)
	return "", nil // auto-detect worked, keep auto-detecting on future runs
}

func (cmd *SetupCommand) pickDatabase(ctx context.Context, client *notion.Client) (notion.Database, error) {
	databases, err := client.ListDatabases(ctx)
	if err != nil {
		return notion.Database{}, err
	}

	if len(databases) == 0 {
		fmt.Println("No databases shared with the integration.")
		return cmd.createDatabase(ctx, client)
	}

	fmt.Println("\nDatabases shared with the integration:")
	for i, db := range databases {
		count, err := client.GetPageCount(ctx, db.ID)
		if err == nil {
			fmt.Printf("  %d. %s (%d pages)\n", i+1, db.Title, count)
		} else {
			fmt.Printf("  %d. %s\n", i+1, db.Title)
		}
	}
	fmt.Printf("  %d. Create a new database\n", len(databases)+1)

	choice := cmd.prompt(fmt.Sprintf("Pick a database [1-%d]", len(databases)+1))
	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(databases)+1 {
		return notion.Database{}, &config.ConfigurationError{Field: "database", Reason: "invalid selection"}
	}
	if idx == len(databases)+1 {
		return cmd.createDatabase(ctx, client)
	}
	return databases[idx-1], nil
}

func (cmd *SetupCommand) createDatabase(ctx context.Context, client *notion.Client) (notion.Database, error) {
	parentPageID := cmd.prompt("Parent page ID for the new database")
	name := cmd.prompt("Database name [Reading List]")
	if name == "" {
		name = "Reading List"
	}

	db, err := client.CreateDatabase(ctx, parentPageID, name)
	if err != nil {
		return notion.Database{}, err
	}
	successLine.Printf("✅ Created database %q\n", db.Title)
	return db, nil
}

func (cmd *SetupCommand) ensureSchema(ctx context.Context, client *notion.Client, databaseID string) error {
	validation, err := client.ValidateSchema(ctx, databaseID)
	if err != nil {
		return err
	}

	if !validation.Valid {
		fmt.Println("\nThe database is missing required properties:")
		for _, mp := range validation.MissingProperties {
			if mp.ActualType == "" {
				fmt.Printf("  - %s (%s)\n", mp.Name, mp.Type)
			} else {
				fmt.Printf("  - %s: is %s, needs %s\n", mp.Name, mp.ActualType, mp.Type)
			}
		}
		for name, options := range validation.InvalidSelectOptions {
			fmt.Printf("  - %s: missing options %s\n", name, strings.Join(options, ", "))
		}
		if !cmd.confirm("Add them now?") {
			return &config.ConfigurationError{Field: "database", Reason: "schema incomplete"}
		}
		if err := client.InitializeSchema(ctx, databaseID); err != nil {
			return err
		}
	}

	// Tracking fields are always required for change detection.
	if err := client.AddTrackingProperties(ctx, databaseID); err != nil {
		return err
	}
	successLine.Println("✅ Database schema ready")
	return nil
}

func (cmd *SetupCommand) prompt(label string) string {
	if cmd.scanner == nil {
		cmd.scanner = bufio.NewScanner(cmd.stdin)
	}
	fmt.Printf("%s: ", label)
	if !cmd.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(cmd.scanner.Text())
}

func (cmd *SetupCommand) confirm(label string) bool {
	answer := strings.ToLower(cmd.prompt(label + " [y/N]"))
	return answer == "y" || answer == "yes"
}
