package main

import (
	"fmt"
	"os"

	"github.com/mrlokans/kobo-notion-sync/internal/cli"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(cli.ExitConfig)
	}

	args := os.Args[2:]
	var cmd command

	switch os.Args[1] {
	case "sync":
		cmd = cli.NewSyncCommand()
	case "setup":
		cmd = cli.NewSetupCommand()
	case "schedule":
		cmd = cli.NewScheduleCommand()
	case "version":
		fmt.Printf("kobo-notion-sync %s (%s)\n", Version, Commit)
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(cli.ExitConfig)
	}

	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitConfig)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Sync Kobo e-reader highlights to a Notion database.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  setup       Interactive first-time configuration")
	fmt.Fprintln(os.Stderr, "  sync        Sync highlights from a connected device")
	fmt.Fprintln(os.Stderr, "  schedule    Run the daily sync daemon")
	fmt.Fprintln(os.Stderr, "  version     Print version information")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Run '%s <command> -h' for command options.\n", os.Args[0])
}
