// Package notify sends best-effort desktop notifications. Failures are
// logged and never affect the sync outcome.
package notify

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
)

// Notifier shows desktop notifications on the current platform.
type Notifier struct {
	run func(name string, args ...string) error
}

// New creates a platform notifier.
func New() *Notifier {
	return &Notifier{
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send shows a notification with the given title and message.
func (n *Notifier) Send(title, message string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		err = n.run("osascript", "-e", script)
	case "linux":
		err = n.run("notify-send", title, message)
	default:
		return
	}
	if err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}
