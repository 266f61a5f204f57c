package notify

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSend_UsesPlatformCommand(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("no notification command on this platform")
	}

	var gotName string
	var gotArgs []string
	n := &Notifier{run: func(name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}}

	n.Send("Sync complete", "Synced 12 highlights")

	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, "osascript", gotName)
		assert.Contains(t, gotArgs[1], "Synced 12 highlights")
	case "linux":
		assert.Equal(t, "notify-send", gotName)
		assert.Equal(t, []string{"Sync complete", "Synced 12 highlights"}, gotArgs)
	}
}

func TestSend_CommandFailureIsSwallowed(t *testing.T) {
	n := &Notifier{run: func(string, ...string) error { return errors.New("no display") }}
	assert.NotPanics(t, func() { n.Send("title", "message") })
}
