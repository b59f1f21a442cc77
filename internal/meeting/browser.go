package meeting

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Joiner takes the local machine into a meeting and back out of it
type Joiner interface {
	Join(ctx context.Context, meetingURL string) error
	Leave(ctx context.Context) error
}

// Opener opens a meeting URL for the user to join by hand.
// It has nothing to leave.
type Opener func(ctx context.Context, meetingURL string) error

// Join calls o
func (o Opener) Join(ctx context.Context, meetingURL string) error {
	return o(ctx, meetingURL)
}

// Leave is a no-op
func (Opener) Leave(context.Context) error { return nil }

// OpenBrowser opens meetingURL in the system default browser.
// ctx only gates the launch; the launched process outlives it.
func OpenBrowser(ctx context.Context, meetingURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, args, err := browserCommand(runtime.GOOS, meetingURL)
	if err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()

	return nil
}

func browserCommand(goos, meetingURL string) (string, []string, error) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", meetingURL}, nil
	case "darwin":
		return "open", []string{meetingURL}, nil
	case "linux":
		return "xdg-open", []string{meetingURL}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
