package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// runner executes a command; tests replace it
type runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NotificationManager sends desktop notifications through the platform's
// notification tool (osascript on macOS, notify-send on Linux)
type NotificationManager struct {
	appName string
	enabled bool
	goos    string
	run     runner
}

// NewNotificationManager creates a new notification manager.
// A disabled manager accepts every call and sends nothing.
func NewNotificationManager(appName string, enabled bool) *NotificationManager {
	return &NotificationManager{
		appName: appName,
		enabled: enabled,
		goos:    runtime.GOOS,
		run:     execRunner,
	}
}

// escapeAppleScript escapes a string for use inside an AppleScript string literal
func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func (nm *NotificationManager) command(n *Notification) (string, []string, error) {
	switch nm.goos {
	case "darwin":
		script := fmt.Sprintf(
			`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message),
			escapeAppleScript(n.Title),
		)
		return "osascript", []string{"-e", script}, nil
	case "linux":
		urgency := "normal"
		if n.Type == TypeError {
			urgency = "critical"
		}
		return "notify-send", []string{"-a", nm.appName, "-u", urgency, n.Title, n.Message}, nil
	default:
		return "", nil, fmt.Errorf("notifications not supported on %s", nm.goos)
	}
}

// Send sends a notification to the user
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	if !nm.enabled {
		return nil
	}

	name, args, err := nm.command(notification)
	if err != nil {
		return err
	}

	if err := nm.run(name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeInfo})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeError})
}

// SendSuccess sends a success notification
func (nm *NotificationManager) SendSuccess(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeSuccess})
}

// RecordingStarted sends a notification that recording has started
func (nm *NotificationManager) RecordingStarted(session string) error {
	return nm.SendInfo(nm.appName, "Recording started: "+session)
}

// TranscriptReady sends a notification that the transcript files are written
func (nm *NotificationManager) TranscriptReady(session string) error {
	return nm.SendSuccess(nm.appName, "Transcript ready: "+session)
}

// RecordingFailed sends a notification that recording failed
func (nm *NotificationManager) RecordingFailed(reason string) error {
	message := "Recording failed"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// TranscriptionFailed sends a notification that transcription failed
func (nm *NotificationManager) TranscriptionFailed(reason string) error {
	message := "Transcription failed"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}
