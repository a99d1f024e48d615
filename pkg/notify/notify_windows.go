//go:build windows

package notify

import (
	"log/slog"
	"sync"

	"github.com/go-toast/toast"
)

// WindowsNotifier pushes toast notifications
type WindowsNotifier struct {
	appID   string
	logger  *slog.Logger
	pending sync.WaitGroup
}

// NewNotifier creates the platform notifier
func NewNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowsNotifier{appID: AppID, logger: logger}
}

// Show pushes in the background so the capture flow is never blocked.
// Call Wait before the process exits or the toast may never appear.
func (n *WindowsNotifier) Show(title, message string) error {
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		notification := toast.Notification{
			AppID:   n.appID,
			Title:   title,
			Message: message,
		}
		if err := notification.Push(); err != nil {
			n.logger.Warn("toast failed", "title", title, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every pushed toast has been handed to the shell
func (n *WindowsNotifier) Wait() {
	n.pending.Wait()
}
