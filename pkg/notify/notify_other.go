//go:build !windows

package notify

import "log/slog"

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *slog.Logger
}

// NewNotifier creates the platform notifier
func NewNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Show(title, message string) error {
	n.logger.Info(message, "notification", title)
	return nil
}
