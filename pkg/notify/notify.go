package notify

import (
	"context"
	"fmt"
)

// AppID identifies the application in system notifications
const AppID = "Circle Snip"

// Notifier shows user-visible notifications
type Notifier interface {
	Show(title, message string) error
}

// CaptureFailed is the message shown when a capture attempt fails
func CaptureFailed(err error) string {
	return fmt.Sprintf("Capture failed: %v", err)
}

// Nop discards notifications
type Nop struct{}

func (Nop) Show(title, message string) error { return nil }

// Wait blocks until n has delivered everything it was shown, or ctx is done.
// Notifiers that deliver synchronously return immediately.
func Wait(ctx context.Context, n Notifier) {
	w, ok := n.(interface{ Wait() })
	if !ok {
		return
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
