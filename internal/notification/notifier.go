package notification

import (
	"context"
	"errors"
	"log/slog"

	"botrader/internal/model"
)

// Notifier is the interface for all outbound notification backends.
type Notifier interface {
	// Send delivers a notification. Returns error if delivery fails.
	Send(ctx context.Context, n model.Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, msg model.Notification) error {
	n.log.InfoContext(ctx, msg.Title,
		"id", msg.ID,
		"variant", msg.Variant,
		"description", msg.Description,
		"spotlight", msg.Spotlight,
	)
	return nil
}

// MultiNotifier fans a notification out to every backend. All backends are
// attempted; their errors are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
