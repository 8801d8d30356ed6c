package notify

import (
	"context"
	"errors"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/logger"
)

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.log.Info(note.Title,
		logger.String("type", note.Type),
		logger.String("message", note.Message),
		logger.String("mood", note.Mood.String()),
		logger.Int("priority", note.Priority))
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*Hub)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
