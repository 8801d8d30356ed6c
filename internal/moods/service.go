package moods

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/emoradar/emoradar/internal/clock"
	"github.com/emoradar/emoradar/internal/domain"
	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/index"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/policy"
	"github.com/emoradar/emoradar/internal/session"
)

// Forwarder hands a selected mood to the block session controller.
type Forwarder interface {
	UpdateMood(ctx context.Context, m domain.Mood) (session.Response, error)
}

// Service records mood selections. The recent list is updated before the store
// so a failing backend never hides a selection from the UI.
type Service struct {
	store     Store
	history   *index.History
	forwarder Forwarder
	resolver  policy.Resolver
	clock     clock.Clock
	validate  *validator.Validate
	log       logger.Logger
	onSubmit  func(domain.MoodEntry)
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithForwarder forwards every submitted mood to f.
func WithForwarder(f Forwarder) ServiceOption { return func(s *Service) { s.forwarder = f } }

// WithClock overrides the clock used to stamp entries.
func WithClock(c clock.Clock) ServiceOption { return func(s *Service) { s.clock = c } }

// WithOnSubmit observes each accepted entry.
func WithOnSubmit(fn func(domain.MoodEntry)) ServiceOption { return func(s *Service) { s.onSubmit = fn } }

func NewService(store Store, history *index.History, resolver policy.Resolver, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		history:  history,
		resolver: resolver,
		clock:    clock.Real{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.Named("moods"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates e, fills a missing id and timestamp, records it and forwards
// the mood. Store and controller failures are logged; the entry is still returned.
func (s *Service) Submit(ctx context.Context, e domain.MoodEntry) (domain.MoodEntry, error) {
	e.Mood = domain.ParseMood(e.Mood.String())
	if err := s.validate.Struct(e); err != nil {
		return domain.MoodEntry{}, apperr.Validationf("mood must be one of angry, sad, anxious, focused, happy; got %q", e.Mood).
			WithDetails(fieldErrors(err))
	}
	if e.ID == "" {
		e.ID = domain.EntryID(uuid.NewString())
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now().UTC()
	}

	s.history.Add(e)

	if err := s.store.Save(ctx, e); err != nil {
		s.log.Warn("failed to persist mood entry",
			logger.String("id", string(e.ID)),
			logger.String("mood", e.Mood.String()),
			logger.Error(err))
	}

	if s.forwarder != nil {
		resp, err := s.forwarder.UpdateMood(ctx, e.Mood)
		switch {
		case err != nil:
			s.log.Warn("failed to forward mood to session controller", logger.Error(err))
		case !resp.Success:
			s.log.Warn("session controller rejected mood", logger.String("error", resp.Error))
		}
	}

	if s.onSubmit != nil {
		s.onSubmit(e)
	}
	s.log.Debug("mood submitted", logger.String("id", string(e.ID)), logger.String("mood", e.Mood.String()))
	return e, nil
}

// List returns all stored entries. If the store fails it falls back to the recent list.
func (s *Service) List(ctx context.Context) ([]domain.MoodEntry, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		s.log.Warn("store unavailable, serving recent history", logger.Error(err))
		return s.history.Recent(), nil
	}
	return entries, nil
}

// Recent returns the bounded recent list.
func (s *Service) Recent() []domain.MoodEntry { return s.history.Recent() }

// Stats summarises the full history.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(entries, s.resolver), nil
}

// Sync reloads the recent list from the store.
func (s *Service) Sync(ctx context.Context) (int, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load mood history: %w", err)
	}
	s.history.Replace(entries)
	return len(entries), nil
}

// Prune deletes stored entries older than before.
func (s *Service) Prune(ctx context.Context, before time.Time) (int, error) {
	n, err := s.store.Prune(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune mood history: %w", err)
	}
	return n, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !apperr.As(err, &verrs) {
		return map[string]string{"error": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}
