package checklist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"dealflow/outbox"
)

// ToggleRequest identifies the item and the acting user. ActorRole is carried
// for audit only.
type ToggleRequest struct {
	ListingID  string
	CategoryID string
	ItemID     string
	ActorID    string
	ActorName  string
	ActorRole  string
}

// seedTimeout bounds a shared seed once it no longer follows any one
// caller's context.
const seedTimeout = 10 * time.Second

type Service struct {
	store  Store
	seeds  singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithClock overrides the time source used for seeding and attribution.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Get returns the listing's checklist, seeding it from the default template
// on first access. Concurrent first reads share one seed; a caller that
// gives up does not cancel it for the others.
func (s *Service) Get(ctx context.Context, listingID string) (Checklist, error) {
	if listingID == "" {
		return Checklist{}, ErrInvalidRequest
	}
	ch := s.seeds.DoChan(listingID, func() (any, error) {
		seedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), seedTimeout)
		defer cancel()
		return s.store.GetOrCreate(seedCtx, Seed(listingID, s.now()))
	})
	select {
	case <-ctx.Done():
		return Checklist{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Checklist{}, res.Err
		}
		return res.Val.(Checklist).Clone(), nil
	}
}

// Toggle flips one item under the store's row lock. Any authenticated role
// may toggle any item. An unknown (category, item) changes nothing and
// returns the checklist as stored.
func (s *Service) Toggle(ctx context.Context, req ToggleRequest) (Checklist, error) {
	if req.ListingID == "" || req.CategoryID == "" || req.ItemID == "" {
		return Checklist{}, ErrInvalidRequest
	}
	if req.ActorID == "" {
		return Checklist{}, ErrMissingActor
	}

	now := s.now()
	updated, err := s.store.Update(ctx, Seed(req.ListingID, now), func(c *Checklist) (outbox.Event, error) {
		next, ok := Toggle(*c, req.CategoryID, req.ItemID, req.ActorID, req.ActorName, now)
		if !ok {
			return outbox.Event{}, ErrItemNotFound
		}
		*c = next
		item, _ := next.Find(req.CategoryID, req.ItemID)
		return outbox.Event{
			Topic: outbox.TopicChecklistToggle,
			Payload: map[string]any{
				"listing_id":  req.ListingID,
				"category_id": req.CategoryID,
				"item_id":     req.ItemID,
				"completed":   item.Completed,
				"actor_id":    req.ActorID,
				"actor_role":  req.ActorRole,
			},
		}, nil
	})
	if errors.Is(err, ErrItemNotFound) {
		s.logger.DebugContext(ctx, "checklist toggle on unknown item",
			slog.String("listing_id", req.ListingID),
			slog.String("category_id", req.CategoryID),
			slog.String("item_id", req.ItemID),
		)
		return s.Get(ctx, req.ListingID)
	}
	if err != nil {
		return Checklist{}, err
	}

	item, _ := updated.Find(req.CategoryID, req.ItemID)
	s.logger.InfoContext(ctx, "checklist item toggled",
		slog.String("listing_id", req.ListingID),
		slog.String("category_id", req.CategoryID),
		slog.String("item_id", req.ItemID),
		slog.Bool("completed", item.Completed),
		slog.String("actor_id", req.ActorID),
		slog.String("actor_role", req.ActorRole),
	)
	return updated, nil
}
