// Package progress serves a buyer's or seller's position in the sale. Every
// read re-derives completion from documents and signals; the stored record
// only carries the listing selection and explicitly recorded steps.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"dealflow/document"
	"dealflow/listing"
	"dealflow/outbox"
	"dealflow/steps"
)

// DocumentStore is the document access the service needs.
type DocumentStore interface {
	List(ctx context.Context, filter document.Filter) ([]document.Document, error)
	RecordUpload(ctx context.Context, params document.UploadParams) (document.Document, error)
	RecordDownload(ctx context.Context, params document.DownloadParams) (document.Document, error)
}

// ListingReader resolves listings for selection.
type ListingReader interface {
	GetByID(ctx context.Context, id string) (listing.Listing, error)
}

type Service struct {
	store    Store
	docs     DocumentStore
	listings ListingReader
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(store Store, docs DocumentStore, listings ListingReader) *Service {
	return &Service{
		store:    store,
		docs:     docs,
		listings: listings,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithClock overrides the time source stamped on outbox payloads.
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

func validate(role steps.Role, ownerID string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if ownerID == "" {
		return ErrMissingOwner
	}
	return nil
}

// Get returns the derived progress for the owner, creating an empty record
// on first access.
func (s *Service) Get(ctx context.Context, role steps.Role, ownerID string) (View, error) {
	if err := validate(role, ownerID); err != nil {
		return View{}, err
	}
	rec, err := s.store.GetOrCreate(ctx, role, ownerID)
	if err != nil {
		return View{}, err
	}
	evalCtx, err := s.loadContext(ctx, rec)
	if err != nil {
		return View{}, err
	}
	return buildView(rec, evalCtx)
}

// SelectListing records the listing the owner is transacting on. Sellers may
// only select listings they own.
func (s *Service) SelectListing(ctx context.Context, role steps.Role, ownerID, listingID string) (View, error) {
	if err := validate(role, ownerID); err != nil {
		return View{}, err
	}
	if listingID == "" {
		return View{}, fmt.Errorf("progress: %w", listing.ErrNotFound)
	}
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return View{}, err
	}
	if role == steps.RoleSeller && !l.OwnedBy(ownerID) {
		return View{}, ErrListingNotOwned
	}

	rec, err := s.store.Update(ctx, role, ownerID, func(r *Record) (outbox.Event, error) {
		id := l.ID
		r.SelectedListingID = &id
		r.markCompleted(0)
		return outbox.Event{
			Topic: outbox.TopicListingSelected,
			Payload: map[string]any{
				"role":        string(role),
				"owner_id":    ownerID,
				"listing_id":  l.ID,
				"seller_id":   l.SellerID,
				"selected_at": s.now().UTC(),
			},
		}, nil
	})
	if err != nil {
		return View{}, err
	}

	s.logger.InfoContext(ctx, "listing selected",
		slog.String("role", string(role)),
		slog.String("owner_id", ownerID),
		slog.String("listing_id", l.ID),
	)

	evalCtx, err := s.loadContext(ctx, rec)
	if err != nil {
		return View{}, err
	}
	return buildView(rec, evalCtx)
}

// CompleteStep records stepID as done. The step must be accessible in the
// derivation taken under the record lock.
func (s *Service) CompleteStep(ctx context.Context, role steps.Role, ownerID string, stepID int) (View, error) {
	if err := validate(role, ownerID); err != nil {
		return View{}, err
	}
	def, ok := steps.Lookup(role, stepID)
	if !ok {
		return View{}, ErrInvalidStep
	}

	current, err := s.store.GetOrCreate(ctx, role, ownerID)
	if err != nil {
		return View{}, err
	}
	evalCtx, err := s.loadContext(ctx, current)
	if err != nil {
		return View{}, err
	}

	rec, err := s.store.Update(ctx, role, ownerID, func(r *Record) (outbox.Event, error) {
		locked := evalCtx
		locked.RecordedSteps = r.CompletedSteps
		snap, err := steps.Progress(role, locked)
		if err != nil {
			return outbox.Event{}, err
		}
		if !snap.Steps[stepID].Accessible {
			return outbox.Event{}, ErrStepLocked
		}
		r.markCompleted(stepID)
		return outbox.Event{
			Topic: outbox.TopicStepCompleted,
			Payload: map[string]any{
				"role":         string(role),
				"owner_id":     ownerID,
				"step_id":      stepID,
				"step_title":   def.Title,
				"listing_id":   r.listingID(),
				"completed_at": s.now().UTC(),
			},
		}, nil
	})
	if err != nil {
		return View{}, err
	}

	s.logger.InfoContext(ctx, "step completed",
		slog.String("role", string(role)),
		slog.String("owner_id", ownerID),
		slog.Int("step_id", stepID),
	)

	evalCtx.RecordedSteps = rec.CompletedSteps
	return buildView(rec, evalCtx)
}

// RecordUpload files a completed upload against an accessible step that
// accepts uploads.
func (s *Service) RecordUpload(ctx context.Context, role steps.Role, ownerID string, req UploadRequest) (document.Document, error) {
	def, rec, err := s.gate(ctx, role, ownerID, req.StepID)
	if err != nil {
		return document.Document{}, err
	}
	if !def.AllowsUpload() {
		return document.Document{}, ErrOperationNotAllowed
	}

	params := document.UploadParams{
		Type:      def.Requirement.Type,
		Category:  steps.UploadCategory(role),
		StepID:    req.StepID,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		ListingID: rec.listingID(),
		Topic:     outbox.TopicDocumentUpload,
	}
	setOwner(role, ownerID, &params.BuyerID, &params.SellerID)

	doc, err := s.docs.RecordUpload(ctx, params)
	if err != nil {
		return document.Document{}, err
	}
	s.logger.InfoContext(ctx, "document uploaded",
		slog.String("role", string(role)),
		slog.String("owner_id", ownerID),
		slog.Int("step_id", req.StepID),
		slog.String("type", string(def.Requirement.Type)),
	)
	return doc, nil
}

// RecordDownload acknowledges that the owner fetched the step's document.
// Repeating it refreshes the timestamp on the existing row.
func (s *Service) RecordDownload(ctx context.Context, role steps.Role, ownerID string, stepID int) (document.Document, error) {
	def, rec, err := s.gate(ctx, role, ownerID, stepID)
	if err != nil {
		return document.Document{}, err
	}
	if !def.AllowsDownload() {
		return document.Document{}, ErrOperationNotAllowed
	}

	params := document.DownloadParams{
		Type:      def.Requirement.Type,
		StepID:    stepID,
		ListingID: rec.listingID(),
	}
	setOwner(role, ownerID, &params.BuyerID, &params.SellerID)

	doc, err := s.docs.RecordDownload(ctx, params)
	if err != nil {
		return document.Document{}, err
	}
	s.logger.DebugContext(ctx, "document downloaded",
		slog.String("role", string(role)),
		slog.String("owner_id", ownerID),
		slog.Int("step_id", stepID),
	)
	return doc, nil
}

// gate resolves the step and checks it is reachable for the owner.
func (s *Service) gate(ctx context.Context, role steps.Role, ownerID string, stepID int) (steps.Definition, Record, error) {
	if err := validate(role, ownerID); err != nil {
		return steps.Definition{}, Record{}, err
	}
	def, ok := steps.Lookup(role, stepID)
	if !ok {
		return steps.Definition{}, Record{}, ErrInvalidStep
	}
	rec, err := s.store.GetOrCreate(ctx, role, ownerID)
	if err != nil {
		return steps.Definition{}, Record{}, err
	}
	evalCtx, err := s.loadContext(ctx, rec)
	if err != nil {
		return steps.Definition{}, Record{}, err
	}
	snap, err := steps.Progress(role, evalCtx)
	if err != nil {
		return steps.Definition{}, Record{}, err
	}
	if !snap.Steps[stepID].Accessible {
		return steps.Definition{}, Record{}, ErrStepLocked
	}
	return def, rec, nil
}

// loadContext gathers documents and signals for one evaluation pass.
func (s *Service) loadContext(ctx context.Context, rec Record) (steps.Context, error) {
	evalCtx := steps.Context{
		SelectedListingID: rec.listingID(),
		RecordedSteps:     slices.Clone(rec.CompletedSteps),
	}

	filter := document.Filter{ListingID: rec.listingID()}
	setOwner(rec.Role, rec.OwnerID, &filter.BuyerID, &filter.SellerID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.docs.List(gctx, filter)
		if err != nil {
			return err
		}
		evalCtx.Documents = docs
		return nil
	})
	g.Go(func() error {
		sent, err := s.store.HasSentMessage(gctx, rec.OwnerID, rec.listingID())
		if err != nil {
			return err
		}
		evalCtx.MessageSent = sent
		return nil
	})
	if rec.Role == steps.RoleSeller && rec.HasSelectedListing() {
		g.Go(func() error {
			n, err := s.store.CountBuyers(gctx, rec.listingID())
			if err != nil {
				return err
			}
			evalCtx.BuyerActivity = n > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return steps.Context{}, err
	}
	return evalCtx, nil
}

func buildView(rec Record, evalCtx steps.Context) (View, error) {
	snap, err := steps.Progress(rec.Role, evalCtx)
	if err != nil {
		return View{}, err
	}
	view := View{
		Role:              rec.Role,
		OwnerID:           rec.OwnerID,
		SelectedListingID: rec.SelectedListingID,
		CurrentStep:       snap.CurrentStep,
		CompletedSteps:    snap.CompletedSteps,
		Steps:             make([]StepView, len(snap.Steps)),
	}
	for i, st := range snap.Steps {
		docs := []document.Document{}
		for _, d := range evalCtx.Documents {
			if d.ForStep(st.ID) {
				docs = append(docs, d)
			}
		}
		view.Steps[i] = StepView{State: st, Documents: docs}
	}
	return view, nil
}

func setOwner(role steps.Role, ownerID string, buyerID, sellerID *string) {
	if role == steps.RoleSeller {
		*sellerID = ownerID
		return
	}
	*buyerID = ownerID
}
