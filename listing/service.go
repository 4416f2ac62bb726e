package listing

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	GetByID(ctx context.Context, id string) (Listing, error)
	List(ctx context.Context, limit int) ([]Listing, error)
}

// Service exposes listing lookups to the transaction flow.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the listing for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit listings.
func (s *Service) List(ctx context.Context, limit int) ([]Listing, error) {
	return s.repo.List(ctx, limit)
}
