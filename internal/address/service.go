package address

import (
	"context"
	"fmt"
	"time"

	"github.com/wichananm65/storefront-backend/internal/httpx"
)

// Service orchestrates the address book.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, userID int) ([]Entry, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Add(ctx context.Context, userID int, name string, addr Address) (Entry, error) {
	if err := httpx.Validate(addr); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	now := s.now().UTC().Format(time.RFC3339)
	return s.repo.Add(ctx, Entry{UserID: userID, Name: name, Address: addr, CreatedAt: now, UpdatedAt: now})
}

func (s *Service) Update(ctx context.Context, userID, addressID int, name string, addr Address) (Entry, error) {
	if addressID <= 0 {
		return Entry{}, ErrNotFound
	}
	if err := httpx.Validate(addr); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.repo.Update(ctx, Entry{
		AddressID: addressID,
		UserID:    userID,
		Name:      name,
		Address:   addr,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) Delete(ctx context.Context, userID, addressID int) error {
	if addressID <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, userID, addressID)
}
