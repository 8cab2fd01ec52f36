package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wichananm65/storefront-backend/internal/address"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) GetByID(ctx context.Context, id int) (User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Register(ctx context.Context, user User) (User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := s.repo.GetByEmail(ctx, user.Email); err == nil {
		return User{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC().Format(time.RFC3339)
	user.Password = string(hashed)
	user.CreatedAt = now
	user.UpdatedAt = now
	return s.repo.Create(ctx, user)
}

// Authenticate accepts either an email address or a phone number as the
// login identifier.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (User, error) {
	identifier = strings.TrimSpace(identifier)
	var (
		user User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.repo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.repo.GetByPhone(ctx, identifier)
	}
	if err != nil {
		return User{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

// ProfileUpdate carries the fields a user may change; nil means keep.
type ProfileUpdate struct {
	FirstName       *string          `json:"firstName,omitempty"`
	LastName        *string          `json:"lastName,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	ProfilePic      *string          `json:"profilePic,omitempty"`
	ShippingAddress *address.Address `json:"shippingAddress,omitempty"`
	BillingAddress  *address.Address `json:"billingAddress,omitempty"`
}

func (s *Service) UpdateProfile(ctx context.Context, id int, update ProfileUpdate) (User, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if update.FirstName != nil {
		existing.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		existing.LastName = *update.LastName
	}
	if update.Phone != nil {
		existing.Phone = *update.Phone
	}
	if update.ProfilePic != nil {
		existing.ProfilePic = *update.ProfilePic
	}
	if update.ShippingAddress != nil {
		existing.ShippingAddress = update.ShippingAddress
	}
	if update.BillingAddress != nil {
		existing.BillingAddress = update.BillingAddress
	}
	existing.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	return s.repo.Update(ctx, id, existing)
}

// UpsertHistoryEntry is the single write path for the order history
// projection. Entries are keyed by orderId.
func (s *Service) UpsertHistoryEntry(ctx context.Context, userID int, entry HistoryEntry) error {
	if entry.OrderID == "" {
		return ErrInvalidHistory
	}
	return s.repo.UpsertHistoryEntry(ctx, userID, entry)
}

func (s *Service) OrderHistory(ctx context.Context, userID int) ([]HistoryEntry, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(user.OrderHistory), nil
}
