package address

import (
	"context"
	"sync"
)

type Repository interface {
	List(ctx context.Context, userID int) ([]Entry, error)
	Add(ctx context.Context, entry Entry) (Entry, error)
	Update(ctx context.Context, entry Entry) (Entry, error)
	Delete(ctx context.Context, userID, addressID int) error
}

// InMemoryRepository for tests
type InMemoryRepository struct {
	mu     sync.RWMutex
	data   map[int][]Entry // keyed by userID
	nextID int
}

func NewInMemoryRepository(seed map[int][]Entry) *InMemoryRepository {
	r := &InMemoryRepository{data: make(map[int][]Entry, len(seed)), nextID: 1}
	for userID, entries := range seed {
		r.data[userID] = append([]Entry(nil), entries...)
		for _, e := range entries {
			if e.AddressID >= r.nextID {
				r.nextID = e.AddressID + 1
			}
		}
	}
	return r
}

func (r *InMemoryRepository) List(_ context.Context, userID int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry{}, r.data[userID]...), nil
}

func (r *InMemoryRepository) Add(_ context.Context, entry Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.AddressID = r.nextID
	r.nextID++
	r.data[entry.UserID] = append(r.data[entry.UserID], entry)
	return entry, nil
}

func (r *InMemoryRepository) Update(_ context.Context, entry Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.data[entry.UserID] {
		if e.AddressID == entry.AddressID {
			entry.CreatedAt = e.CreatedAt
			r.data[entry.UserID][i] = entry
			return entry, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (r *InMemoryRepository) Delete(_ context.Context, userID, addressID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.data[userID]
	for i, e := range entries {
		if e.AddressID == addressID {
			r.data[userID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
