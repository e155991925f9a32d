package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"studentauth/internal/auth"
	"studentauth/internal/models"
)

// MemoryAccountStore is an in-process auth.AccountStore. Records are
// copied on the way in and out so callers never share state with it.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[primitive.ObjectID]*models.Account
	byEmail  map[string]primitive.ObjectID
	now      func() time.Time
}

// NewMemoryAccountStore creates an empty MemoryAccountStore.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[primitive.ObjectID]*models.Account),
		byEmail:  make(map[string]primitive.ObjectID),
		now:      time.Now,
	}
}

var _ auth.AccountStore = (*MemoryAccountStore)(nil)

// Create stores a new account.
func (s *MemoryAccountStore) Create(_ context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return nil, auth.ErrDuplicateEmail
	}

	doc := account.Clone()
	now := storeTime(s.now())
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.accounts[doc.ID] = doc
	s.byEmail[doc.Email] = doc.ID
	return doc.Clone(), nil
}

// FindByEmail retrieves an account by email.
func (s *MemoryAccountStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

// FindByVerificationSecret retrieves an account by verification secret hash.
func (s *MemoryAccountStore) FindByVerificationSecret(_ context.Context, secretHash string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Verification != nil && a.Verification.SecretHash == secretHash {
			return a.Clone(), nil
		}
	}
	return nil, auth.ErrNotFound
}

// FindByIdentity retrieves an account by its hex identity.
func (s *MemoryAccountStore) FindByIdentity(_ context.Context, identity string) (*models.Account, error) {
	id, err := primitive.ObjectIDFromHex(identity)
	if err != nil {
		return nil, auth.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return a.Clone(), nil
}

// Save replaces the stored account.
func (s *MemoryAccountStore) Save(_ context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if account.Email != current.Email {
		if _, taken := s.byEmail[account.Email]; taken {
			return nil, auth.ErrDuplicateEmail
		}
		delete(s.byEmail, current.Email)
		s.byEmail[account.Email] = account.ID
	}

	doc := account.Clone()
	doc.UpdatedAt = storeTime(s.now())
	s.accounts[doc.ID] = doc
	return doc.Clone(), nil
}

// DeleteByIdentity removes an account and returns it.
func (s *MemoryAccountStore) DeleteByIdentity(_ context.Context, identity string) (*models.Account, error) {
	id, err := primitive.ObjectIDFromHex(identity)
	if err != nil {
		return nil, auth.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.byEmail, a.Email)
	return a, nil
}

// List returns every account ordered by creation.
func (s *MemoryAccountStore) List(_ context.Context) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	// ObjectIDs lead with their creation second, so hex order is creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}
