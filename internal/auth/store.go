package auth

import (
	"context"

	"studentauth/internal/models"
)

// AccountStore manages account persistence. Lookups are exact-match and
// return ErrNotFound when nothing matches.
type AccountStore interface {
	// Create stores a new account, assigning its ID and timestamps.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// FindByEmail retrieves an account by its normalised email.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// FindByVerificationSecret retrieves an account by the hash of its verification secret.
	FindByVerificationSecret(ctx context.Context, secretHash string) (*models.Account, error)

	// FindByIdentity retrieves an account by its hex identity.
	FindByIdentity(ctx context.Context, identity string) (*models.Account, error)

	// Save replaces the stored document with account. Last writer wins.
	Save(ctx context.Context, account *models.Account) (*models.Account, error)

	// DeleteByIdentity removes an account and returns the removed record.
	DeleteByIdentity(ctx context.Context, identity string) (*models.Account, error)

	// List returns every account.
	List(ctx context.Context) ([]*models.Account, error)
}
