// Package identity maps device credentials to the accounts that own them.
package identity

import (
	"context"
	"errors"
	"fmt"

	"CapIot.telemetry/internal/repository"
)

// ErrAccountNotFound is returned when no account owns the credential.
var ErrAccountNotFound = errors.New("no account for credential")

// Resolver turns a credential into an account id.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (uint, error)
}

// DBResolver resolves credentials with a point lookup on the accounts table.
type DBResolver struct {
	accounts repository.AccountRepository
}

// NewDBResolver creates a new DBResolver.
func NewDBResolver(accounts repository.AccountRepository) *DBResolver {
	return &DBResolver{accounts: accounts}
}

func (r *DBResolver) Resolve(ctx context.Context, credential string) (uint, error) {
	if credential == "" {
		return 0, ErrAccountNotFound
	}
	id, err := r.accounts.FindIDByCredential(ctx, credential)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve credential: %w", err)
	}
	return id, nil
}
