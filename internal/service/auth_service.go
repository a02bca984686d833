package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"CapIot.telemetry/internal/repository"
)

var (
	// ErrEmailNotRegistered is returned by SignIn for an unknown email.
	ErrEmailNotRegistered = errors.New("email is not registered")
	// ErrWrongPassword is returned by SignIn when the password does not match.
	ErrWrongPassword = errors.New("password is incorrect")
)

// AuthService checks dashboard sign-ins.
type AuthService struct {
	accounts repository.AccountRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(accounts repository.AccountRepository) *AuthService {
	return &AuthService{accounts: accounts}
}

// SignIn verifies the password against the stored bcrypt hash and returns
// the account's device credential, which the dashboard uses as its bearer
// token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrEmailNotRegistered
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", ErrWrongPassword
	}
	return account.Credential, nil
}
