package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/logging"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/utils"
)

type contextKey int

const (
	accountIDKey contextKey = iota
	credentialKey
)

// Authenticator resolves the bearer credential of a request to its account.
type Authenticator struct {
	resolver identity.Resolver
	logger   zerolog.Logger
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(resolver identity.Resolver, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		resolver: resolver,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// RequireAccount rejects requests without a known bearer credential and
// stores the account id and credential in the request context. Missing
// credentials get 401, unknown ones 403.
func (a *Authenticator) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnauthorized, "Missing bearer token.", nil, http.StatusUnauthorized))
			return
		}

		accountID, err := a.resolver.Resolve(r.Context(), credential)
		if errors.Is(err, identity.ErrAccountNotFound) {
			a.logger.Warn().Str("tag", "security").Str("credential", logging.MaskCredential(credential)).Str("path", r.URL.Path).Msg("Rejected unknown credential")
			utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidToken, "Invalid access token.", nil, http.StatusForbidden))
			return
		}
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to resolve bearer credential")
			utils.RespondWithError(w, models.InternalError())
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		ctx = context.WithValue(ctx, credentialKey, credential)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AccountID returns the account id stored by RequireAccount.
func AccountID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(accountIDKey).(uint)
	return id, ok
}

// Credential returns the bearer credential stored by RequireAccount.
func Credential(ctx context.Context) string {
	c, _ := ctx.Value(credentialKey).(string)
	return c
}
