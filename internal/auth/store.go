package auth

import (
	"context"
	"time"
)

// CredentialStore persists registered subjects' password hashes.
type CredentialStore interface {
	Find(ctx context.Context, subject string) (Credential, error)
	// Create fails with ErrAlreadyExists if the subject is registered.
	Create(ctx context.Context, cred Credential) error
	// UpdateHash replaces the stored hash; ErrNotFound if unregistered.
	UpdateHash(ctx context.Context, subject, hash string) error
	Delete(ctx context.Context, subject string) error
}

// CodeStore persists one-time authorization codes.
type CodeStore interface {
	Put(ctx context.Context, code AuthorizationCode) error
	// Consume atomically removes and returns the code. Concurrent calls
	// for the same value succeed at most once; the rest get ErrNotFound.
	// Expired codes are also ErrNotFound.
	Consume(ctx context.Context, code string) (AuthorizationCode, error)
	// DeleteExpired removes codes past their deadline, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RegistrationTokenStore persists registration and recovery tokens.
type RegistrationTokenStore interface {
	Put(ctx context.Context, tok RegistrationToken) error
	// Find returns the token without consuming it, so callers can run
	// checks that must not burn the token on failure.
	Find(ctx context.Context, token string) (RegistrationToken, error)
	// Consume atomically removes and returns the token; single-use under
	// the same contract as CodeStore.Consume.
	Consume(ctx context.Context, token string) (RegistrationToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GrantStore persists explicit permission grants.
type GrantStore interface {
	Find(ctx context.Context, subject, appID string) (Grant, error)
	Upsert(ctx context.Context, g Grant) error
	Delete(ctx context.Context, subject, appID string) error
	ListBySubject(ctx context.Context, subject string) ([]Grant, error)
}

// Store bundles the four persistence concerns behind one handle so the
// service can swap the whole backend at once.
type Store interface {
	Credentials() CredentialStore
	Codes() CodeStore
	RegistrationTokens() RegistrationTokenStore
	Grants() GrantStore
}
