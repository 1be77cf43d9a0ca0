// Package auth implements the authentication authority: credential
// verification, one-time authorization codes, registration lifecycle and
// permission resolution.
package auth

import "time"

// Scope names granted to authenticated subjects.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// LevelScopes maps a staff level to its default scopes. Levels outside the
// map are a deployment defect, never clamped to a neighbor.
var LevelScopes = map[int][]string{
	1: {ScopeRead},
	2: {ScopeRead, ScopeWrite},
	3: {ScopeRead, ScopeWrite, ScopeAdmin},
}

// Credential is a registered subject's stored secret. Only the bcrypt hash
// is ever persisted.
type Credential struct {
	Subject      string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthorizationCode is a single-use code handed to the browser after login,
// redeemable once by the application it was issued for.
type AuthorizationCode struct {
	Code      string
	Subject   string
	AppID     string
	ExpiresAt time.Time
}

// RegistrationTokenKind distinguishes the two tokens in the registration flow.
type RegistrationTokenKind string

const (
	// TokenKindSelf is issued after identity verification and lets the
	// subject finish the identity step.
	TokenKindSelf RegistrationTokenKind = "self"
	// TokenKindOperator is issued by an operator and authorizes setting
	// the initial password.
	TokenKindOperator RegistrationTokenKind = "operator"
)

// RegistrationToken gates one step of the registration or recovery flow.
type RegistrationToken struct {
	Token     string
	Subject   string
	Kind      RegistrationTokenKind
	ExpiresAt time.Time
}

// Grant is an explicit per-subject, per-app scope assignment. When present
// it overrides every level- and department-derived rule.
type Grant struct {
	Subject   string
	AppID     string
	Scopes    []string
	UpdatedAt time.Time
}
