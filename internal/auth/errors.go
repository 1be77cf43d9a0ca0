package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrAlreadyExists means a record with the same key is present.
	ErrAlreadyExists = errors.New("auth: already exists")
	// ErrInvalidCredentials is the single answer for a wrong identifier or
	// a wrong password. Callers must never distinguish the two.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidClient means the application id or client secret is wrong.
	ErrInvalidClient = errors.New("auth: invalid client")
	// ErrInvalidGrant covers every authorization-code defect: unknown,
	// expired, already used, or issued to a different application.
	ErrInvalidGrant = errors.New("auth: invalid grant")
	// ErrStaffNotFound means the subject vanished from the directory
	// between code issuance and redemption.
	ErrStaffNotFound = errors.New("auth: staff record not found")
	// ErrRedirectMismatch means the presented redirect URI is not the
	// registered one. Checked before anything else.
	ErrRedirectMismatch = errors.New("auth: redirect uri mismatch")
	// ErrRateLimited means the origin exhausted its attempt budget.
	ErrRateLimited = errors.New("auth: rate limited")
	// ErrTransient means a dependency failed and the caller may retry.
	ErrTransient = errors.New("auth: temporarily unavailable")
	// ErrConfig means the deployment is misconfigured, e.g. a staff level
	// outside the known range.
	ErrConfig = errors.New("auth: configuration error")
	// ErrInvalidToken covers unknown, expired or consumed registration tokens.
	ErrInvalidToken = errors.New("auth: invalid registration token")
	// ErrIdentityMismatch means the verification attributes did not match
	// the directory record.
	ErrIdentityMismatch = errors.New("auth: identity verification failed")
	// ErrPasswordPolicy means the chosen password does not meet policy.
	ErrPasswordPolicy = errors.New("auth: password does not meet policy")
	// ErrNotRegistered means the subject exists in the directory but has
	// not completed registration.
	ErrNotRegistered = errors.New("auth: subject not registered")
)

// PolicyDeniedError reports an access-policy denial with the rule that
// failed, so the application can tell the user whether it was department
// or level.
type PolicyDeniedError struct {
	Reason string // "department" or "level"
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("auth: access denied by %s policy", e.Reason)
}
