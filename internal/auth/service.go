package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffgate.org/internal/apps"
	"staffgate.org/internal/audit"
	"staffgate.org/internal/directory"
	"staffgate.org/internal/notify"
	"staffgate.org/internal/obs"
	"staffgate.org/internal/token"
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultSelfTTL     = 10 * time.Minute
	defaultOperatorTTL = 24 * time.Hour
)

// AttemptLimiter throttles login attempts per origin.
type AttemptLimiter interface {
	Allow(key string) bool
}

// TokenResult is the answer to a successful code exchange.
type TokenResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// Service orchestrates the authentication flows. It owns no policy of its
// own beyond check ordering; facts come from the directory, the app
// registry and the stores.
type Service struct {
	store    Store
	dir      directory.Directory
	registry apps.Registry
	tokens   *token.Service

	limiter  AttemptLimiter
	notifier notify.Notifier
	now      func() time.Time

	codeTTL     time.Duration
	selfTTL     time.Duration
	operatorTTL time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimiter installs a login attempt limiter.
func WithLimiter(l AttemptLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithNotifier installs the operator notifier.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.codeTTL = ttl }
}

// WithRegistrationTTLs overrides the self and operator token lifetimes.
func WithRegistrationTTLs(self, operator time.Duration) ServiceOption {
	return func(s *Service) {
		s.selfTTL = self
		s.operatorTTL = operator
	}
}

// NewService wires the authority together.
func NewService(store Store, dir directory.Directory, registry apps.Registry, tokens *token.Service, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		dir:         dir,
		registry:    registry,
		tokens:      tokens,
		notifier:    notify.Nop{},
		now:         time.Now,
		codeTTL:     defaultCodeTTL,
		selfTTL:     defaultSelfTTL,
		operatorTTL: defaultOperatorTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials for a subject heading to an app and issues a
// one-time authorization code.
//
// Check order is fixed: app and redirect URI first so an open redirect is
// rejected before any secret is touched, then the rate limit before the
// directory is consulted, then credentials, then the access policy.
func (s *Service) Login(ctx context.Context, origin, identifier, password, appID, redirectURI string) (string, error) {
	identifier = directory.Normalize(identifier)

	app, err := s.registry.Find(ctx, appID)
	if err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			return "", ErrInvalidClient
		}
		return "", fmt.Errorf("%w: app registry: %v", ErrTransient, err)
	}
	// Exact string equality, no normalization. Anything looser is a
	// phishing vector.
	if redirectURI != app.RedirectURI {
		return "", ErrRedirectMismatch
	}

	if s.limiter != nil && !s.limiter.Allow(origin) {
		obs.LoginAttempt("rate_limited")
		obs.RateLimited()
		return "", ErrRateLimited
	}

	staff, err := s.dir.Lookup(ctx, identifier)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		// Burn a hash comparison so an identifier outside the directory
		// answers in the same time, with the same message, as a wrong
		// password.
		VerifyDummy(password)
		obs.LoginAttempt("invalid_credentials")
		return "", ErrInvalidCredentials
	case err != nil:
		return "", fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}

	cred, err := s.store.Credentials().Find(ctx, identifier)
	switch {
	case errors.Is(err, ErrNotFound):
		// Real staff member without an account: divert to registration.
		obs.LoginAttempt("not_registered")
		return "", ErrNotRegistered
	case err != nil:
		return "", fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}
	if !VerifyPassword(cred.PasswordHash, password) {
		obs.LoginAttempt("invalid_credentials")
		return "", ErrInvalidCredentials
	}

	if _, err := s.resolve(ctx, staff, app); err != nil {
		var denied *PolicyDeniedError
		if errors.As(err, &denied) {
			obs.LoginAttempt("denied")
		}
		return "", err
	}

	code := AuthorizationCode{
		Code:      newSecret(),
		Subject:   staff.Subject,
		AppID:     app.ID,
		ExpiresAt: s.now().Add(s.codeTTL),
	}
	if err := s.store.Codes().Put(ctx, code); err != nil {
		return "", fmt.Errorf("%w: code store: %v", ErrTransient, err)
	}

	obs.LoginAttempt("ok")
	obs.CodeIssued()
	s.audit(ctx, "auth.code.issued", map[string]any{
		"subject": staff.Subject,
		"app_id":  app.ID,
	})
	return code.Code, nil
}

// ExchangeCode redeems a one-time code for a signed token. The client
// secret is verified before the code is touched, so a client that cannot
// authenticate cannot burn someone else's code. Every code defect answers
// ErrInvalidGrant with no further detail.
func (s *Service) ExchangeCode(ctx context.Context, appID, clientSecret, code string) (TokenResult, error) {
	app, err := s.registry.Find(ctx, appID)
	if err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			return TokenResult{}, ErrInvalidClient
		}
		return TokenResult{}, fmt.Errorf("%w: app registry: %v", ErrTransient, err)
	}
	if !VerifyPassword(app.ClientSecretHash, clientSecret) {
		return TokenResult{}, ErrInvalidClient
	}

	consumed, err := s.store.Codes().Consume(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return TokenResult{}, ErrInvalidGrant
	case err != nil:
		return TokenResult{}, fmt.Errorf("%w: code store: %v", ErrTransient, err)
	}
	if consumed.AppID != app.ID {
		// The code is already gone, which is the intended outcome: a code
		// presented to the wrong app is dead either way.
		return TokenResult{}, ErrInvalidGrant
	}

	staff, err := s.dir.Lookup(ctx, consumed.Subject)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return TokenResult{}, ErrStaffNotFound
	case err != nil:
		return TokenResult{}, fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}

	// Resolved fresh on every exchange: a directory change between login
	// and redemption is reflected here.
	scopes, err := s.resolve(ctx, staff, app)
	if err != nil {
		var denied *PolicyDeniedError
		if errors.As(err, &denied) {
			return TokenResult{}, ErrInvalidGrant
		}
		return TokenResult{}, err
	}

	signed, err := s.tokens.Issue(staff.Subject, staff.Name, staff.Department, scopes, app.ID)
	if err != nil {
		return TokenResult{}, fmt.Errorf("issue token: %w", err)
	}

	obs.TokenIssued("access")
	s.audit(ctx, "auth.token.issued", map[string]any{
		"subject": staff.Subject,
		"app_id":  app.ID,
		"scopes":  scopes,
	})
	return TokenResult{
		AccessToken: signed,
		TokenType:   token.TokenType,
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
	}, nil
}

func (s *Service) resolve(ctx context.Context, staff directory.StaffRecord, app apps.App) ([]string, error) {
	var grant *Grant
	g, err := s.store.Grants().Find(ctx, staff.Subject, app.ID)
	switch {
	case err == nil:
		grant = &g
	case errors.Is(err, ErrNotFound):
		// Fall through to policy resolution.
	default:
		return nil, fmt.Errorf("%w: grant store: %v", ErrTransient, err)
	}
	return ResolveScopes(staff, app, grant)
}

// StartRegistration opens the registration flow for an unregistered subject
// and returns the short-lived token gating the identity step. Only employed
// subjects get a stored token; an identifier outside the directory receives
// a decoy of the same shape that no later step will accept, so the endpoint
// does not reveal who is on staff.
func (s *Service) StartRegistration(ctx context.Context, subject string) (string, error) {
	subject = directory.Normalize(subject)

	if _, err := s.store.Credentials().Find(ctx, subject); err == nil {
		return "", ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}

	if _, err := s.dir.Lookup(ctx, subject); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.audit(ctx, "auth.register.start_unknown", map[string]any{"subject": subject})
			return newSecret(), nil
		}
		return "", fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}

	tok := RegistrationToken{
		Token:     newSecret(),
		Subject:   subject,
		Kind:      TokenKindSelf,
		ExpiresAt: s.now().Add(s.selfTTL),
	}
	if err := s.store.RegistrationTokens().Put(ctx, tok); err != nil {
		return "", fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.register.start", map[string]any{"subject": subject})
	return tok.Token, nil
}

// VerifyIdentity checks the subject's verification attributes against the
// directory. The token is consumed only after the factors match, so a typo
// does not burn it. On success the operator channel is notified that the
// subject is ready for approval.
func (s *Service) VerifyIdentity(ctx context.Context, selfToken, name, extension string) error {
	tok, err := s.store.RegistrationTokens().Find(ctx, selfToken)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrInvalidToken
	case err != nil:
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}
	if tok.Kind != TokenKindSelf {
		return ErrInvalidToken
	}

	staff, err := s.dir.Lookup(ctx, tok.Subject)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return ErrStaffNotFound
	case err != nil:
		return fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}
	if !strings.EqualFold(strings.TrimSpace(name), staff.Name) ||
		strings.TrimSpace(extension) != staff.Extension {
		return ErrIdentityMismatch
	}

	// Consume after verification. The race loser on a duplicated token
	// lands here and gets the generic invalid-token answer.
	if _, err := s.store.RegistrationTokens().Consume(ctx, selfToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.register.identity_verified", map[string]any{"subject": tok.Subject})
	s.notify(ctx, notify.Event{
		Title:   "Registration approval needed",
		Subject: tok.Subject,
		Detail:  fmt.Sprintf("%s (%s) verified identity and awaits an operator token", staff.Name, staff.Department),
	})
	return nil
}

// IssueOperatorToken mints the operator-approved token that authorizes
// setting a password. Operator-side only; never exposed to the subject
// except by the operator handing over the token.
func (s *Service) IssueOperatorToken(ctx context.Context, subject string) (string, error) {
	subject = directory.Normalize(subject)

	if _, err := s.dir.Lookup(ctx, subject); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return "", ErrStaffNotFound
		}
		return "", fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}

	tok := RegistrationToken{
		Token:     newSecret(),
		Subject:   subject,
		Kind:      TokenKindOperator,
		ExpiresAt: s.now().Add(s.operatorTTL),
	}
	if err := s.store.RegistrationTokens().Put(ctx, tok); err != nil {
		return "", fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.register.operator_token_issued", map[string]any{"subject": subject})
	return tok.Token, nil
}

// CompleteRegistration sets the initial password using an operator token.
// Password policy and directory membership are checked before the token is
// consumed; only the winning call creates the credential.
func (s *Service) CompleteRegistration(ctx context.Context, operatorToken, password string) error {
	if err := CheckPasswordPolicy(password); err != nil {
		return err
	}

	tok, err := s.store.RegistrationTokens().Find(ctx, operatorToken)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrInvalidToken
	case err != nil:
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}
	if tok.Kind != TokenKindOperator {
		return ErrInvalidToken
	}

	if _, err := s.dir.Lookup(ctx, tok.Subject); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrStaffNotFound
		}
		return fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := s.store.RegistrationTokens().Consume(ctx, operatorToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}

	now := s.now().UTC()
	err = s.store.Credentials().Create(ctx, Credential{
		Subject:      tok.Subject,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.register.completed", map[string]any{"subject": tok.Subject})
	return nil
}

// RequestRecovery opens the password recovery flow. Attempts spend the same
// per-origin budget as logins and are refused before the account store is
// touched. The caller always gets the same answer whether or not the
// subject exists, so the endpoint cannot be used to enumerate accounts; the
// operator channel carries the truth.
func (s *Service) RequestRecovery(ctx context.Context, origin, subject string) error {
	subject = directory.Normalize(subject)

	if s.limiter != nil && !s.limiter.Allow(origin) {
		obs.RateLimited()
		return ErrRateLimited
	}

	if _, err := s.store.Credentials().Find(ctx, subject); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.audit(ctx, "auth.recovery.requested_unknown", map[string]any{"subject": subject})
			return nil
		}
		return fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.recovery.requested", map[string]any{"subject": subject})
	s.notify(ctx, notify.Event{
		Title:   "Password recovery requested",
		Subject: subject,
		Detail:  "issue an operator token after verifying the request out of band",
	})
	return nil
}

// ResetPassword replaces a forgotten password using an operator token.
func (s *Service) ResetPassword(ctx context.Context, operatorToken, password string) error {
	if err := CheckPasswordPolicy(password); err != nil {
		return err
	}

	tok, err := s.store.RegistrationTokens().Find(ctx, operatorToken)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrInvalidToken
	case err != nil:
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}
	if tok.Kind != TokenKindOperator {
		return ErrInvalidToken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := s.store.RegistrationTokens().Consume(ctx, operatorToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%w: token store: %v", ErrTransient, err)
	}

	err = s.store.Credentials().UpdateHash(ctx, tok.Subject, hash)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotRegistered
	case err != nil:
		return fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.recovery.completed", map[string]any{"subject": tok.Subject})
	return nil
}

// ChangePassword rotates a password for a subject who knows the current one.
func (s *Service) ChangePassword(ctx context.Context, subject, current, next string) error {
	subject = directory.Normalize(subject)

	if err := CheckPasswordPolicy(next); err != nil {
		return err
	}

	cred, err := s.store.Credentials().Find(ctx, subject)
	switch {
	case errors.Is(err, ErrNotFound):
		VerifyDummy(current)
		return ErrInvalidCredentials
	case err != nil:
		return fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}
	if !VerifyPassword(cred.PasswordHash, current) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.Credentials().UpdateHash(ctx, subject, hash); err != nil {
		return fmt.Errorf("%w: credential store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.password.changed", map[string]any{"subject": subject})
	return nil
}

// GrantPermission sets an explicit per-app scope override for a subject.
func (s *Service) GrantPermission(ctx context.Context, subject, appID string, scopes []string) error {
	subject = directory.Normalize(subject)

	if _, err := s.registry.Find(ctx, appID); err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			return ErrInvalidClient
		}
		return fmt.Errorf("%w: app registry: %v", ErrTransient, err)
	}
	if err := s.store.Grants().Upsert(ctx, Grant{Subject: subject, AppID: appID, Scopes: scopes}); err != nil {
		return fmt.Errorf("%w: grant store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.grant.set", map[string]any{
		"subject": subject,
		"app_id":  appID,
		"scopes":  scopes,
	})
	return nil
}

// RevokePermission removes an explicit grant; resolution falls back to the
// level and department rules on the next login or exchange.
func (s *Service) RevokePermission(ctx context.Context, subject, appID string) error {
	subject = directory.Normalize(subject)

	err := s.store.Grants().Delete(ctx, subject, appID)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("%w: grant store: %v", ErrTransient, err)
	}

	s.audit(ctx, "auth.grant.revoked", map[string]any{
		"subject": subject,
		"app_id":  appID,
	})
	return nil
}

// ListPermissions returns the subject's explicit grants.
func (s *Service) ListPermissions(ctx context.Context, subject string) ([]Grant, error) {
	subject = directory.Normalize(subject)
	grants, err := s.store.Grants().ListBySubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("%w: grant store: %v", ErrTransient, err)
	}
	return grants, nil
}

// IssueElevatedToken mints a short-lived token for the reserved admin
// audience. The subject must exist in the directory and hold level 3.
func (s *Service) IssueElevatedToken(ctx context.Context, subject string) (string, error) {
	subject = directory.Normalize(subject)

	staff, err := s.dir.Lookup(ctx, subject)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return "", ErrStaffNotFound
	case err != nil:
		return "", fmt.Errorf("%w: directory: %v", ErrTransient, err)
	}
	scopes, ok := LevelScopes[staff.Level]
	if !ok {
		return "", fmt.Errorf("%w: staff level %d outside known range", ErrConfig, staff.Level)
	}
	if staff.Level < 3 {
		return "", &PolicyDeniedError{Reason: "level"}
	}

	signed, err := s.tokens.IssueElevated(staff.Subject, staff.Name, staff.Department, scopes)
	if err != nil {
		return "", fmt.Errorf("issue elevated token: %w", err)
	}

	obs.TokenIssued("elevated")
	s.audit(ctx, "auth.token.elevated_issued", map[string]any{"subject": staff.Subject})
	return signed, nil
}

// CleanupExpired removes authorization codes and registration tokens past
// their deadline. Run periodically; consumption already treats expired
// entries as absent, this only reclaims space.
func (s *Service) CleanupExpired(ctx context.Context) (codes, tokens int64, err error) {
	now := s.now()
	codes, err = s.store.Codes().DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup codes: %w", err)
	}
	tokens, err = s.store.RegistrationTokens().DeleteExpired(ctx, now)
	if err != nil {
		return codes, 0, fmt.Errorf("cleanup registration tokens: %w", err)
	}
	return codes, tokens, nil
}

func (s *Service) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.LogError("audit log failed", map[string]any{"event": event, "error": err.Error()})
	}
}

func (s *Service) notify(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		obs.LogError("operator notification failed", map[string]any{
			"title": ev.Title,
			"error": err.Error(),
		})
	}
}
