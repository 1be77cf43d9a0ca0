package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps everything in process. Used in tests and local runs;
// single-use semantics are enforced under one mutex per concern.
type MemoryStore struct {
	credentials *memoryCredentials
	codes       *memoryCodes
	regTokens   *memoryRegTokens
	grants      *memoryGrants
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: &memoryCredentials{items: map[string]Credential{}},
		codes:       &memoryCodes{items: map[string]AuthorizationCode{}},
		regTokens:   &memoryRegTokens{items: map[string]RegistrationToken{}},
		grants:      &memoryGrants{items: map[string]Grant{}},
	}
}

func (s *MemoryStore) Credentials() CredentialStore               { return s.credentials }
func (s *MemoryStore) Codes() CodeStore                           { return s.codes }
func (s *MemoryStore) RegistrationTokens() RegistrationTokenStore { return s.regTokens }
func (s *MemoryStore) Grants() GrantStore                         { return s.grants }

type memoryCredentials struct {
	mu    sync.Mutex
	items map[string]Credential
}

func (m *memoryCredentials) Find(ctx context.Context, subject string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.items[subject]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (m *memoryCredentials) Create(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[cred.Subject]; ok {
		return ErrAlreadyExists
	}
	m.items[cred.Subject] = cred
	return nil
}

func (m *memoryCredentials) UpdateHash(ctx context.Context, subject, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.items[subject]
	if !ok {
		return ErrNotFound
	}
	cred.PasswordHash = hash
	cred.UpdatedAt = time.Now().UTC()
	m.items[subject] = cred
	return nil
}

func (m *memoryCredentials) Delete(ctx context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[subject]; !ok {
		return ErrNotFound
	}
	delete(m.items, subject)
	return nil
}

type memoryCodes struct {
	mu    sync.Mutex
	items map[string]AuthorizationCode
}

func (m *memoryCodes) Put(ctx context.Context, code AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[code.Code] = code
	return nil
}

func (m *memoryCodes) Consume(ctx context.Context, code string) (AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[code]
	if !ok {
		return AuthorizationCode{}, ErrNotFound
	}
	delete(m.items, code)
	if time.Now().After(c.ExpiresAt) {
		return AuthorizationCode{}, ErrNotFound
	}
	return c, nil
}

func (m *memoryCodes) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.items {
		if now.After(c.ExpiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

type memoryRegTokens struct {
	mu    sync.Mutex
	items map[string]RegistrationToken
}

func (m *memoryRegTokens) Put(ctx context.Context, tok RegistrationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tok.Token] = tok
	return nil
}

func (m *memoryRegTokens) Find(ctx context.Context, token string) (RegistrationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[token]
	if !ok || time.Now().After(t.ExpiresAt) {
		return RegistrationToken{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryRegTokens) Consume(ctx context.Context, token string) (RegistrationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[token]
	if !ok {
		return RegistrationToken{}, ErrNotFound
	}
	delete(m.items, token)
	if time.Now().After(t.ExpiresAt) {
		return RegistrationToken{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryRegTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.items {
		if now.After(t.ExpiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

type memoryGrants struct {
	mu    sync.Mutex
	items map[string]Grant
}

func grantKey(subject, appID string) string { return subject + "\x00" + appID }

func (m *memoryGrants) Find(ctx context.Context, subject, appID string) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[grantKey(subject, appID)]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (m *memoryGrants) Upsert(ctx context.Context, g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.UpdatedAt = time.Now().UTC()
	m.items[grantKey(g.Subject, g.AppID)] = g
	return nil
}

func (m *memoryGrants) Delete(ctx context.Context, subject, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := grantKey(subject, appID)
	if _, ok := m.items[key]; !ok {
		return ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *memoryGrants) ListBySubject(ctx context.Context, subject string) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Grant
	for _, g := range m.items {
		if g.Subject == subject {
			out = append(out, g)
		}
	}
	return out, nil
}
