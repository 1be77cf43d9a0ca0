package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists auth state in Postgres. Single-use consumption is
// delegated to the database via DELETE ... RETURNING, so it holds across
// replicas, not just goroutines.
type PostgresStore struct {
	credentials *pgCredentials
	codes       *pgCodes
	regTokens   *pgRegTokens
	grants      *pgGrants
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		credentials: &pgCredentials{db: db},
		codes:       &pgCodes{db: db},
		regTokens:   &pgRegTokens{db: db},
		grants:      &pgGrants{db: db},
	}
}

func (s *PostgresStore) Credentials() CredentialStore               { return s.credentials }
func (s *PostgresStore) Codes() CodeStore                           { return s.codes }
func (s *PostgresStore) RegistrationTokens() RegistrationTokenStore { return s.regTokens }
func (s *PostgresStore) Grants() GrantStore                         { return s.grants }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type pgCredentials struct {
	db *sql.DB
}

func (p *pgCredentials) Find(ctx context.Context, subject string) (Credential, error) {
	row := p.db.QueryRowContext(ctx,
		`select subject, password_hash, created_at, updated_at
		   from credentials where subject=$1`, subject)

	var cred Credential
	if err := row.Scan(&cred.Subject, &cred.PasswordHash, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("find credential: %w", err)
	}
	return cred, nil
}

func (p *pgCredentials) Create(ctx context.Context, cred Credential) error {
	_, err := p.db.ExecContext(ctx,
		`insert into credentials (subject, password_hash, created_at, updated_at)
		 values ($1, $2, now(), now())`, cred.Subject, cred.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (p *pgCredentials) UpdateHash(ctx context.Context, subject, hash string) error {
	res, err := p.db.ExecContext(ctx,
		`update credentials set password_hash=$2, updated_at=now() where subject=$1`,
		subject, hash)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgCredentials) Delete(ctx context.Context, subject string) error {
	res, err := p.db.ExecContext(ctx,
		`delete from credentials where subject=$1`, subject)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type pgCodes struct {
	db *sql.DB
}

func (p *pgCodes) Put(ctx context.Context, code AuthorizationCode) error {
	_, err := p.db.ExecContext(ctx,
		`insert into auth_codes (code, subject, app_id, expires_at)
		 values ($1, $2, $3, $4)`,
		code.Code, code.Subject, code.AppID, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

func (p *pgCodes) Consume(ctx context.Context, code string) (AuthorizationCode, error) {
	// Delete first, validate after: a replayed or expired code must leave
	// no row behind either way, and only one caller can win the delete.
	row := p.db.QueryRowContext(ctx,
		`delete from auth_codes where code=$1
		 returning code, subject, app_id, expires_at`, code)

	var c AuthorizationCode
	if err := row.Scan(&c.Code, &c.Subject, &c.AppID, &c.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthorizationCode{}, ErrNotFound
		}
		return AuthorizationCode{}, fmt.Errorf("consume code: %w", err)
	}
	if time.Now().After(c.ExpiresAt) {
		return AuthorizationCode{}, ErrNotFound
	}
	return c, nil
}

func (p *pgCodes) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`delete from auth_codes where expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return res.RowsAffected()
}

type pgRegTokens struct {
	db *sql.DB
}

func (p *pgRegTokens) Put(ctx context.Context, tok RegistrationToken) error {
	_, err := p.db.ExecContext(ctx,
		`insert into registration_tokens (token, subject, kind, expires_at)
		 values ($1, $2, $3, $4)`,
		tok.Token, tok.Subject, string(tok.Kind), tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store registration token: %w", err)
	}
	return nil
}

func (p *pgRegTokens) Find(ctx context.Context, token string) (RegistrationToken, error) {
	row := p.db.QueryRowContext(ctx,
		`select token, subject, kind, expires_at
		   from registration_tokens where token=$1 and expires_at >= now()`, token)

	var t RegistrationToken
	var kind string
	if err := row.Scan(&t.Token, &t.Subject, &kind, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RegistrationToken{}, ErrNotFound
		}
		return RegistrationToken{}, fmt.Errorf("find registration token: %w", err)
	}
	t.Kind = RegistrationTokenKind(kind)
	return t, nil
}

func (p *pgRegTokens) Consume(ctx context.Context, token string) (RegistrationToken, error) {
	row := p.db.QueryRowContext(ctx,
		`delete from registration_tokens where token=$1
		 returning token, subject, kind, expires_at`, token)

	var t RegistrationToken
	var kind string
	if err := row.Scan(&t.Token, &t.Subject, &kind, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RegistrationToken{}, ErrNotFound
		}
		return RegistrationToken{}, fmt.Errorf("consume registration token: %w", err)
	}
	if time.Now().After(t.ExpiresAt) {
		return RegistrationToken{}, ErrNotFound
	}
	t.Kind = RegistrationTokenKind(kind)
	return t, nil
}

func (p *pgRegTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`delete from registration_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired registration tokens: %w", err)
	}
	return res.RowsAffected()
}

type pgGrants struct {
	db *sql.DB
}

func (p *pgGrants) Find(ctx context.Context, subject, appID string) (Grant, error) {
	row := p.db.QueryRowContext(ctx,
		`select subject, app_id, scopes, updated_at
		   from permission_grants where subject=$1 and app_id=$2`, subject, appID)
	return scanGrant(row)
}

func (p *pgGrants) Upsert(ctx context.Context, g Grant) error {
	scopes, err := json.Marshal(g.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`insert into permission_grants (subject, app_id, scopes, updated_at)
		 values ($1, $2, $3, now())
		 on conflict (subject, app_id)
		 do update set scopes=excluded.scopes, updated_at=now()`,
		g.Subject, g.AppID, scopes)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (p *pgGrants) Delete(ctx context.Context, subject, appID string) error {
	res, err := p.db.ExecContext(ctx,
		`delete from permission_grants where subject=$1 and app_id=$2`, subject, appID)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgGrants) ListBySubject(ctx context.Context, subject string) ([]Grant, error) {
	rows, err := p.db.QueryContext(ctx,
		`select subject, app_id, scopes, updated_at
		   from permission_grants where subject=$1 order by app_id`, subject)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (Grant, error) {
	var g Grant
	var scopes []byte
	if err := row.Scan(&g.Subject, &g.AppID, &scopes, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, fmt.Errorf("scan grant: %w", err)
	}
	if err := json.Unmarshal(scopes, &g.Scopes); err != nil {
		return Grant{}, fmt.Errorf("decode scopes: %w", err)
	}
	return g, nil
}
