// Package token issues and verifies the RS256 signed tokens that relying
// applications accept as proof of authentication.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the value returned alongside every issued token.
const TokenType = "bearer"

// AdminAudience is the reserved audience for elevated tokens. No relying
// application may register under this id.
const AdminAudience = "staffgate-admin"

const (
	defaultTTL      = 12 * time.Hour
	defaultAdminTTL = 2 * time.Hour
)

var (
	// ErrExpired means the token signature is valid but its lifetime is over.
	ErrExpired = errors.New("token: expired")
	// ErrWrongAudience means the token was issued for a different application.
	ErrWrongAudience = errors.New("token: wrong audience")
	// ErrMalformed covers bad signatures, wrong algorithms and garbage input.
	ErrMalformed = errors.New("token: malformed")
)

// Claims is the exact payload carried by every token. Audience is a single
// string, never a list.
type Claims struct {
	Subject    string   `json:"sub"`
	Name       string   `json:"name"`
	Department string   `json:"dept"`
	Scopes     []string `json:"scopes"`
	Audience   string   `json:"aud"`
	Elevated   bool     `json:"is_elevated,omitempty"`
	IssuedAt   int64    `json:"iat"`
	ExpiresAt  int64    `json:"exp"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c Claims) GetIssuer() (string, error) { return "", nil }

func (c Claims) GetSubject() (string, error) { return c.Subject, nil }

func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Service signs and verifies tokens with a single RSA key pair.
// A verify-only service may be built from just the public key.
type Service struct {
	private  *rsa.PrivateKey
	public   *rsa.PublicKey
	ttl      time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithKeyPair installs the signing key. The public half is derived from it.
func WithKeyPair(key *rsa.PrivateKey) ServiceOption {
	return func(s *Service) {
		s.private = key
		s.public = &key.PublicKey
	}
}

// WithPublicKey installs a verify-only key.
func WithPublicKey(key *rsa.PublicKey) ServiceOption {
	return func(s *Service) { s.public = key }
}

// WithTTL overrides the ordinary token lifetime.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithAdminTTL overrides the elevated token lifetime.
func WithAdminTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.adminTTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a token service. At least one key option is required.
func NewService(opts ...ServiceOption) (*Service, error) {
	s := &Service{
		ttl:      defaultTTL,
		adminTTL: defaultAdminTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.public == nil {
		return nil, errors.New("token: no key configured")
	}
	return s, nil
}

// TTL reports the ordinary token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs an ordinary token for the given subject and audience.
func (s *Service) Issue(subject, name, department string, scopes []string, audience string) (string, error) {
	return s.sign(Claims{
		Subject:    subject,
		Name:       name,
		Department: department,
		Scopes:     scopes,
		Audience:   audience,
	}, s.ttl)
}

// IssueElevated signs a short-lived token for the reserved admin audience.
func (s *Service) IssueElevated(subject, name, department string, scopes []string) (string, error) {
	return s.sign(Claims{
		Subject:    subject,
		Name:       name,
		Department: department,
		Scopes:     scopes,
		Audience:   AdminAudience,
		Elevated:   true,
	}, s.adminTTL)
}

func (s *Service) sign(claims Claims, ttl time.Duration) (string, error) {
	if s.private == nil {
		return "", errors.New("token: service is verify-only")
	}
	now := s.now().UTC()
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(s.private)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and lifetime, then that the token was issued for
// the given audience. Expiry and audience mismatch are reported distinctly;
// every other defect collapses to ErrMalformed.
func (s *Service) Verify(raw, audience string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return s.public, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Audience != audience {
		return Claims{}, ErrWrongAudience
	}
	return claims, nil
}

// GenerateKey creates a new 2048-bit RSA key pair.
func GenerateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// LoadPrivateKey reads a PEM-encoded RSA private key from disk.
// Both PKCS#1 and PKCS#8 encodings are accepted.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM-encoded RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

// ParsePublicKey decodes a PEM-encoded RSA public key (PKIX).
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}

// PublicKeyPEM encodes the verification key in PKIX PEM form so relying
// applications can fetch it.
func (s *Service) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(s.public)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EncodePrivateKeyPEM encodes a private key in PKCS#1 PEM form.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}
