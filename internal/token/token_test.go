package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	svc, err := NewService(append([]ServiceOption{WithKeyPair(key)}, opts...)...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.Issue("kane.beh", "Kane Beh", "ENG", []string{"read", "write"}, "wiki")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := svc.Verify(raw, "wiki")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "kane.beh" || claims.Department != "ENG" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Elevated {
		t.Fatal("ordinary token must not be elevated")
	}
	if got := claims.ExpiresAt - claims.IssuedAt; got != int64(12*time.Hour/time.Second) {
		t.Fatalf("unexpected lifetime: %d", got)
	}
}

func TestClaimShape(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.Issue("kane.beh", "Kane Beh", "ENG", []string{"read"}, "wiki")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}

	for _, k := range []string{"sub", "name", "dept", "scopes", "aud", "iat", "exp"} {
		if _, ok := body[k]; !ok {
			t.Fatalf("claim %q missing from payload: %v", k, body)
		}
	}
	if _, ok := body["aud"].(string); !ok {
		t.Fatalf("aud must be a plain string, got %T", body["aud"])
	}
	if _, ok := body["is_elevated"]; ok {
		t.Fatal("ordinary token must not carry is_elevated")
	}
}

func TestIssueElevated(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueElevated("ops.root", "Ops Root", "IT", []string{"read", "write", "admin"})
	if err != nil {
		t.Fatalf("IssueElevated failed: %v", err)
	}
	claims, err := svc.Verify(raw, AdminAudience)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !claims.Elevated {
		t.Fatal("elevated token must carry is_elevated")
	}
	if got := claims.ExpiresAt - claims.IssuedAt; got != int64(2*time.Hour/time.Second) {
		t.Fatalf("unexpected elevated lifetime: %d", got)
	}

	// An elevated token must not pass as an ordinary app token.
	if _, err := svc.Verify(raw, "wiki"); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("expected ErrWrongAudience, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := fixed
	svc := newTestService(t, WithClock(func() time.Time { return now }))

	raw, err := svc.Issue("kane.beh", "Kane Beh", "ENG", []string{"read"}, "wiki")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	now = fixed.Add(13 * time.Hour)
	if _, err := svc.Verify(raw, "wiki"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	issuer := newTestService(t)
	verifier := newTestService(t)

	raw, err := issuer.Issue("kane.beh", "Kane Beh", "ENG", []string{"read"}, "wiki")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := verifier.Verify(raw, "wiki"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Verify("not.a.token", "wiki"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyRejectsAlgNone(t *testing.T) {
	svc := newTestService(t)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"kane.beh","aud":"wiki","exp":9999999999}`))
	forged := header + "." + payload + "."

	if _, err := svc.Verify(forged, "wiki"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for alg none, got %v", err)
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	svc := newTestService(t)

	pemBytes, err := svc.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM failed: %v", err)
	}
	pub, err := ParsePublicKey(pemBytes)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	verifier, err := NewService(WithPublicKey(pub))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	raw, err := svc.Issue("kane.beh", "Kane Beh", "ENG", []string{"read"}, "wiki")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := verifier.Verify(raw, "wiki"); err != nil {
		t.Fatalf("verify with exported key failed: %v", err)
	}

	// A verify-only service must refuse to sign.
	if _, err := verifier.Issue("x", "X", "ENG", nil, "wiki"); err == nil {
		t.Fatal("expected error from verify-only service")
	}
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	parsed, err := ParsePrivateKey(EncodePrivateKeyPEM(key))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Fatal("round-tripped key differs")
	}
}
