package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret []byte, claims idTokenClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func validClaims(sub string) idTokenClaims {
	now := time.Now()
	return idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: sub + "@example.com",
	}
}

func assertReason(t *testing.T, err error, want Reason) {
	t.Helper()
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %T (%v)", err, err)
	}
	if verr.Reason != want {
		t.Errorf("Reason = %q, want %q", verr.Reason, want)
	}
}

func TestNewTokenVerifier_RequiresKey(t *testing.T) {
	if _, err := NewTokenVerifier(TokenVerifierConfig{}); err == nil {
		t.Fatal("expected error without secret or public key")
	}
}

func TestTokenVerifier_Verify_Success(t *testing.T) {
	secret := []byte("super-secret")
	v, err := NewTokenVerifier(TokenVerifierConfig{Secret: secret})
	if err != nil {
		t.Fatalf("NewTokenVerifier error: %v", err)
	}

	claims := validClaims("user-123")
	tok := signHS256(t, secret, claims)

	got, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.UID != "user-123" {
		t.Errorf("UID = %q, want %q", got.UID, "user-123")
	}
	if got.Email != "user-123@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.IssuedAt != claims.IssuedAt.Unix() {
		t.Errorf("IssuedAt = %d, want %d", got.IssuedAt, claims.IssuedAt.Unix())
	}
	if got.ExpiresAt != claims.ExpiresAt.Unix() {
		t.Errorf("ExpiresAt = %d, want %d", got.ExpiresAt, claims.ExpiresAt.Unix())
	}
}

func TestTokenVerifier_Verify_UserIDClaimFallback(t *testing.T) {
	secret := []byte("secret")
	v, _ := NewTokenVerifier(TokenVerifierConfig{Secret: secret})

	claims := validClaims("")
	claims.UserID = "legacy-user"
	tok := signHS256(t, secret, claims)

	got, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.UID != "legacy-user" {
		t.Errorf("UID = %q, want %q", got.UID, "legacy-user")
	}
}

func TestTokenVerifier_Verify_Failures(t *testing.T) {
	secret := []byte("right-secret")
	v, _ := NewTokenVerifier(TokenVerifierConfig{Secret: secret})

	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noIAT := validClaims("u2")
	noIAT.IssuedAt = nil

	noExp := validClaims("u3")
	noExp.ExpiresAt = nil

	noSub := validClaims("")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", signHS256(t, secret, expired)},
		{"wrong secret", signHS256(t, []byte("wrong-secret"), validClaims("u4"))},
		{"missing iat", signHS256(t, secret, noIAT)},
		{"missing exp", signHS256(t, secret, noExp)},
		{"missing subject", signHS256(t, secret, noSub)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			if err == nil {
				t.Fatal("expected error")
			}
			assertReason(t, err, ReasonUnauthorized)
		})
	}
}

func TestTokenVerifier_Verify_IssuerAndAudience(t *testing.T) {
	secret := []byte("secret")
	v, _ := NewTokenVerifier(TokenVerifierConfig{
		Secret:   secret,
		Issuer:   "https://securetoken.example.com/souvenir",
		Audience: "souvenir",
	})

	good := validClaims("u1")
	good.Issuer = "https://securetoken.example.com/souvenir"
	good.Audience = jwt.ClaimStrings{"souvenir"}
	if _, err := v.Verify(context.Background(), signHS256(t, secret, good)); err != nil {
		t.Fatalf("Verify error for matching iss/aud: %v", err)
	}

	bad := validClaims("u1")
	bad.Issuer = "https://evil.example.com"
	bad.Audience = jwt.ClaimStrings{"souvenir"}
	_, err := v.Verify(context.Background(), signHS256(t, secret, bad))
	if err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
	assertReason(t, err, ReasonUnauthorized)
}

func TestTokenVerifier_Verify_RejectsAlgorithmMismatch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	v, _ := NewTokenVerifier(TokenVerifierConfig{PublicKey: &key.PublicKey})

	// HS256で署名されたトークンはRS256検証器では受け付けない
	tok := signHS256(t, []byte("secret"), validClaims("u1"))
	if _, err := v.Verify(context.Background(), tok); err == nil {
		t.Fatal("expected error for HS256 token on RS256 verifier")
	}
}

func TestTokenVerifier_Verify_RS256WithKeyFile(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_token.pub")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	pub, err := LoadRSAPublicKey(path)
	if err != nil {
		t.Fatalf("LoadRSAPublicKey error: %v", err)
	}
	v, err := NewTokenVerifier(TokenVerifierConfig{PublicKey: pub})
	if err != nil {
		t.Fatalf("NewTokenVerifier error: %v", err)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("rsa-user")).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	got, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.UID != "rsa-user" {
		t.Errorf("UID = %q, want %q", got.UID, "rsa-user")
	}
}

func TestLoadRSAPublicKey_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, err := LoadRSAPublicKey(path); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
	if _, err := LoadRSAPublicKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
