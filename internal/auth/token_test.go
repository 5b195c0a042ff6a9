package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := "s3cret"
	exp := time.Now().Add(time.Hour).Unix()
	tok := GenerateSessionToken(secret, "sess-1", exp)

	sid, gotExp, err := ValidateSessionToken(secret, tok, "sess-1", time.Now(), 30)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sid != "sess-1" || gotExp != exp {
		t.Fatalf("unexpected claims sid=%q exp=%d", sid, gotExp)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tok := GenerateSessionToken("secret-a", "sess-1", exp)
	if _, _, err := ValidateSessionToken("secret-b", tok, "sess-1", time.Now(), 30); err != ErrTokenSig {
		t.Fatalf("expected ErrTokenSig, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Unix()
	tok := GenerateSessionToken("s", "sess-1", exp)
	if _, _, err := ValidateSessionToken("s", tok, "sess-1", time.Now(), 30); err != ErrTokenExp {
		t.Fatalf("expected ErrTokenExp, got %v", err)
	}
}

func TestTokenSessionMismatch(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tok := GenerateSessionToken("s", "sess-1", exp)
	if _, _, err := ValidateSessionToken("s", tok, "sess-2", time.Now(), 30); err != ErrTokenSID {
		t.Fatalf("expected ErrTokenSID, got %v", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	if _, _, err := ValidateSessionToken("s", "not-a-token!!", "", time.Now(), 0); err != ErrTokenFormat {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}
