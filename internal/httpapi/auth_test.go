package httpapi

import (
	"testing"
	"time"

	"kasirhub/backend/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)

	token, expiresAt, err := auth.Sign(domain.Actor{
		Username: "kasir",
		Role:     "cashier",
		TenantID: "tenant-1",
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("token already expired at %v", expiresAt)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "kasir" || actor.Role != "cashier" || actor.TenantID != "tenant-1" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)
	token, _, err := auth.Sign(domain.Actor{Username: "kasir", Role: "cashier", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("tampered token accepted")
	}

	other := NewAuthManager("other-secret", time.Hour)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("token signed with a different secret accepted")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)
	auth.tokenTTL = -time.Minute

	token, _, err := auth.Sign(domain.Actor{Username: "kasir", Role: "cashier", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestParseTokenRejectsAlgNone(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)

	// Unsigned token with alg "none": header {"alg":"none","typ":"JWT"}.
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." +
		"eyJzdWIiOiJrYXNpciIsInJvbGUiOiJhZG1pbiIsInRlbmFudF9pZCI6InRlbmFudC0xIn0."
	if _, err := auth.ParseToken(unsigned); err == nil {
		t.Fatalf("alg=none token accepted")
	}
}
