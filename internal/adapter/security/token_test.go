package security

import (
	"testing"
	"time"
)

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("super-secret")
	token, err := tm.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub, err := tm.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("expected subject user-1, got %s", sub)
	}
}

func TestTokenManager_Generate_RejectsInvalidParams(t *testing.T) {
	tm := NewTokenManager("super-secret")
	if _, err := tm.Generate("", time.Hour); err == nil {
		t.Fatal("expected an error for an empty user id")
	}
	if _, err := tm.Generate("user-1", 0); err == nil {
		t.Fatal("expected an error for a non-positive ttl")
	}
}

func TestTokenManager_Validate_RejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("super-secret")
	token, err := tm.Generate("user-1", time.Nanosecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, err := tm.Validate(token); err == nil {
		t.Fatal("expected an expired token to fail validation")
	}
}

func TestTokenManager_Validate_RejectsTamperedSignature(t *testing.T) {
	tm := NewTokenManager("super-secret")
	token, err := tm.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenManager("a-different-secret")
	if _, err := other.Validate(token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestTokenManager_Validate_RejectsMalformedToken(t *testing.T) {
	tm := NewTokenManager("super-secret")
	if _, err := tm.Validate("not-a-jwt"); err == nil {
		t.Fatal("expected a malformed token to be rejected")
	}
}
