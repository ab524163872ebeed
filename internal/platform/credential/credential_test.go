package credential

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "s3cret!" || !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("expected a bcrypt hash, got %q", hash)
	}
	if !h.Verify(hash, "s3cret!") {
		t.Error("expected matching credential to verify")
	}
	if h.Verify(hash, "wrong") {
		t.Error("expected wrong credential to be rejected")
	}
}

func TestBcryptHasher_Empty(t *testing.T) {
	_, err := NewBcrypt(bcrypt.MinCost).Hash("")
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestNewBcrypt_ClampsCost(t *testing.T) {
	if h := NewBcrypt(1); h.cost != bcrypt.DefaultCost {
		t.Errorf("expected default cost, got %d", h.cost)
	}
	if h := NewBcrypt(bcrypt.MinCost); h.cost != bcrypt.MinCost {
		t.Errorf("expected min cost, got %d", h.cost)
	}
}
