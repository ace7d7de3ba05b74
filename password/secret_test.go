package password

import (
	"bytes"
	"errors"
	"testing"
)

func TestSecretHasherDeterministic(t *testing.T) {
	h, err := NewSecretHasher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewSecretHasher error: %v", err)
	}

	a := h.Hash("secret-value")
	b := h.Hash("secret-value")
	if a != b {
		t.Fatal("expected identical digests for identical input")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == h.Hash("secret-value-2") {
		t.Fatal("expected distinct digests for distinct input")
	}
	if !Equal(a, b) || Equal(a, h.Hash("other")) {
		t.Fatal("Equal returned unexpected result")
	}
}

func TestSecretHasherKeyed(t *testing.T) {
	h1, _ := NewSecretHasher(bytes.Repeat([]byte("a"), 32))
	h2, _ := NewSecretHasher(bytes.Repeat([]byte("b"), 32))

	if h1.Hash("secret") == h2.Hash("secret") {
		t.Fatal("expected different keys to produce different digests")
	}
}

func TestSecretHasherShortKey(t *testing.T) {
	if _, err := NewSecretHasher([]byte("short")); !errors.Is(err, ErrSecretKeyTooShort) {
		t.Fatalf("expected ErrSecretKeyTooShort, got %v", err)
	}
}
