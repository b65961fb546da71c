package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := NewPauses("Vault")
	if err := Guard(pauses, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
	pauses.Set("vault", false)
	if err := Guard(pauses, "vault"); err != nil {
		t.Fatalf("expected unpaused module, got %v", err)
	}
}
