package inbox

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func openTestInbox(t *testing.T) *Inbox {
	t.Helper()
	ib, err := Open(filepath.Join(t.TempDir(), "inbox.bolt"), nil)
	if err != nil {
		t.Fatalf("open inbox: %v", err)
	}
	t.Cleanup(func() { _ = ib.Close() })
	return ib
}

func TestReserveApplyLifecycle(t *testing.T) {
	ib := openTestInbox(t)
	id := common.HexToHash("0x01")

	if err := ib.Reserve(id); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ib.Reserve(id); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if err := ib.MarkApplied(id); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	if err := ib.Reserve(id); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}
	if err := ib.Release(id); err != nil {
		t.Fatalf("release applied: %v", err)
	}
	rec, ok, err := ib.Lookup(id)
	if err != nil || !ok || rec.State != StateApplied {
		t.Fatalf("release must not clear applied state: %+v %v %v", rec, ok, err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	ib := openTestInbox(t)
	id := common.HexToHash("0x02")
	if err := ib.Reserve(id); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ib.Release(id); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := ib.Lookup(id); ok {
		t.Fatalf("expected reservation cleared")
	}
	if err := ib.Reserve(id); err != nil {
		t.Fatalf("retry reserve: %v", err)
	}
}

func TestStaleReservationIsTakenOver(t *testing.T) {
	ib := openTestInbox(t)
	id := common.HexToHash("0x03")
	start := time.Unix(1_700_000_000, 0)
	ib.now = func() time.Time { return start }
	if err := ib.Reserve(id); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	ib.now = func() time.Time { return start.Add(2 * time.Minute) }
	if err := ib.Reserve(id); err != nil {
		t.Fatalf("expected stale lease takeover, got %v", err)
	}
}
