package core

import (
	"context"
	"testing"
	"time"
)

func TestTargetMonotonicity(t *testing.T) {
	base, err := Target(1000, 1000, 1000, 300)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if base <= 0 {
		t.Fatalf("target should be positive, got %d", base)
	}

	larger, err := Target(2000, 1000, 1000, 300)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if larger >= base {
		t.Errorf("a larger payload should produce a smaller (harder) target: base=%d larger=%d", base, larger)
	}

	longerTTL, err := Target(1000, 1000, 1000, 3000)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if longerTTL >= base {
		t.Errorf("a longer TTL should produce a smaller (harder) target: base=%d longerTTL=%d", base, longerTTL)
	}
}

func TestTargetRejectsZeroRates(t *testing.T) {
	if _, err := Target(1000, 0, 1000, 300); err == nil {
		t.Errorf("expected error for zero nonceTrialsPerByte")
	}
	if _, err := Target(1000, 1000, 0, 300); err == nil {
		t.Errorf("expected error for zero extraBytes")
	}
}

func TestEffectiveTTLClampsToMinimum(t *testing.T) {
	now := int64(1000)
	if got := EffectiveTTL(now+60, now); got != MinimumTTLSeconds {
		t.Errorf("EffectiveTTL should clamp short TTLs to the minimum, got %d", got)
	}
	if got := EffectiveTTL(now+10000, now); got != 10000 {
		t.Errorf("EffectiveTTL should pass through long TTLs unclamped, got %d", got)
	}
}

func TestDoPOWThenCheckPOW(t *testing.T) {
	payload := []byte("a small object payload used only for testing")
	now := time.Now().Unix()
	expires := now + 600

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nonce, err := DoPOW(ctx, payload, expires, now, 1000, 1000, 2)
	if err != nil {
		t.Fatalf("DoPOW: %v", err)
	}

	ok, err := CheckPOW(payload, nonce, expires, now, 1000, 1000)
	if err != nil {
		t.Fatalf("CheckPOW: %v", err)
	}
	if !ok {
		t.Errorf("CheckPOW should accept the nonce DoPOW produced")
	}
}

func TestCheckPOWRejectsWrongNonce(t *testing.T) {
	payload := []byte("another small payload")
	now := time.Now().Unix()
	expires := now + 600

	ok, err := CheckPOW(payload, 0, expires, now, 1000, 1000)
	if err == nil && ok {
		t.Errorf("nonce 0 should not satisfy a realistic target")
	}
}

func TestDoPOWCancellation(t *testing.T) {
	payload := make([]byte, 1)
	now := time.Now().Unix()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := DoPOW(ctx, payload, now+300, now, 1_000_000_000, 1_000_000_000, 1); err == nil {
		t.Errorf("expected DoPOW to report cancellation when ctx is already done")
	}
}

// TestDoPOWCancellationWithMultipleWorkers guards against a cancellation
// check keyed off the absolute nonce value: with stride==workers, a
// worker whose start offset shares a large common factor with the batch
// size may never land on a checkpoint and so never observe ctx.Done(). A
// hard target keeps every worker busy long enough for a non-cooperating
// worker to blow past the test deadline if the bug regresses.
func TestDoPOWCancellationWithMultipleWorkers(t *testing.T) {
	payload := make([]byte, 1)
	now := time.Now().Unix()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		_, _ = DoPOW(ctx, payload, now+300, now, 1_000_000_000, 1_000_000_000, 8)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("DoPOW with 8 workers did not observe cancellation promptly")
	}
}
