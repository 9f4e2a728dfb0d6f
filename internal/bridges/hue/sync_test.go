package hue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// ============================================================
// Polling
// ============================================================

func TestSyncLoopRepeats(t *testing.T) {
	b, store, fake := newTestBridge(t, nil)
	b.interval = 20 * time.Millisecond

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	waitFor(t, 2*time.Second, func() bool { return fake.fetchCount() >= 2 },
		"sync loop did not repeat")

	m := b.Metrics()
	if !m.Syncing {
		t.Error("Syncing = false, want true while polling succeeds")
	}
	if m.LastSync == nil {
		t.Error("LastSync = nil, want a timestamp")
	}
	assertValue(t, store, "info.syncing", true)
}

func TestSyncSingleShot(t *testing.T) {
	cfg := newTestConfig()
	cfg.Sync.Interval = 0
	b, store, fake := newTestBridge(t, cfg)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	waitFor(t, 2*time.Second, func() bool { return fake.fetchCount() == 1 },
		"single-shot sync never ran")

	time.Sleep(50 * time.Millisecond)
	if got := fake.fetchCount(); got != 1 {
		t.Errorf("fetches = %d, want exactly 1 for a zero interval", got)
	}
	assertValue(t, store, "lights.kitchen-spot-001.action.on", true)
}

// ============================================================
// Failure handling
// ============================================================

func TestSyncRetryBudgetExhausted(t *testing.T) {
	b, store, fake := newTestBridge(t, nil)
	b.retryInterval = time.Millisecond
	fake.fetchErr = fmt.Errorf("%w: dial tcp 192.168.1.2:80", ErrConnectionRefused)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	waitFor(t, 2*time.Second, func() bool { return b.Metrics().Terminal },
		"sync never went terminal")

	if got := fake.fetchCount(); got != 11 {
		t.Errorf("fetches = %d, want 11 (initial try plus 10 retries)", got)
	}
	m := b.Metrics()
	if m.Syncing {
		t.Error("Syncing = true, want false in the terminal state")
	}
	if m.TerminalReason != ErrSyncTerminated.Error() {
		t.Errorf("TerminalReason = %q, want %q", m.TerminalReason, ErrSyncTerminated.Error())
	}
	assertValue(t, store, "info.syncing", false)
}

func TestSyncUpstreamErrorKeepsSchedule(t *testing.T) {
	b, store, fake := newTestBridge(t, nil)
	b.interval = 5 * time.Millisecond
	fake.fetchErr = fmt.Errorf("%w: link button not pressed", ErrBridgeResponse)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	// Well past the transport retry budget: upstream errors never
	// consume it.
	waitFor(t, 2*time.Second, func() bool { return fake.fetchCount() >= 12 },
		"loop stopped rescheduling on upstream errors")

	m := b.Metrics()
	if m.Terminal {
		t.Error("Terminal = true, want false for upstream errors")
	}
	if m.Syncing {
		t.Error("Syncing = true, want false while cycles are skipped")
	}
	assertValue(t, store, "info.syncing", false)
}

func TestSyncMissingCredentialsTerminal(t *testing.T) {
	b, _, fake := newTestBridge(t, nil)
	fake.fetchErr = ErrMissingCredentials

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	waitFor(t, 2*time.Second, func() bool { return b.Metrics().Terminal },
		"sync never went terminal")

	if got := fake.fetchCount(); got != 1 {
		t.Errorf("fetches = %d, want 1 (no retries without credentials)", got)
	}
	if got := b.Metrics().TerminalReason; got != ErrMissingCredentials.Error() {
		t.Errorf("TerminalReason = %q, want %q", got, ErrMissingCredentials.Error())
	}
}

func TestSyncRecoversAfterTransientFailure(t *testing.T) {
	b, store, fake := newTestBridge(t, nil)
	b.interval = 5 * time.Millisecond
	b.retryInterval = 10 * time.Millisecond

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	// A healthy cycle first, so the indicator has something to drop.
	waitFor(t, 2*time.Second, func() bool { return b.Metrics().Syncing },
		"first cycle never completed")

	fake.setFetchError(fmt.Errorf("%w: dial tcp 192.168.1.2:80", ErrConnectionRefused))
	before := fake.fetchCount()
	waitFor(t, 2*time.Second, func() bool { return fake.fetchCount() >= before+2 },
		"retries never ran")

	// Mid-budget the tree and the metrics both report the sync as down,
	// not just the terminal state afterwards.
	if b.Metrics().Syncing {
		t.Error("Syncing = true during transport retries, want false")
	}
	assertValue(t, store, "info.syncing", false)

	fake.setFetchError(nil)
	waitFor(t, 2*time.Second, func() bool { return b.Metrics().Syncing },
		"sync did not recover once the bridge came back")

	if b.Metrics().Terminal {
		t.Error("Terminal = true, want false after recovery")
	}
	assertValue(t, store, "lights.kitchen-spot-001.action.on", true)
}
