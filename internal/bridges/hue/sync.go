package hue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy for transport failures: a constant pause between
// attempts and a bounded number of consecutive failures before the
// sync goes terminal. Upstream errors never touch the budget.
const (
	defaultRetryInterval = 10 * time.Second
	maxSyncRetries       = 10
	minSyncInterval      = 3 * time.Second
)

// syncLoop polls the bridge and applies each payload to the tree. The
// first poll fires immediately; afterwards the configured interval
// paces the loop. A zero interval means a single synchronization.
func (b *Bridge) syncLoop() {
	defer b.wg.Done()

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(b.retryInterval), maxSyncRetries)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-timer.C:
		}

		delay, again := b.syncOnce(policy)
		if !again {
			return
		}
		timer.Reset(delay)
	}
}

// syncOnce runs one cycle and returns the delay before the next one.
// again=false ends the loop: the single shot finished, or the sync went
// terminal.
func (b *Bridge) syncOnce(policy backoff.BackOff) (delay time.Duration, again bool) {
	payload, err := b.client.FetchAll(b.ctx)
	if err == nil {
		policy.Reset()
		b.applyPayload(payload)
		b.finishCycle()
		if b.interval <= 0 {
			b.logInfo("single synchronization complete")
			return 0, false
		}
		return b.interval, true
	}

	if errors.Is(err, ErrMissingCredentials) {
		// No amount of retrying fixes an unpaired bridge.
		b.logError("sync cannot run without credentials", err)
		b.markTerminal(err.Error())
		return 0, false
	}

	if errors.Is(err, ErrBridgeResponse) || errors.Is(err, ErrInvalidResponse) {
		b.logWarn("bridge answered with an error, skipping cycle", "error", err)
		b.markSyncing(false)
		if b.interval <= 0 {
			return 0, false
		}
		return b.interval, true
	}

	next := policy.NextBackOff()
	if next == backoff.Stop {
		b.logError("sync retry budget exhausted", ErrSyncTerminated)
		b.markTerminal(ErrSyncTerminated.Error())
		return 0, false
	}
	b.logWarn("bridge unreachable, retrying", "error", err, "retry_in", next.String())
	b.markSyncing(false)
	return next, true
}

// finishCycle records a successful cycle and refreshes the health
// reporter's appliance count.
func (b *Bridge) finishCycle() {
	b.syncMu.Lock()
	b.syncing = true
	b.lastSync = time.Now()
	b.syncMu.Unlock()

	count := b.applianceCount()
	if b.health != nil {
		b.health.SetApplianceCount(count)
	}
	b.logDebug("sync cycle complete", "appliances", count)
}

// markSyncing flips the sync indicator in both the metrics and the
// tree.
func (b *Bridge) markSyncing(active bool) {
	b.syncMu.Lock()
	b.syncing = active
	b.syncMu.Unlock()
	b.write("info.syncing", lookupDescriptor("info.syncing").meta(false), active)
}

// markTerminal puts the sync into its terminal state. Only a restart
// leaves it.
func (b *Bridge) markTerminal(reason string) {
	b.syncMu.Lock()
	b.terminal = true
	b.terminalReason = reason
	b.syncing = false
	b.syncMu.Unlock()

	b.write("info.syncing", lookupDescriptor("info.syncing").meta(false), false)
	if b.health != nil {
		b.health.SetTerminal(reason)
	}
}
