package state

import "time"

// SelfOriginatedValue wraps a self-originated key's current value
// together with the backoff state governing when it may next be
// (re-)advertised. Recovered from KvStore.h's SelfOriginatedValue
// (SPEC_FULL.md §3) as an explicit type rather than folding it into
// the KvStoreDb implementation, so the backoff state is independently
// testable.
type SelfOriginatedValue struct {
	Value Value
	// Persisted marks a key set via persist semantics: when a full
	// sync shows a peer holding a version at or above ours, KvStoreDb
	// bumps past it and re-advertises the key, as opposed to a
	// one-shot set that is never reasserted.
	Persisted bool
	// KeyBackoff governs advertising content changes for this key.
	// AdvertiseBatch checks it for every dirty key, persisted or not.
	KeyBackoff ExponentialBackoff
	// TtlBackoff is kept for TTL-only refreshes of this key; KvStoreDb
	// sends no TTL-only refreshes and never reads it.
	TtlBackoff ExponentialBackoff
}

// ExponentialBackoff is a minimal exponential backoff clock: each
// ReportError doubles the wait (capped at Max); ReportSuccess resets
// to Min.
type ExponentialBackoff struct {
	Min, Max time.Duration
	current  time.Duration
	until    time.Time
}

// NewExponentialBackoff constructs a backoff clock starting at min.
func NewExponentialBackoff(min, max time.Duration) ExponentialBackoff {
	return ExponentialBackoff{Min: min, Max: max, current: min}
}

// CanTryNow reports whether enough time has elapsed to attempt again.
func (b *ExponentialBackoff) CanTryNow(now time.Time) bool {
	return !now.Before(b.until)
}

// ReportError doubles the current wait (capped at Max) and arms the
// next deadline from now.
func (b *ExponentialBackoff) ReportError(now time.Time) {
	if b.current == 0 {
		b.current = b.Min
	}
	b.until = now.Add(b.current)
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
}

// ReportSuccess resets the wait back to Min.
func (b *ExponentialBackoff) ReportSuccess(now time.Time) {
	b.current = b.Min
	b.until = now
}
