// Package subscription implements one hop of a distributed, chained
// subscription: a Link. Every link belonging to one logical
// subscription shares a single chain ID; attach/detach on the owning
// store mutate the chain while preserving end-to-end delivery.
//
// Rather than a null-checked struct with a Role field, the role is
// derived from which of Upstream/Downstream are populated, the same
// style the original design notes ask for ("derive is_head,
// is_pass_through, is_terminal from the variant rather than from null
// checks"), adapted to Go by using nil-able pointers instead of a
// sum-type tag.
package subscription

import "sync/atomic"

// Callback delivers a change at path to a subscriber: either the user's
// own function (for a head link) or an auto-generated forwarder that
// re-emits an Event message upstream (for any link with an Upstream).
type Callback func(path string, value any)

// Link is one store's record of participation in a subscription chain.
type Link[R comparable] struct {
	Path       string
	ChainID    string
	Upstream   *R
	Downstream *R
	Callback   Callback
	Throttle   int

	counter atomic.Int64
}

// New builds a Link with its throttle counter primed so the first
// eligible delivery always fires.
func New[R comparable](path, chainID string, upstream, downstream *R, cb Callback, throttle int) *Link[R] {
	if throttle < 1 {
		throttle = 1
	}
	return &Link[R]{
		Path:       path,
		ChainID:    chainID,
		Upstream:   upstream,
		Downstream: downstream,
		Callback:   cb,
		Throttle:   throttle,
	}
}

// IsHead reports that this link has no upstream: it is where the
// user's own callback lives, whether or not it also has a downstream.
func (l *Link[R]) IsHead() bool { return l.Upstream == nil }

// IsTail reports that this link has no downstream: it is the terminus
// of the chain on this store, receiving set-local events directly or
// event messages over the wire.
func (l *Link[R]) IsTail() bool { return l.Downstream == nil }

// IsTerminal is an alias for IsTail: terminal means no downstream.
func (l *Link[R]) IsTerminal() bool { return l.IsTail() }

// IsPassThrough reports that this link relays on behalf of an upstream
// store: its Callback re-emits an Event rather than exposing anything
// to a local user.
func (l *Link[R]) IsPassThrough() bool { return l.Upstream != nil }

// ShouldDeliver advances the throttle counter and reports whether this
// delivery should actually fire the callback. Only terminal links (no
// downstream) throttle, including a tail that has an upstream; a link
// with a downstream delivers every event, since the throttle was
// already applied at the tail its subscribe message reached.
func (l *Link[R]) ShouldDeliver() bool {
	if !l.IsTerminal() {
		return true
	}
	n := l.counter.Add(1)
	return (n-1)%int64(l.Throttle) == 0
}
