// Package heap provides an in-process foreign runtime with observable
// reference counts.
//
// The bridge normally fronts a real runtime living elsewhere. For tests,
// benchmarks and tooling that need to see every reference-count movement,
// this package implements the same boundary over a plain Go slot table:
// reference-counted entries, a free list that recycles destroyed slots, a
// type registry, a pending-exception register and a byte-oriented codec
// layer.
//
// # Object Lifecycle
//
// Objects are created with one reference and destroyed when the count
// reaches zero:
//
//	h := heap.New(nil)
//
//	obj := h.NewText([]byte("hi"))  // refcount 1
//	h.IncRef(obj)                   // refcount 2
//	h.DecRef(obj)                   // refcount 1
//	h.DecRef(obj)                   // destroyed, slot recycled
//
// Using a handle after destruction panics. The heap exists to catch exactly
// that class of bug, so it fails loudly rather than returning garbage.
//
// # Observers
//
// Register observers to record lifecycle events. Subscribe returns the
// func that removes the observer again:
//
//	cancel := h.Subscribe(heap.ObserverFunc(func(e heap.Event) {
//	    log.Printf("handle %d refcount -> %d", e.Handle, e.RefCount)
//	}))
//	defer cancel()
//
// Balance checks are one call:
//
//	if err := h.CheckLeaks(); err != nil {
//	    t.Fatal(err) // lists surviving objects grouped by type
//	}
//
// # Codecs
//
// DecodeText interprets a byte buffer per an encoding name and error
// policy. The UTF families, Latin-1, ASCII and the single-byte charmaps
// known to the IANA index support strict, replace and ignore with exact
// byte offsets on strict failures; other encodings resolved through
// x/text decode with replacement only.
//
// # Concurrency
//
// The heap performs no locking, exactly like the runtime it stands in for.
// All access must be serialized by the bridge's lock; direct use is
// single-goroutine only.
package heap
