// Package runtimebridge provides a safe Go surface over a reference-counted,
// dynamically typed foreign runtime guarded by a single global lock.
//
// The foreign runtime owns a heap of opaque objects. Every object carries a
// reference count and a dynamic type; every operation on the heap requires
// holding the runtime's one lock. This library encapsulates that raw contract
// behind tokens, owning references, and typed wrappers so that host code
// cannot touch the heap without the lock, cannot unbalance a reference count
// without deliberately reaching for the escape hatches, and cannot confuse
// one foreign type for another without a checked downcast.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	runtimebridge/       Root package with the Runtime boundary interface
//	├── bridge/          Access tokens, owning/borrowed references, typed
//	│                    wrappers (Str, Bytes) and the conversion protocol
//	├── heap/            Instrumented in-process runtime for tests and tools
//	├── engine/          wazero-backed runtime speaking the bridge ABI
//	├── errors/          Structured error types for debugging
//	└── cmd/inspect/     Interactive heap and reference-count inspector
//
// # Quick Start
//
// Attach to a runtime and move text across the boundary:
//
//	br, err := bridge.New(heap.New(nil), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = br.With(func(tok *bridge.Token) error {
//	    s := bridge.NewStr(tok, "ascii \U0001F408")
//	    defer s.Close(tok)
//
//	    text, err := s.Bind(tok).Text()
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(text)
//	    return nil
//	})
//
// # Locking Model
//
// The runtime has exactly one lock and no cancellation protocol. Acquiring
// blocks until the lock is free; a goroutine already holding the lock nests
// with Token.Nested rather than acquiring again. Tokens are the capability:
// every boundary operation takes one, directly or through a view that
// captured one, so a caller that compiles is a caller that holds the lock.
//
// # Reference Semantics
//
// Owning references (bridge.Ref, bridge.Owned) pair exactly one decrement
// with the increment they were created from. They may move between
// goroutines while the lock is not held. Borrowed views are scope-local:
// they are valid only until the token that produced them is released, and
// the release is checked at every use in lieu of a borrow checker.
//
// # Failure Model
//
// Recoverable failures (type mismatches, undecodable text, exceptions
// raised by the runtime) are ordinary error values from the errors package.
// Allocation exhaustion inside the runtime is not recoverable at the point
// it is detected and surfaces as a panic carrying *errors.FatalError.
package runtimebridge
