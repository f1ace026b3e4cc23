package bridge

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Ref is an owning reference: it holds exactly one strong reference to a
// foreign object and owes the runtime exactly one decrement, paid by Close.
//
// A Ref may be stored and moved between goroutines while the lock is not
// held. Every operation that touches the object again demands a token.
// The foreign object is never reclaimed by the garbage collector; a Ref
// dropped without Close leaks its object, which Config.TrackLeaks reports.
type Ref struct {
	br     *Bridge
	raw    runtimebridge.Raw
	closed atomic.Bool
}

func newRef(br *Bridge, raw runtimebridge.Raw) *Ref {
	r := &Ref{br: br, raw: raw}
	if br.cfg.TrackLeaks {
		runtime.SetFinalizer(r, func(leaked *Ref) {
			if !leaked.closed.Load() {
				Logger().Warn("owning reference collected without close",
					zap.Uint64("handle", uint64(leaked.raw)))
			}
		})
	}
	return r
}

// RefFromOwned adopts a strong reference the runtime has already counted,
// typically the result of a boundary call that transfers ownership. The
// caller's obligation to decrement moves into the Ref. A zero handle here
// means the producing call failed out of memory, which is fatal.
func RefFromOwned(tok *Token, raw runtimebridge.Raw) *Ref {
	tok.ensureLive("adopt owned handle")
	if raw == 0 {
		panic(errors.Fatal("adopt", "owned handle is zero"))
	}
	return newRef(tok.br, raw)
}

// RefFromBorrowed builds an owning reference from a handle the caller does
// not own, incrementing the count. The source keeps its own reference.
func RefFromBorrowed(tok *Token, raw runtimebridge.Raw) *Ref {
	tok.ensureLive("adopt borrowed handle")
	if raw == 0 {
		panic(errors.Fatal("adopt", "borrowed handle is zero"))
	}
	tok.br.rt.IncRef(raw)
	return newRef(tok.br, raw)
}

// Clone returns a second owning reference to the same object. Both must be
// closed independently.
func (r *Ref) Clone(tok *Token) *Ref {
	r.ensureOpen("clone")
	r.br.check(tok, "clone")
	r.br.rt.IncRef(r.raw)
	return newRef(r.br, r.raw)
}

// Close pays the reference's one decrement. Closing twice returns an error
// and does not decrement again, so a decrement can never be paid twice.
func (r *Ref) Close(tok *Token) error {
	r.br.check(tok, "close")
	if r.closed.Swap(true) {
		return errors.Closed(errors.PhaseRuntime, "reference")
	}
	runtime.SetFinalizer(r, nil)
	r.br.rt.DecRef(r.raw)
	return nil
}

// Bind produces a borrowed view of the object, valid until tok is released.
func (r *Ref) Bind(tok *Token) Borrowed {
	r.ensureOpen("bind")
	r.br.check(tok, "bind")
	return Borrowed{raw: r.raw, tok: tok}
}

// Raw exposes the underlying handle for interop with runtime-specific
// calls. The handle stays owned by the Ref; do not decrement it.
func (r *Ref) Raw() runtimebridge.Raw {
	r.ensureOpen("raw access")
	return r.raw
}

func (r *Ref) ensureOpen(op string) {
	if r.closed.Load() {
		panic(fmt.Sprintf("bridge: %s on a closed reference", op))
	}
}

// Borrowed is a non-owning view of a foreign object, bound to the token
// that produced it. It is a plain value: copying it is free and changes
// nothing about reference counts.
//
// The binding is the safety: a Borrowed must not outlive its token, and
// every access re-checks that the token is still live. In a language with
// borrow checking the check would be static; here it is a defensive panic.
type Borrowed struct {
	raw runtimebridge.Raw
	tok *Token
}

// Is reports whether two views name the same foreign object. This is
// pointer identity, not value equality.
func (v Borrowed) Is(other Borrowed) bool {
	v.ensure("identity check")
	other.ensure("identity check")
	return v.raw == other.raw
}

// Owned promotes the view to an owning reference by incrementing the
// count. The view itself remains borrowed.
func (v Borrowed) Owned() *Ref {
	v.ensure("promote")
	v.tok.br.rt.IncRef(v.raw)
	return newRef(v.tok.br, v.raw)
}

// Raw exposes the underlying handle. The same aliasing rules as the view
// itself apply: it is only meaningful while the token lives.
func (v Borrowed) Raw() runtimebridge.Raw {
	v.ensure("raw access")
	return v.raw
}

// Token returns the token this view is bound to.
func (v Borrowed) Token() *Token {
	return v.tok
}

func (v Borrowed) ensure(op string) {
	if v.tok == nil {
		panic(fmt.Sprintf("bridge: %s on a zero borrowed reference", op))
	}
	if v.tok.released.Load() {
		panic(fmt.Sprintf("bridge: %s on a borrowed reference that outlived its access token", op))
	}
}

func (v Borrowed) rt() runtimebridge.Runtime {
	return v.tok.br.rt
}
