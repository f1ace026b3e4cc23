package bridge

import (
	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// TypedView is the constraint for borrowed views that carry a checked
// foreign type, such as Str and Bytes. Its methods are unexported: a typed
// view is a claim about what the runtime said, so only this package mints
// them.
type TypedView[T any] interface {
	wrapBorrowed(Borrowed) T
	typeName() string
}

// Owned is an owning reference whose foreign type has been established,
// either at creation or by a checked downcast. Like Ref, it owes exactly
// one decrement and may travel between goroutines while the lock is free.
type Owned[T TypedView[T]] struct {
	ref *Ref
}

// Bind produces the typed borrowed view, valid until tok is released.
func (o *Owned[T]) Bind(tok *Token) T {
	var view T
	return view.wrapBorrowed(o.ref.Bind(tok))
}

// Clone returns a second owning reference to the same object.
func (o *Owned[T]) Clone(tok *Token) *Owned[T] {
	return &Owned[T]{ref: o.ref.Clone(tok)}
}

// Close pays the reference's one decrement.
func (o *Owned[T]) Close(tok *Token) error {
	return o.ref.Close(tok)
}

// Ref returns the untyped owning reference. The type claim is not lost;
// the same Ref backs both.
func (o *Owned[T]) Ref() *Ref {
	return o.ref
}

// Downcast asks the runtime whether obj is an instance of T's foreign type
// and reinterprets the view at no cost if so. The failure is a type
// mismatch naming both sides; nothing about the object changes either way.
func Downcast[T TypedView[T]](obj Borrowed) (T, error) {
	var view T
	obj.ensure("downcast")

	name := view.typeName()
	rt := obj.rt()
	id := rt.LookupType(name)
	if id == 0 {
		return view, errors.New(errors.PhaseDowncast, errors.KindUnsupported).
			Want(name).
			Detail("runtime does not register type %q", name).
			Build()
	}
	if !rt.IsInstance(obj.raw, id) {
		return view, errors.TypeMismatch(errors.PhaseDowncast, name, describeType(obj))
	}
	return view.wrapBorrowed(obj), nil
}

// describeType names obj's type as well as the runtime allows: directly
// when it can report names, by probing the canonical types otherwise.
func describeType(v Borrowed) string {
	rt := v.rt()
	if tn, ok := rt.(runtimebridge.TypeNamer); ok {
		if name := tn.TypeNameOf(v.raw); name != "" {
			return name
		}
	}
	for _, name := range []string{runtimebridge.TypeStr, runtimebridge.TypeBytes} {
		if id := rt.LookupType(name); id != 0 && rt.IsInstance(v.raw, id) {
			return name
		}
	}
	return "object"
}
