package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseAttach   Phase = "attach"   // runtime attachment and version gating
	PhaseCreate   Phase = "create"   // foreign object construction
	PhaseDowncast Phase = "downcast" // typed reinterpretation checks
	PhaseDecode   Phase = "decode"   // foreign bytes to host text
	PhaseConvert  Phase = "convert"  // host value conversion
	PhaseRuntime  Phase = "runtime"  // runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch Kind = "type_mismatch"
	KindDecode       Kind = "decode"
	KindForeign      Kind = "foreign"
	KindClosedRef    Kind = "closed_ref"
	KindUnsupported  Kind = "unsupported"
	KindVersion      Kind = "version"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Want     string // expected foreign type name
	Got      string // actual foreign or host type name
	Category string // foreign exception class, e.g. "TypeError"
	Detail   string
	Offset   int    // byte offset of the first invalid unit (KindDecode only)
	Data     []byte // offending bytes (KindDecode only)
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Kind == KindDecode {
		fmt.Fprintf(&b, " at byte %d", e.Offset)
	}

	if e.Category != "" {
		b.WriteString(": ")
		b.WriteString(e.Category)
	}

	if e.Want != "" || e.Got != "" {
		b.WriteString(": ")
		if e.Want != "" && e.Got != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
			b.WriteString(", got ")
			b.WriteString(e.Got)
		} else if e.Want != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
		} else {
			b.WriteString("got ")
			b.WriteString(e.Got)
		}
	}

	if e.Detail != "" {
		if e.Category != "" || e.Want != "" || e.Got != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Want sets the expected type name
func (b *Builder) Want(t string) *Builder {
	b.err.Want = t
	return b
}

// Got sets the actual type name
func (b *Builder) Got(t string) *Builder {
	b.err.Got = t
	return b
}

// Category sets the foreign exception class
func (b *Builder) Category(c string) *Builder {
	b.err.Category = c
	return b
}

// Offset sets the byte offset of the first invalid unit
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Data sets the offending bytes, truncated to a short preview
func (b *Builder) Data(data []byte) *Builder {
	b.err.Data = preview(data)
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// preview copies at most 32 of the offending bytes. A captured error is
// inspected after its lock scope ends, so Data never aliases the storage
// it was read from.
func preview(data []byte) []byte {
	n := len(data)
	if n > 32 {
		n = 32
	}
	return append([]byte(nil), data[:n]...)
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTypeMismatch,
		Want:  want,
		Got:   got,
	}
}

// Decode creates a decode error pointing at the first invalid byte
func Decode(phase Phase, offset int, data []byte) *Error {
	p := preview(data)
	return &Error{
		Phase:  phase,
		Kind:   KindDecode,
		Offset: offset,
		Data:   p,
		Detail: fmt.Sprintf("invalid byte sequence %#x", p),
	}
}

// Foreign creates an error carrying a foreign exception
func Foreign(phase Phase, category, message string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindForeign,
		Category: category,
		Detail:   message,
	}
}

// Closed creates an error for operations on released references
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosedRef,
		Detail: fmt.Sprintf("%s already closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Version creates a version gate error
func Version(got, min, max string) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindVersion,
		Got:    got,
		Detail: fmt.Sprintf("runtime version outside supported window [%s, %s)", min, max),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsKind reports whether err is or wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Foreignize shapes an arbitrary host error into the category and message a
// foreign runtime expects when the error is re-raised across the boundary.
// Decode errors keep their offset and offending bytes so a round trip through
// the runtime loses nothing.
func Foreignize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		switch e.Kind {
		case KindForeign:
			return e
		case KindDecode:
			return &Error{
				Phase:    e.Phase,
				Kind:     KindForeign,
				Category: "UnicodeDecodeError",
				Detail:   e.Error(),
				Offset:   e.Offset,
				Data:     e.Data,
				Cause:    e,
			}
		case KindTypeMismatch:
			return &Error{
				Phase:    e.Phase,
				Kind:     KindForeign,
				Category: "TypeError",
				Detail:   e.Error(),
				Cause:    e,
			}
		}
	}
	return &Error{
		Phase:    PhaseRuntime,
		Kind:     KindForeign,
		Category: "RuntimeError",
		Detail:   err.Error(),
		Cause:    err,
	}
}

// FatalError is the panic value for failures the bridge cannot recover from,
// foremost allocation exhaustion inside the foreign runtime. It is never
// returned as an error value; it always travels through panic.
type FatalError struct {
	Op     string
	Detail string
}

// Error implements the error interface so recovered values still print well
func (e *FatalError) Error() string {
	var b strings.Builder
	b.WriteString("fatal: ")
	b.WriteString(e.Op)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Fatal creates a fatal error for use as a panic value
func Fatal(op, format string, args ...any) *FatalError {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &FatalError{Op: op, Detail: detail}
}

// IsFatal inspects a recovered panic value. Recover sites that want to fence
// a single boundary operation use it to tell bridge fatals from foreign bugs:
//
//	defer func() {
//	    if f, ok := errors.IsFatal(recover()); ok {
//	        report(f)
//	    }
//	}()
func IsFatal(recovered any) (*FatalError, bool) {
	f, ok := recovered.(*FatalError)
	return f, ok
}

// LeakedObject describes one foreign object still alive at a balance check
type LeakedObject struct {
	Handle   uint64
	Type     string // e.g., "str"
	RefCount int
}

// LeakError is returned when a reference-balance check finds objects that
// were created but never released
type LeakError struct {
	Objects []LeakedObject
}

// NewLeakError creates an error from the surviving objects
func NewLeakError(objects []LeakedObject) *LeakError {
	return &LeakError{Objects: objects}
}

func (e *LeakError) Error() string {
	if len(e.Objects) == 0 {
		return "[runtime] leak: no objects recorded"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d foreign object(s) still referenced:\n", len(e.Objects)))

	// Group by type for cleaner output
	byType := make(map[string][]LeakedObject)
	var typeOrder []string
	for _, obj := range e.Objects {
		if _, exists := byType[obj.Type]; !exists {
			typeOrder = append(typeOrder, obj.Type)
		}
		byType[obj.Type] = append(byType[obj.Type], obj)
	}

	for _, typ := range typeOrder {
		b.WriteString("\n  ")
		b.WriteString(typ)
		b.WriteString(":\n")
		for _, obj := range byType[typ] {
			b.WriteString(fmt.Sprintf("    - handle %d (refcount %d)\n", obj.Handle, obj.RefCount))
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *LeakError) Is(target error) bool {
	_, ok := target.(*LeakError)
	return ok
}
