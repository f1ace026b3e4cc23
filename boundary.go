package runtimebridge

// Raw is an opaque handle to one foreign heap object. The zero value never
// names an object; boundary calls return 0 to signal failure.
type Raw uint64

// TypeID is a runtime-assigned descriptor for one foreign type. The zero
// value means the type is not known to the runtime.
type TypeID uint32

// Canonical type names every conforming runtime registers.
const (
	// TypeStr is the runtime's immutable text type. Its storage is a byte
	// sequence that canonically holds UTF-8 but may contain arbitrary bytes.
	TypeStr = "str"

	// TypeBytes is the runtime's raw byte buffer type. Length-delimited;
	// embedded zero bytes are data, not terminators.
	TypeBytes = "bytes"
)

// Runtime is the raw boundary to a foreign runtime. Implementations perform
// no locking of their own: every method assumes the caller holds the
// runtime's global lock, which the bridge package enforces by construction.
//
// Object-creating methods return a new strong reference (the caller owes one
// DecRef). A returned Raw of 0 means the operation failed; for NewText and
// NewBuffer that failure is allocation exhaustion, for DecodeText it means a
// pending exception was installed for Exception to fetch.
type Runtime interface {
	// NewText copies data into a fresh text object. The bytes are stored
	// verbatim; they are not validated as UTF-8.
	NewText(data []byte) Raw

	// NewBuffer copies data into a fresh byte buffer object.
	NewBuffer(data []byte) Raw

	// IncRef increments the object's reference count.
	IncRef(obj Raw)

	// DecRef decrements the object's reference count, destroying the object
	// when it reaches zero.
	DecRef(obj Raw)

	// LookupType resolves a type name to its descriptor, 0 if unknown.
	LookupType(name string) TypeID

	// IsInstance reports whether obj is an instance of the given type.
	IsInstance(obj Raw, typ TypeID) bool

	// TextUTF8 returns the canonical byte view of a text object. For any obj
	// that passed IsInstance against TypeStr the result is non-nil, even when
	// empty; the view is valid only while the lock is held and the object is
	// alive.
	TextUTF8(obj Raw) []byte

	// BufferBytes returns the storage of a byte buffer object under the same
	// validity rules as TextUTF8.
	BufferBytes(obj Raw) []byte

	// DecodeText builds a text object from the bytes of src interpreted per
	// the named encoding and error policy. Both names are opaque to the
	// caller and resolved by the runtime.
	DecodeText(src Raw, encoding, policy string) Raw

	// Exception returns the pending exception and clears it, or nil when
	// none is pending.
	Exception() error

	// Raise installs err as the pending exception, replacing any prior one.
	Raise(err error)
}

// VersionReporter is optionally implemented by runtimes that can report
// their version as a semver string. The bridge refuses to attach to a
// reported version outside its supported window.
type VersionReporter interface {
	RuntimeVersion() string
}

// TypeNamer is optionally implemented by runtimes that can report the type
// name of a live object. The bridge uses it to sharpen error messages; it
// never affects semantics.
type TypeNamer interface {
	TypeNameOf(obj Raw) string
}
