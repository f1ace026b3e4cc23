package bridge

import (
	"strings"
	"unicode/utf8"
	"unsafe"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Str is a borrowed view of a foreign text object. The foreign storage
// canonically holds UTF-8 but the runtime does not enforce that, so the
// validating accessors exist alongside the raw byte view.
type Str struct {
	obj Borrowed
}

func (Str) typeName() string            { return runtimebridge.TypeStr }
func (Str) wrapBorrowed(v Borrowed) Str { return Str{obj: v} }

// NewStr copies text into a fresh foreign text object and returns the
// owning reference. Go strings are conventionally UTF-8 and the bytes are
// stored verbatim. Allocation exhaustion in the runtime is fatal.
func NewStr(tok *Token, text string) *Owned[Str] {
	tok.ensureLive("create str")
	raw := tok.br.rt.NewText([]byte(text))
	if raw == 0 {
		panic(errors.Fatal("new_str", "runtime failed to allocate %d bytes", len(text)))
	}
	return &Owned[Str]{ref: newRef(tok.br, raw)}
}

// StrFromEncoded builds a text object from the bytes of src interpreted
// per the named encoding and error policy. Both names pass through to the
// runtime opaquely; which encodings and policies exist is the runtime's
// business, and its complaints come back as foreign errors.
func StrFromEncoded(src Borrowed, encoding, policy string) (*Owned[Str], error) {
	src.ensure("decode")
	br := src.tok.br

	raw := br.rt.DecodeText(src.raw, encoding, policy)
	if raw == 0 {
		if err := br.LastError(src.tok); err != nil {
			return nil, err
		}
		panic(errors.Fatal("decode_text", "runtime failed without a pending exception"))
	}
	return &Owned[Str]{ref: newRef(br, raw)}, nil
}

// Object returns the untyped view of the same object.
func (s Str) Object() Borrowed { return s.obj }

// Owned promotes the view to an owning typed reference.
func (s Str) Owned() *Owned[Str] { return &Owned[Str]{ref: s.obj.Owned()} }

// Bytes returns the canonical byte view of the text without copying. The
// slice aliases foreign storage: it is valid while the view's token lives
// and must not be mutated.
func (s Str) Bytes() []byte {
	s.obj.ensure("byte view")
	data := s.obj.rt().TextUTF8(s.obj.raw)
	if data == nil {
		panic("bridge: runtime returned no byte view for a text object")
	}
	return data
}

// Text validates the canonical bytes as UTF-8 and returns them as a
// string without copying, under the same lifetime rules as Bytes. Invalid
// storage yields a decode error carrying the first invalid offset and the
// offending byte.
func (s Str) Text() (string, error) {
	data := s.Bytes()
	if i, ok := firstInvalid(data); ok {
		return "", errors.Decode(errors.PhaseDecode, i, data[i:i+1])
	}
	return unsafeString(data), nil
}

// TextLossy returns the text with each maximal ill-formed sequence
// replaced by a single U+FFFD: a truncated multi-byte prefix becomes one
// marker, a stray continuation byte one of its own. Valid storage comes
// back without copying.
func (s Str) TextLossy() string {
	data := s.Bytes()
	if utf8.Valid(data) {
		return unsafeString(data)
	}

	var b strings.Builder
	b.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			i += invalidLen(data, i)
			continue
		}
		b.Write(data[i : i+size])
		i += size
	}
	return b.String()
}

func firstInvalid(data []byte) (int, bool) {
	if utf8.Valid(data) {
		return 0, false
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i, true
		}
		i += size
	}
	return 0, false
}

// invalidLen reports the length of the maximal ill-formed subsequence
// starting at i: the longest prefix of data[i:] that could still grow
// into a well-formed sequence, or one byte when even the first cannot.
// The caller guarantees data[i:] does not begin a well-formed sequence.
func invalidLen(data []byte, i int) int {
	var want int    // continuation bytes after the lead
	var lo, hi byte // accepted range for the first continuation
	switch b0 := data[i]; {
	case b0 >= 0xc2 && b0 <= 0xdf:
		want, lo, hi = 1, 0x80, 0xbf
	case b0 == 0xe0:
		want, lo, hi = 2, 0xa0, 0xbf
	case b0 >= 0xe1 && b0 <= 0xec:
		want, lo, hi = 2, 0x80, 0xbf
	case b0 == 0xed:
		// The surrogate half-range never continues.
		want, lo, hi = 2, 0x80, 0x9f
	case b0 >= 0xee && b0 <= 0xef:
		want, lo, hi = 2, 0x80, 0xbf
	case b0 == 0xf0:
		want, lo, hi = 3, 0x90, 0xbf
	case b0 >= 0xf1 && b0 <= 0xf3:
		want, lo, hi = 3, 0x80, 0xbf
	case b0 == 0xf4:
		want, lo, hi = 3, 0x80, 0x8f
	default:
		// Stray continuation byte, or a byte no sequence starts with.
		return 1
	}
	n := 1
	for n <= want {
		if i+n >= len(data) {
			return n
		}
		b := data[i+n]
		if n > 1 {
			lo, hi = 0x80, 0xbf
		}
		if b < lo || b > hi {
			return n
		}
		n++
	}
	return n
}

// unsafeString reinterprets validated foreign storage as a string without
// copying. The caller guarantees the backing object outlives the string's
// use, which the token binding of every call site provides.
func unsafeString(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(data), len(data))
}
