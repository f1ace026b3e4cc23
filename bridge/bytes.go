package bridge

import (
	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Bytes is a borrowed view of a foreign byte buffer. Storage is
// length-delimited: embedded zero bytes are data.
type Bytes struct {
	obj Borrowed
}

func (Bytes) typeName() string              { return runtimebridge.TypeBytes }
func (Bytes) wrapBorrowed(v Borrowed) Bytes { return Bytes{obj: v} }

// NewBytes copies data into a fresh foreign buffer object and returns the
// owning reference. Allocation exhaustion in the runtime is fatal.
func NewBytes(tok *Token, data []byte) *Owned[Bytes] {
	tok.ensureLive("create bytes")
	raw := tok.br.rt.NewBuffer(data)
	if raw == 0 {
		panic(errors.Fatal("new_bytes", "runtime failed to allocate %d bytes", len(data)))
	}
	return &Owned[Bytes]{ref: newRef(tok.br, raw)}
}

// Object returns the untyped view of the same object.
func (b Bytes) Object() Borrowed { return b.obj }

// Owned promotes the view to an owning typed reference.
func (b Bytes) Owned() *Owned[Bytes] { return &Owned[Bytes]{ref: b.obj.Owned()} }

// Bytes returns the buffer's storage without copying. The slice aliases
// foreign storage: it is valid while the view's token lives and must not
// be mutated.
func (b Bytes) Bytes() []byte {
	b.obj.ensure("byte view")
	data := b.obj.rt().BufferBytes(b.obj.raw)
	if data == nil {
		panic("bridge: runtime returned no storage for a buffer object")
	}
	return data
}

// Len reports the buffer's length in bytes.
func (b Bytes) Len() int {
	return len(b.Bytes())
}
