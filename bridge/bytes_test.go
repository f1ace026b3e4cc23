package bridge

import (
	"bytes"
	"testing"

	"github.com/wippyai/runtime-bridge/errors"
)

func TestBytes_RoundTrip(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		// Buffers are length-delimited: zero bytes are data
		data := []byte{0xde, 0x00, 0xad, 0x00, 0x00, 0xbe}
		b := NewBytes(tok, data)
		defer b.Close(tok)

		view := b.Bind(tok)
		if got := view.Bytes(); !bytes.Equal(got, data) {
			t.Fatalf("Expected % x, got % x", data, got)
		}
		if view.Len() != len(data) {
			t.Fatalf("Expected length %d, got %d", len(data), view.Len())
		}
		return nil
	})
}

func TestBytes_Empty(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		b := NewBytes(tok, nil)
		defer b.Close(tok)

		view := b.Bind(tok)
		if view.Len() != 0 {
			t.Fatalf("Expected empty buffer, got %d bytes", view.Len())
		}
		if view.Bytes() == nil {
			t.Fatal("Empty storage must still be a byte view")
		}
		return nil
	})
}

func TestBytes_Downcast(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		n := RefFromOwned(tok, h.NewInt(42))
		defer n.Close(tok)

		// The runtime names the actual type in the mismatch
		_, err := Downcast[Bytes](n.Bind(tok))
		if err == nil {
			t.Fatal("Expected type mismatch")
		}
		be, ok := err.(*errors.Error)
		if !ok || be.Kind != errors.KindTypeMismatch {
			t.Fatalf("Expected type mismatch kind, got %v", err)
		}
		if be.Want != "bytes" || be.Got != "int" {
			t.Fatalf("Expected want bytes got int, got want %s got %s", be.Want, be.Got)
		}

		s := NewStr(tok, "not a buffer")
		defer s.Close(tok)
		if _, err := Downcast[Bytes](s.Bind(tok).Object()); err == nil {
			t.Fatal("Expected type mismatch for text object")
		}
		return nil
	})
}

// dictView claims a type the heap never registers.
type dictView struct{ obj Borrowed }

func (dictView) typeName() string                 { return "dict" }
func (dictView) wrapBorrowed(v Borrowed) dictView { return dictView{obj: v} }

func TestDowncast_UnregisteredType(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		s := NewStr(tok, "x")
		defer s.Close(tok)

		_, err := Downcast[dictView](s.Bind(tok).Object())
		if err == nil {
			t.Fatal("Expected error for unregistered type")
		}
		if !errors.IsKind(err, errors.KindUnsupported) {
			t.Fatalf("Expected unsupported kind, got %v", err)
		}
		return nil
	})
}
