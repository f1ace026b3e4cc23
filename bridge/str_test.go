package bridge

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/runtime-bridge/errors"
)

func TestStr_RoundTrip(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		for _, text := range []string{
			"",
			"ascii",
			"ascii 🐈",
			"哈哈🐈",
			"\U0001F30F",
			"with\x00zero",
		} {
			s := NewStr(tok, text)
			got, err := s.Bind(tok).Text()
			if err != nil {
				t.Fatalf("Text(%q) failed: %v", text, err)
			}
			if got != text {
				t.Fatalf("Expected %q, got %q", text, got)
			}
			if err := s.Close(tok); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
		}
		return nil
	})
}

func TestStr_Bytes(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		s := NewStr(tok, "ascii 🐈")
		defer s.Close(tok)

		got := s.Bind(tok).Bytes()
		want := []byte("ascii \xf0\x9f\x90\x88")
		if !bytes.Equal(got, want) {
			t.Fatalf("Expected % x, got % x", want, got)
		}
		return nil
	})
}

func TestStr_TextOffsetPrecision(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		// The runtime stores text bytes unvalidated; the accessor must
		// report the first offender precisely
		for _, tt := range []struct {
			name   string
			data   []byte
			offset int
		}{
			{"invalid start", []byte("valid\xfftail"), 5},
			{"truncated sequence", []byte{0xe5, 0x93}, 0},
			{"surrogate encoding", []byte("ab\xed\xa0\x80"), 2},
			{"overlong", []byte{'x', 0xc0, 0xaf}, 1},
		} {
			t.Run(tt.name, func(t *testing.T) {
				ref := RefFromOwned(tok, h.NewText(tt.data))
				defer ref.Close(tok)

				s, err := Downcast[Str](ref.Bind(tok))
				if err != nil {
					t.Fatalf("Downcast failed: %v", err)
				}

				_, err = s.Text()
				if err == nil {
					t.Fatal("Expected decode error for invalid storage")
				}
				be, ok := err.(*errors.Error)
				if !ok || be.Kind != errors.KindDecode {
					t.Fatalf("Expected decode kind, got %v", err)
				}
				if be.Offset != tt.offset {
					t.Fatalf("Expected offset %d, got %d", tt.offset, be.Offset)
				}
				if len(be.Data) != 1 || be.Data[0] != tt.data[tt.offset] {
					t.Fatalf("Expected offending byte %#02x, got % x", tt.data[tt.offset], be.Data)
				}
			})
		}
		return nil
	})
}

func TestStr_DecodeErrorDataOutlivesStorage(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		ref := RefFromOwned(tok, h.NewText([]byte("ok\xffzz")))
		defer ref.Close(tok)

		s, err := Downcast[Str](ref.Bind(tok))
		if err != nil {
			t.Fatalf("Downcast failed: %v", err)
		}
		_, err = s.Text()
		be, ok := err.(*errors.Error)
		if !ok {
			t.Fatalf("Expected *errors.Error, got %v", err)
		}

		// The runtime rewriting its storage must not reach into the
		// captured error
		for _, o := range h.Snapshot() {
			if o.Handle == ref.Raw() {
				o.Value.([]byte)[2] = 'Z'
			}
		}
		if len(be.Data) != 1 || be.Data[0] != 0xff {
			t.Fatalf("Data = % x after storage mutation, want ff", be.Data)
		}
		return nil
	})
}

func TestStr_TextLossy(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		for _, tt := range []struct {
			data []byte
			want string
		}{
			{[]byte("all good 🐈"), "all good 🐈"},
			{[]byte("ab\xffcd"), "ab�cd"},
			// An encoded surrogate rejects at its second byte, leaving
			// three one-byte sequences and three markers
			{[]byte("🐈 Hello \xed\xa0\x80World"), "🐈 Hello ���World"},
			{[]byte{0xff, 0xfe}, "��"},
			// A truncated multi-byte prefix is one maximal sequence and
			// one marker, however many bytes long
			{[]byte{0xf0, 0x9f}, "�"},
			{[]byte("a\xf0\x9f\x8fb"), "a�b"},
			{[]byte{0xe5, 0x93}, "�"},
			// Overlong encodings reject at the lead, byte by byte
			{[]byte{'x', 0xc0, 0xaf}, "x��"},
		} {
			ref := RefFromOwned(tok, h.NewText(tt.data))

			s, err := Downcast[Str](ref.Bind(tok))
			if err != nil {
				t.Fatalf("Downcast failed: %v", err)
			}
			if got := s.TextLossy(); got != tt.want {
				t.Fatalf("TextLossy(% x) = %q, want %q", tt.data, got, tt.want)
			}

			if err := ref.Close(tok); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
		}
		return nil
	})
}

func TestStr_Downcast(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		s := NewStr(tok, "typed")
		defer s.Close(tok)
		b := NewBytes(tok, []byte("raw"))
		defer b.Close(tok)

		// Right type passes
		if _, err := Downcast[Str](s.Bind(tok).Object()); err != nil {
			t.Fatalf("Downcast failed: %v", err)
		}

		// Wrong type names both sides
		_, err := Downcast[Str](b.Bind(tok).Object())
		if err == nil {
			t.Fatal("Expected type mismatch")
		}
		be, ok := err.(*errors.Error)
		if !ok || be.Kind != errors.KindTypeMismatch {
			t.Fatalf("Expected type mismatch kind, got %v", err)
		}
		if be.Want != "str" || be.Got != "bytes" {
			t.Fatalf("Expected want str got bytes, got want %s got %s", be.Want, be.Got)
		}
		return nil
	})
}

func TestStrFromEncoded(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		src := NewBytes(tok, []byte("caf\xe9"))
		defer src.Close(tok)

		s, err := StrFromEncoded(src.Bind(tok).Object(), "latin-1", "strict")
		if err != nil {
			t.Fatalf("StrFromEncoded failed: %v", err)
		}
		defer s.Close(tok)

		text, err := s.Bind(tok).Text()
		if err != nil {
			t.Fatalf("Text failed: %v", err)
		}
		if text != "café" {
			t.Fatalf("Expected café, got %q", text)
		}
		return nil
	})
}

func TestStrFromEncoded_Failure(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		src := NewBytes(tok, []byte("ok \xff"))
		defer src.Close(tok)

		_, err := StrFromEncoded(src.Bind(tok).Object(), "ascii", "strict")
		if err == nil {
			t.Fatal("Expected decode failure")
		}
		be, ok := err.(*errors.Error)
		if !ok || be.Kind != errors.KindForeign {
			t.Fatalf("Expected foreign kind, got %v", err)
		}
		if be.Category != "UnicodeDecodeError" {
			t.Fatalf("Expected UnicodeDecodeError, got %s", be.Category)
		}
		if be.Offset != 3 {
			t.Fatalf("Expected offset 3, got %d", be.Offset)
		}

		// The failure was consumed, not left pending
		if e := br.LastError(tok); e != nil {
			t.Fatalf("Expected no pending exception, got %v", e)
		}
		return nil
	})
}

func TestStrFromEncoded_StrSource(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		src := NewStr(tok, "already text")
		defer src.Close(tok)

		_, err := StrFromEncoded(src.Bind(tok).Object(), "utf-8", "strict")
		if err == nil {
			t.Fatal("Expected error for a text source")
		}
		be, ok := err.(*errors.Error)
		if !ok || be.Category != "TypeError" {
			t.Fatalf("Expected TypeError, got %v", err)
		}
		if !strings.Contains(be.Detail, "decoding str is not supported") {
			t.Fatalf("Unexpected detail: %s", be.Detail)
		}
		return nil
	})
}

func TestStrFromEncoded_Replace(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		src := NewBytes(tok, []byte("a\xffb"))
		defer src.Close(tok)

		s, err := StrFromEncoded(src.Bind(tok).Object(), "utf-8", "replace")
		if err != nil {
			t.Fatalf("StrFromEncoded failed: %v", err)
		}
		defer s.Close(tok)

		text, err := s.Bind(tok).Text()
		if err != nil {
			t.Fatalf("Text failed: %v", err)
		}
		if text != "a�b" {
			t.Fatalf("Expected a�b, got %q", text)
		}
		return nil
	})
}

func TestNewStr_AllocationFailureIsFatal(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		h.FailNextAlloc(1)

		defer func() {
			f, ok := errors.IsFatal(recover())
			if !ok {
				t.Fatal("Expected a fatal panic on allocation failure")
			}
			if f.Op != "new_str" {
				t.Fatalf("Expected op new_str, got %s", f.Op)
			}
		}()
		NewStr(tok, "never lands")
		return nil
	})
}
