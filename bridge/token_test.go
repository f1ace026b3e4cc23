package bridge

import (
	"strings"
	"testing"
)

func TestToken_AcquireRelease(t *testing.T) {
	br, _ := newTestBridge(t)

	tok := br.Acquire()
	if tok.Depth() != 0 {
		t.Fatalf("Expected root depth 0, got %d", tok.Depth())
	}
	tok.Release()

	// The lock is free again
	tok2 := br.Acquire()
	tok2.Release()
}

func TestToken_Nested(t *testing.T) {
	br, _ := newTestBridge(t)

	tok := br.Acquire()
	defer tok.Release()

	// Nesting counts, it does not block
	inner := tok.Nested()
	if inner.Depth() != 1 {
		t.Fatalf("Expected depth 1, got %d", inner.Depth())
	}

	deeper := inner.Nested()
	if deeper.Depth() != 2 {
		t.Fatalf("Expected depth 2, got %d", deeper.Depth())
	}

	deeper.Release()
	inner.Release()
}

func TestToken_NestedWith(t *testing.T) {
	br, _ := newTestBridge(t)

	err := br.With(func(tok *Token) error {
		return tok.With(func(inner *Token) error {
			if inner.Depth() != 1 {
				t.Fatalf("Expected depth 1, got %d", inner.Depth())
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
}

func TestToken_OuterUsableAfterInnerReleased(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		_ = tok.With(func(inner *Token) error {
			s := NewStr(inner, "inner")
			return s.Close(inner)
		})

		// The outer token is innermost again
		s := NewStr(tok, "outer")
		if err := s.Close(tok); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		return nil
	})

	if h.Live() != 0 {
		t.Fatalf("Expected no live objects, got %d", h.Live())
	}
}

func TestToken_DoubleReleasePanics(t *testing.T) {
	br, _ := newTestBridge(t)
	tok := br.Acquire()
	tok.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on double release")
		}
		if !strings.Contains(r.(string), "released twice") {
			t.Fatalf("Unexpected panic message: %v", r)
		}
	}()
	tok.Release()
}

func TestToken_OutOfOrderReleasePanics(t *testing.T) {
	br, _ := newTestBridge(t)
	tok := br.Acquire()
	inner := tok.Nested()
	_ = inner

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on out-of-order release")
		}
		if !strings.Contains(r.(string), "out of order") {
			t.Fatalf("Unexpected panic message: %v", r)
		}
	}()
	tok.Release()
}

func TestToken_NestedOnOuterPanics(t *testing.T) {
	br, _ := newTestBridge(t)
	tok := br.Acquire()
	defer tok.Release()
	inner := tok.Nested()
	defer inner.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on nesting from a non-innermost token")
		}
		if !strings.Contains(r.(string), "not innermost") {
			t.Fatalf("Unexpected panic message: %v", r)
		}
	}()
	tok.Nested()
}

func TestToken_UseAfterReleasePanics(t *testing.T) {
	br, _ := newTestBridge(t)
	tok := br.Acquire()
	tok.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on use after release")
		}
		if !strings.Contains(r.(string), "released access token") {
			t.Fatalf("Unexpected panic message: %v", r)
		}
	}()
	NewStr(tok, "too late")
}
