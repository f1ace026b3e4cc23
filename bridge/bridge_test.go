package bridge

import (
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/runtime-bridge/errors"
	"github.com/wippyai/runtime-bridge/heap"
)

func newTestBridge(t *testing.T) (*Bridge, *heap.Heap) {
	t.Helper()
	h := heap.New(nil)
	br, err := New(h, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return br, h
}

func TestNew_NilRuntime(t *testing.T) {
	_, err := New(nil, nil)
	if err == nil {
		t.Fatal("Expected error for nil runtime")
	}
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("Expected unsupported kind, got %v", err)
	}
}

func TestNew_VersionGate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		version string
		ok      bool
	}{
		{"current", heap.Version, true},
		{"window floor", "1.0.0", true},
		{"patch above floor", "1.0.1", true},
		{"below window", "0.9.9", false},
		{"ceiling is exclusive", "2.0.0", false},
		{"above window", "3.1.0", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := heap.New(&heap.Config{Version: tt.version})
			_, err := New(h, nil)
			if tt.ok {
				if err != nil {
					t.Fatalf("Expected version %s to attach, got %v", tt.version, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected version %s to be rejected", tt.version)
			}
			if !errors.IsKind(err, errors.KindVersion) {
				t.Fatalf("Expected version kind, got %v", err)
			}
		})
	}
}

func TestNew_MalformedVersion(t *testing.T) {
	h := heap.New(&heap.Config{Version: "banana"})
	_, err := New(h, nil)
	if err == nil {
		t.Fatal("Expected error for malformed version")
	}
	if !errors.IsKind(err, errors.KindVersion) {
		t.Fatalf("Expected version kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "banana") {
		t.Fatalf("Error should name the reported version: %v", err)
	}
}

func TestBridge_LastError(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		// Nothing pending
		if e := br.LastError(tok); e != nil {
			t.Fatalf("Expected no pending exception, got %v", e)
		}

		h.Raise(errors.Foreign(errors.PhaseRuntime, "ValueError", "bad value"))

		e := br.LastError(tok)
		if e == nil {
			t.Fatal("Expected the pending exception")
		}
		be, ok := e.(*errors.Error)
		if !ok {
			t.Fatalf("Expected *errors.Error, got %T", e)
		}
		if be.Kind != errors.KindForeign {
			t.Fatalf("Expected foreign kind, got %s", be.Kind)
		}
		if be.Category != "ValueError" {
			t.Fatalf("Expected ValueError, got %s", be.Category)
		}

		// Fetch clears
		if e := br.LastError(tok); e != nil {
			t.Fatalf("Expected fetch to clear the exception, got %v", e)
		}
		return nil
	})
}

func TestBridge_Raise(t *testing.T) {
	br, h := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		br.Raise(tok, errors.Decode(errors.PhaseDecode, 6, []byte{0xff}))

		// The runtime holds a foreign-shaped exception with the decode
		// detail intact
		pending := h.Exception()
		be, ok := pending.(*errors.Error)
		if !ok {
			t.Fatalf("Expected *errors.Error, got %T", pending)
		}
		if be.Kind != errors.KindForeign {
			t.Fatalf("Expected foreign kind, got %s", be.Kind)
		}
		if be.Category != "UnicodeDecodeError" {
			t.Fatalf("Expected UnicodeDecodeError, got %s", be.Category)
		}
		if be.Offset != 6 {
			t.Fatalf("Expected offset 6, got %d", be.Offset)
		}

		// Raising nil must not clear what is already pending
		br.Raise(tok, errors.Foreign(errors.PhaseRuntime, "KeyError", "missing"))
		br.Raise(tok, nil)
		if e := br.LastError(tok); e == nil {
			t.Fatal("Raising nil must leave the pending exception alone")
		}
		return nil
	})
}

func TestBridge_RaiseRoundTrip(t *testing.T) {
	br, _ := newTestBridge(t)

	_ = br.With(func(tok *Token) error {
		br.Raise(tok, errors.Decode(errors.PhaseDecode, 2, []byte{0xed, 0xa0}))

		e := br.LastError(tok)
		be, ok := e.(*errors.Error)
		if !ok {
			t.Fatalf("Expected *errors.Error, got %T", e)
		}
		if be.Offset != 2 {
			t.Fatalf("Offset must survive the round trip, got %d", be.Offset)
		}
		if len(be.Data) != 2 || be.Data[0] != 0xed {
			t.Fatalf("Offending bytes must survive the round trip, got %v", be.Data)
		}
		return nil
	})
}

func TestBridge_TokenFromDifferentBridge(t *testing.T) {
	br1, _ := newTestBridge(t)
	br2, _ := newTestBridge(t)

	_ = br1.With(func(tok *Token) error {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic for a foreign token")
			}
			if !strings.Contains(r.(string), "different bridge") {
				t.Fatalf("Unexpected panic message: %v", r)
			}
		}()
		br2.LastError(tok)
		return nil
	})
}

func TestBridge_WithSerializes(t *testing.T) {
	br, _ := newTestBridge(t)

	const goroutines = 8
	const iters = 200

	// Unsynchronized counter: only the bridge's lock keeps this correct
	counter := 0
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				_ = br.With(func(tok *Token) error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iters {
		t.Fatalf("Expected %d increments, got %d", goroutines*iters, counter)
	}
}

func TestBridge_WithReleasesOnPanic(t *testing.T) {
	br, _ := newTestBridge(t)

	func() {
		defer func() { _ = recover() }()
		_ = br.With(func(tok *Token) error {
			panic("boom")
		})
	}()

	// The lock must be free again
	if err := br.With(func(tok *Token) error { return nil }); err != nil {
		t.Fatalf("With failed after panic: %v", err)
	}
}
