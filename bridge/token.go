package bridge

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Token is proof that the holder is inside the runtime's lock. Every
// boundary operation demands one, so holding the lock is a compile-time
// precondition rather than a runtime hope.
//
// Tokens form a chain: the token from Acquire is the root, Nested pushes,
// Release pops. Only popping the root unlocks the runtime. Tokens are not
// values to store; they live on the stack of the scope that acquired them.
type Token struct {
	br       *Bridge
	parent   *Token
	depth    int
	released atomic.Bool
}

// Nested records a recursive acquisition and returns the new innermost
// token. The lock is already held, so this never blocks. It panics when
// called on a token that is not the innermost live one; release order is
// strictly last-in first-out.
func (t *Token) Nested() *Token {
	t.ensureLive("nested acquire")
	if t.br.top != t {
		panic("bridge: nested acquire on a token that is not innermost")
	}
	tok := &Token{br: t.br, parent: t, depth: t.depth + 1}
	t.br.top = tok
	Logger().Debug("lock reacquired", zap.Int("depth", tok.depth))
	return tok
}

// With runs fn under a nested acquisition, releasing it on return.
func (t *Token) With(fn func(*Token) error) error {
	tok := t.Nested()
	defer tok.Release()
	return fn(tok)
}

// Release pops this token off the chain. Releasing the root token unlocks
// the runtime. Releasing twice, or releasing while an inner token is still
// live, panics: both are bugs this type exists to catch.
func (t *Token) Release() {
	if t.released.Swap(true) {
		panic("bridge: access token released twice")
	}
	if t.br.top != t {
		panic("bridge: access token released out of order")
	}
	t.br.top = t.parent
	if t.parent == nil {
		Logger().Debug("lock released")
		t.br.mu.Unlock()
	}
}

// Depth reports how many nested acquisitions sit below this token. The
// root token is depth 0.
func (t *Token) Depth() int {
	return t.depth
}

func (t *Token) ensureLive(op string) {
	if t == nil {
		panic(fmt.Sprintf("bridge: %s with a nil access token", op))
	}
	if t.released.Load() {
		panic(fmt.Sprintf("bridge: %s on a released access token", op))
	}
}
