package bridge

import (
	"fmt"
	"sync"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Runtime versions the bridge will attach to. The upper bound is exclusive.
const (
	MinRuntimeVersion = "1.0.0"
	MaxRuntimeVersion = "2.0.0"
)

// Config adjusts bridge construction.
type Config struct {
	// TrackLeaks arms a finalizer on every owning reference that logs a
	// warning if the reference is collected without Close. The foreign
	// object is never reclaimed on the host's behalf; the log is the only
	// effect.
	TrackLeaks bool
}

// Bridge owns the single lock guarding one attached runtime. All object
// traffic flows through tokens handed out by Acquire or With.
type Bridge struct {
	rt  runtimebridge.Runtime
	mu  sync.Mutex
	top *Token // innermost live token, guarded by mu
	cfg Config
}

// New attaches to a runtime. Runtimes that report a version are checked
// against the supported window before any object traffic is possible.
// A nil cfg means defaults.
func New(rt runtimebridge.Runtime, cfg *Config) (*Bridge, error) {
	if rt == nil {
		return nil, errors.New(errors.PhaseAttach, errors.KindUnsupported).
			Detail("nil runtime").
			Build()
	}

	if vr, ok := rt.(runtimebridge.VersionReporter); ok {
		reported := vr.RuntimeVersion()
		if err := checkVersion(reported); err != nil {
			return nil, err
		}
		Logger().Info("runtime attached", zap.String("version", reported))
	} else {
		Logger().Info("runtime attached", zap.String("version", "unreported"))
	}

	b := &Bridge{rt: rt}
	if cfg != nil {
		b.cfg = *cfg
	}
	return b, nil
}

func checkVersion(reported string) error {
	got, err := semver.NewVersion(reported)
	if err != nil {
		return errors.Wrap(errors.PhaseAttach, errors.KindVersion, err,
			fmt.Sprintf("malformed runtime version %q", reported))
	}
	min := semver.New(MinRuntimeVersion)
	max := semver.New(MaxRuntimeVersion)
	if got.LessThan(*min) || !got.LessThan(*max) {
		return errors.Version(reported, MinRuntimeVersion, MaxRuntimeVersion)
	}
	return nil
}

// Acquire blocks until the runtime's lock is free and returns the proof of
// holding it. There is no cancellation: the foreign lock has no interrupt
// protocol, so neither does this call. Goroutines already holding the lock
// must use Token.Nested instead; acquiring twice from the same goroutine
// deadlocks.
func (b *Bridge) Acquire() *Token {
	b.mu.Lock()
	tok := &Token{br: b}
	b.top = tok
	Logger().Debug("lock acquired")
	return tok
}

// With runs fn while holding the runtime's lock. The token is released on
// return, including panicking returns, and must not outlive fn.
func (b *Bridge) With(fn func(*Token) error) error {
	tok := b.Acquire()
	defer tok.Release()
	return fn(tok)
}

// check validates a token for use against this bridge.
func (b *Bridge) check(tok *Token, op string) {
	tok.ensureLive(op)
	if tok.br != b {
		panic(fmt.Sprintf("bridge: %s with a token from a different bridge", op))
	}
}

// LastError fetches and clears the runtime's pending exception, normalized
// into the errors package's foreign shape. Returns nil when nothing is
// pending.
func (b *Bridge) LastError(tok *Token) error {
	b.check(tok, "exception fetch")
	err := b.rt.Exception()
	if err == nil {
		return nil
	}
	return errors.Foreignize(err)
}

// Raise installs err as the runtime's pending exception, shaped into a
// foreign category and message. Decode failures keep their byte offsets
// across the round trip. A nil err is a no-op.
func (b *Bridge) Raise(tok *Token, err error) {
	b.check(tok, "raise")
	if err == nil {
		return
	}
	b.rt.Raise(errors.Foreignize(err))
}
