package bridge

import (
	"fmt"
	"strings"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Foreigner converts a host value into a new owning reference. The
// conversion must not fail: a type either has an unconditional foreign
// representation or it does not implement the interface. Allocation
// exhaustion remains fatal, as everywhere.
type Foreigner interface {
	ToForeign(tok *Token) *Ref
}

// FromForeigner hydrates a host value from a foreign object view.
// Implementations report failure through the error, typically a type
// mismatch or decode error from examining the object.
type FromForeigner interface {
	FromForeign(obj Borrowed) error
}

// ValueOf converts a host value to a new owning reference. Strings become
// text objects, byte slices become buffers, views and references are
// re-counted, and Foreigner implementors convert themselves. Everything
// else is unsupported, reported as an error rather than a panic so callers
// can feed ValueOf arbitrary data.
func ValueOf(tok *Token, v any) (*Ref, error) {
	tok.ensureLive("convert")

	switch x := v.(type) {
	case Foreigner:
		return x.ToForeign(tok), nil
	case string:
		return NewStr(tok, x).Ref(), nil
	case []byte:
		return NewBytes(tok, x).Ref(), nil
	case Borrowed:
		x.ensure("convert")
		if x.tok.br != tok.br {
			panic("bridge: convert with a view from a different bridge")
		}
		return x.Owned(), nil
	case *Ref:
		return x.Clone(tok), nil
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindUnsupported).
		Got(fmt.Sprintf("%T", v)).
		Detail("no conversion to a foreign object").
		Build()
}

// Extract converts a foreign object view into a host value. Strings come
// from text objects via the validating accessor, byte slices from buffers
// or from a text object's canonical bytes, and pointer types implementing
// FromForeigner hydrate themselves. Extracted strings and byte slices own
// their bytes: they stay valid after the token is released and after the
// foreign object is gone. Failures surface the underlying operation's
// error unchanged, so a decode failure inside an extraction still reads
// as a decode failure.
func Extract[T any](obj Borrowed) (T, error) {
	var out T
	obj.ensure("extract")

	switch p := any(&out).(type) {
	case *string:
		s, err := Downcast[Str](obj)
		if err != nil {
			return out, err
		}
		text, err := s.Text()
		if err != nil {
			return out, err
		}
		// Text returns a view over foreign storage that dies with the
		// token. The extracted value leaves the token's scope, so it
		// must own its bytes.
		*p = strings.Clone(text)
		return out, nil

	case *[]byte:
		if b, err := Downcast[Bytes](obj); err == nil {
			*p = append([]byte(nil), b.Bytes()...)
			return out, nil
		}
		s, err := Downcast[Str](obj)
		if err != nil {
			return out, errors.TypeMismatch(errors.PhaseConvert,
				runtimebridge.TypeBytes, describeType(obj))
		}
		*p = append([]byte(nil), s.Bytes()...)
		return out, nil
	}

	if ff, ok := any(&out).(FromForeigner); ok {
		if err := ff.FromForeign(obj); err != nil {
			return out, err
		}
		return out, nil
	}

	return out, errors.New(errors.PhaseConvert, errors.KindUnsupported).
		Want(fmt.Sprintf("%T", out)).
		Detail("no conversion from a foreign object").
		Build()
}
