// Package bridge provides safe host-side access to objects of an attached
// foreign runtime.
//
// The runtime guards all of its state with a single lock and counts
// references on every object. The bridge turns those two protocols into
// types: a Token proves the lock is held, a Ref owes exactly one reference
// decrement, and a Borrowed view is valid only while its token lives.
// Misuse that would corrupt the runtime, such as touching an object after
// the lock is gone, panics at the call site instead.
//
// # Acquiring the Lock
//
// All object traffic starts with the lock:
//
//	br, err := bridge.New(rt, nil)
//	if err != nil {
//	    return err
//	}
//
//	err = br.With(func(tok *bridge.Token) error {
//	    s := bridge.NewStr(tok, "hello")
//	    defer s.Close(tok)
//	    return nil
//	})
//
// Acquire blocks until the lock is free and never cancels; the foreign
// runtime's lock has no interrupt protocol. Code already holding the lock
// recurses with Token.Nested or Token.With, and releases strictly in
// reverse order of acquisition.
//
// # Owning and Borrowing
//
// A Ref (or its typed form Owned[T]) holds one strong reference and may be
// stored or passed between goroutines while the lock is free. Close pays
// the decrement; closing twice reports an error rather than corrupting the
// count. Binding a Ref to a token yields a Borrowed view for actual object
// access:
//
//	var kept *bridge.Owned[bridge.Str]
//
//	br.With(func(tok *bridge.Token) error {
//	    kept = bridge.NewStr(tok, "kept across locks")
//	    return nil
//	})
//
//	br.With(func(tok *bridge.Token) error {
//	    text, err := kept.Bind(tok).Text()
//	    ...
//	    return kept.Close(tok)
//	})
//
// # Typed Views
//
// Str and Bytes are checked views of the runtime's text and buffer types.
// Downcast asks the runtime whether an object has the claimed type and
// reinterprets the view for free when it does:
//
//	s, err := bridge.Downcast[bridge.Str](obj)
//	if err != nil {
//	    // type mismatch naming both sides
//	}
//
// Byte views returned by Str.Bytes and Bytes.Bytes alias foreign storage:
// they cost nothing, stay valid while the token lives, and must not be
// mutated.
//
// # Conversions
//
// ValueOf and Extract move values across the boundary. Strings map to text
// objects and byte slices to buffers; types can opt in with Foreigner and
// FromForeigner. Extraction failures carry the underlying error unchanged,
// so a UTF-8 decode failure inside Extract still reads as a decode error
// with its byte offset.
//
// # Errors and Fatals
//
// Recoverable failures return structured errors from this module's errors
// package: type mismatches, decode failures with the first invalid offset,
// and foreign exceptions fetched from the runtime. Allocation exhaustion
// inside the runtime is not recoverable and panics with a fatal error;
// see errors.IsFatal.
package bridge
