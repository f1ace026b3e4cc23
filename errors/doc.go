// Package errors provides structured error types for the runtime-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: expected/actual type names,
// the foreign exception category, and for decode failures the byte offset and
// offending bytes.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindDecode).
//		Offset(6).
//		Data([]byte{0xff}).
//		Detail("invalid start byte").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseDowncast, "str", "int")
//	err := errors.Foreign(errors.PhaseRuntime, "LookupError", "unknown encoding")
//
// All errors implement the standard error interface and support errors.Is/As.
//
// # Fatal Failures
//
// Allocation exhaustion inside the foreign runtime is not an error value.
// It panics with a *FatalError, and IsFatal recognizes one in a recover
// site. Everything else in this package is recoverable.
package errors
