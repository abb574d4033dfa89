package flat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decode failures.
type ErrorKind uint8

const (
	BadMagic ErrorKind = iota + 1
	VersionMismatch
	OffsetOutOfBounds
	TruncatedPayload
	UnknownRequiredKind
	DanglingReference
	FingerprintMismatch
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case BadMagic:
		return "BadMagic"
	case VersionMismatch:
		return "VersionMismatch"
	case OffsetOutOfBounds:
		return "OffsetOutOfBounds"
	case TruncatedPayload:
		return "TruncatedPayload"
	case UnknownRequiredKind:
		return "UnknownRequiredKind"
	case DanglingReference:
		return "DanglingReference"
	case FingerprintMismatch:
		return "FingerprintMismatch"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// DecodeError reports why a buffer was rejected.
type DecodeError struct {
	Kind   ErrorKind
	Offset int // byte offset of the offending structure, or -1
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "flat: " + e.Kind.String()
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, flat.ErrBadMagic)
// holds for any BadMagic failure.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Offset == sentinelOffset && t.Kind == e.Kind
}

const sentinelOffset = -2

func sentinel(k ErrorKind) *DecodeError {
	return &DecodeError{Kind: k, Offset: sentinelOffset}
}

// Sentinels for errors.Is.
var (
	ErrBadMagic            = sentinel(BadMagic)
	ErrVersionMismatch     = sentinel(VersionMismatch)
	ErrOffsetOutOfBounds   = sentinel(OffsetOutOfBounds)
	ErrTruncatedPayload    = sentinel(TruncatedPayload)
	ErrUnknownRequiredKind = sentinel(UnknownRequiredKind)
	ErrDanglingReference   = sentinel(DanglingReference)
	ErrFingerprintMismatch = sentinel(FingerprintMismatch)
)

// ErrTooLarge is returned by encoders when a section exceeds the 32-bit
// limits of the layout.
var ErrTooLarge = errors.New("flat: module too large to encode")

func decodeErr(k ErrorKind, off int, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: k, Offset: off, Detail: fmt.Sprintf(format, args...)}
}
