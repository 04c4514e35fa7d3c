package relaycache

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps provider errors on both read and write paths.
	// GetOrLoad treats it as a forced miss on reads and falls through to the
	// loader; Set and Delete surface it to the caller.
	ErrStoreUnavailable = errors.New("relaycache: store unavailable")

	// ErrEncode is returned when the codec cannot represent a value. The
	// store is never touched after an encode failure.
	ErrEncode = errors.New("relaycache: encode failed")

	// ErrDecode is returned when cached bytes cannot be decoded back into V.
	// Read paths self-heal instead (delete + miss); explicit decode surfaces it.
	ErrDecode = errors.New("relaycache: decode failed")

	// ErrCacheWrite tags the non-fatal write failure carried by *WriteError.
	// Match with errors.Is; the accompanying value is valid.
	ErrCacheWrite = errors.New("relaycache: cache write failed")

	errNilBus = errors.New("relaycache: invalidator bus is required")
)

// WriteError reports that a loaded value could not be cached. GetOrLoad
// returns it alongside the value so the caller keeps the result of a
// successful load even when the store write failed.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("caching %q failed: %v (value is valid)", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrCacheWrite }

// InvalidateError reports a partially failed Delete or a Set whose
// invalidation broadcast could not be published. The local mutation that
// succeeded is not rolled back.
type InvalidateError struct {
	Key        string
	DelErr     error
	PublishErr error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.DelErr != nil && e.PublishErr != nil:
		return fmt.Sprintf("invalidate %q failed: delete and publish failed: delete=%v; publish=%v",
			e.Key, e.DelErr, e.PublishErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	case e.PublishErr != nil:
		return fmt.Sprintf("invalidate %q: publish failed: %v", e.Key, e.PublishErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	if e.PublishErr != nil {
		errs = append(errs, e.PublishErr)
	}
	return errs
}
