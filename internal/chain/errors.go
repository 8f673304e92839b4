package chain

import "fmt"

// Kind is the pipeline's semantic error taxonomy (spec §7), independent of
// where in the pipeline it was raised. Kind is what callers (store, txhashset,
// pipeline) branch on; the wrapped error carries the human-readable detail.
type Kind string

const (
	KindUnfit                  Kind = "UNFIT"
	KindOrphan                 Kind = "ORPHAN"
	KindOldBlock               Kind = "OLD_BLOCK"
	KindInvalidBlockVersion    Kind = "INVALID_BLOCK_VERSION"
	KindInvalidBlockTime       Kind = "INVALID_BLOCK_TIME"
	KindInvalidBlockHeight     Kind = "INVALID_BLOCK_HEIGHT"
	KindLowEdgebits            Kind = "LOW_EDGEBITS"
	KindInvalidPow             Kind = "INVALID_POW"
	KindDifficultyTooLow       Kind = "DIFFICULTY_TOO_LOW"
	KindWrongTotalDifficulty   Kind = "WRONG_TOTAL_DIFFICULTY"
	KindInvalidScaling         Kind = "INVALID_SCALING"
	KindInvalidBlockProof      Kind = "INVALID_BLOCK_PROOF"
	KindStore                 Kind = "STORE_ERR"
	KindNotFound               Kind = "NOT_FOUND"
	KindInternal               Kind = "INTERNAL"
)

// Error is the pipeline's typed error: a Kind plus the detail and an
// optional wrapped cause. Every non-Unfit/Orphan/StoreErr Kind is a
// consensus verdict per spec §7 and aborts the current extension.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind: errors.Is(err, &Error{Kind: KindOrphan}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds a typed pipeline error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a typed pipeline error around a lower-level cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

func errLenMismatch(field string, want, got int) error {
	return NewError(KindInternal, fmt.Sprintf("%s: expected %d bytes, got %d", field, want, got))
}
