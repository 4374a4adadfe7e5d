package portal

import "errors"

// Kind classifies a validation failure.
type Kind string

const (
	KindNoSlotSelected  Kind = "no_slot_selected"
	KindEmptyBatch      Kind = "empty_batch"
	KindEmptyMessage    Kind = "empty_message"
	KindNoActiveSession Kind = "no_active_session"
)

// ValidationError is a recoverable, user-facing input error. The user fixes
// the input and retries.
type ValidationError struct {
	Kind Kind
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindNoSlotSelected:
		return "please select a time slot first"
	case KindEmptyBatch:
		return "please select at least one file to upload"
	case KindEmptyMessage:
		return "message is empty"
	case KindNoActiveSession:
		return "no active chat session"
	default:
		return "invalid input"
	}
}

// Is matches any ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoSlotSelected  = &ValidationError{Kind: KindNoSlotSelected}
	ErrEmptyBatch      = &ValidationError{Kind: KindEmptyBatch}
	ErrEmptyMessage    = &ValidationError{Kind: KindEmptyMessage}
	ErrNoActiveSession = &ValidationError{Kind: KindNoActiveSession}
)

// AsValidation unwraps err into a ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
