package budget

import (
	"errors"
	"fmt"

	"bilancio/internal/core"
)

var (
	ErrNameRequired               = errors.New("preference name is required")
	ErrPercentageOutOfRange       = errors.New("percentage must be greater than 0 and at most 100")
	ErrCategoriesEmpty            = errors.New("at least one category is required")
	ErrPercentageExceedsRemaining = errors.New("percentage exceeds the remaining allocation")
	ErrCategoryAlreadyAssigned    = errors.New("category already assigned to another preference")
)

var reasonErrors = map[core.ValidationReason]error{
	core.ReasonNameRequired:               ErrNameRequired,
	core.ReasonPercentageOutOfRange:       ErrPercentageOutOfRange,
	core.ReasonCategoriesEmpty:            ErrCategoriesEmpty,
	core.ReasonPercentageExceedsRemaining: ErrPercentageExceedsRemaining,
	core.ReasonCategoryAlreadyAssigned:    ErrCategoryAlreadyAssigned,
}

// ValidationError is returned when a preference mutation is rejected.
// errors.Is matches it against the sentinel for its reason.
type ValidationError struct {
	Reason core.ValidationReason
	Detail string
}

func newValidationError(reason core.ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	base := reasonErrors[e.Reason]
	if base == nil {
		return string(e.Reason)
	}
	if e.Detail == "" {
		return base.Error()
	}
	return base.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return reasonErrors[e.Reason]
}

// AsValidationError extracts a *ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
