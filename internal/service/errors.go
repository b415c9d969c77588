package service

import (
	"errors"
	"fmt"
)

var (
	// ErrCaseNotFound indicates the moderation case does not exist.
	ErrCaseNotFound = errors.New("moderation case not found")
	// ErrInvalidTransition indicates the case cannot move to the requested state from its current one.
	ErrInvalidTransition = errors.New("invalid case transition")
	// ErrAlreadyProcessed indicates the case already reached a terminal state.
	ErrAlreadyProcessed = errors.New("case already processed")
	// ErrAlreadyClaimed indicates another admin claimed the case first.
	ErrAlreadyClaimed = errors.New("case already claimed")
	// ErrTargetNotFound indicates the enforcement target no longer exists.
	ErrTargetNotFound = errors.New("enforcement target not found")
	// ErrDuplicateOpenCase indicates an open appeal or verification request already exists.
	ErrDuplicateOpenCase = errors.New("an open case already exists for this subject and target")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidResolution indicates the resolution is not allowed for the case.
	ErrInvalidResolution = fmt.Errorf("%w: resolution not allowed for case", ErrValidation)
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
