package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for the serving layer; storage and other
// unexpected failures stay opaque plain errors.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
)

// Error is a client-facing failure with a machine-readable code. Anything
// the engine returns that is not an *Error is an internal failure and must
// not leak detail to callers.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches errors by code so callers can compare against the sentinels
// below even when messages differ.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrHabitNotFound = &Error{Code: "HABIT_NOT_FOUND", Kind: KindNotFound, Message: "habit not found or inactive"}

	ErrAtomNotFound = &Error{Code: "ATOM_NOT_FOUND", Kind: KindNotFound, Message: "atom not found"}

	ErrVoteNotFound = &Error{Code: "VOTE_NOT_FOUND", Kind: KindNotFound, Message: "no vote found"}

	ErrCategoryNotFound = &Error{Code: "CATEGORY_NOT_FOUND", Kind: KindNotFound, Message: "category not found"}

	ErrUserNotFound = &Error{Code: "USER_NOT_FOUND", Kind: KindNotFound, Message: "user not found"}

	ErrImageRequired = &Error{Code: "IMAGE_REQUIRED_FOR_SHAREABLE", Kind: KindConflict,
		Message: "shareable habits require an image to be published as atom"}

	ErrPersonalNotShareable = &Error{Code: "PERSONAL_HABIT_NOT_SHAREABLE", Kind: KindConflict,
		Message: "personal habits cannot be published as atoms"}

	ErrInvalidVoteType = &Error{Code: "INVALID_VOTE_TYPE", Kind: KindValidation, Message: "invalid vote type"}

	ErrHabitTitleExists = &Error{Code: "HABIT_TITLE_EXISTS", Kind: KindConflict,
		Message: "habit with this title already exists"}

	ErrAlreadyCompleted = &Error{Code: "ALREADY_COMPLETED", Kind: KindConflict,
		Message: "habit already completed for this period"}

	ErrNotApplicableToday = &Error{Code: "NOT_APPLICABLE_TODAY", Kind: KindConflict,
		Message: "habit is not completable today"}
)

// alreadyCompleted keeps the ALREADY_COMPLETED code while tailoring the
// message to the occurrence rule, the way callers have come to expect.
func alreadyCompleted(occurrence string, max int) *Error {
	msg := fmt.Sprintf("habit already completed for this %s period", occurrence)
	if max > 1 {
		msg = fmt.Sprintf("habit already completed %d times this week", max)
	}
	return &Error{Code: ErrAlreadyCompleted.Code, Kind: KindConflict, Message: msg}
}

func newValidationError(code, message string) *Error {
	return &Error{Code: code, Kind: KindValidation, Message: message}
}

// CodeOf extracts the machine-readable code from err, or "" when err is not
// an engine error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
