package usecase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoUniqueKey means an issue satisfies none of the declared key groups.
	ErrNoUniqueKey = errors.New("issue has no unique key")
	// ErrMissingDescription means an issue reached matching without a description.
	ErrMissingDescription = errors.New("issue has no description")
	// ErrNotFound means no local task matches an issue.
	ErrNotFound = errors.New("no matching task")
	// ErrMultipleMatches means more than one local task matches an issue.
	ErrMultipleMatches = errors.New("multiple matching tasks")
)

// MultipleMatchesError lists the tasks an ambiguous issue matched.
type MultipleMatchesError struct {
	Description string
	UUIDs       []string
}

func (e *MultipleMatchesError) Error() string {
	return fmt.Sprintf("issue %q matched multiple tasks: %s", e.Description, strings.Join(e.UUIDs, ", "))
}

func (e *MultipleMatchesError) Unwrap() error {
	return ErrMultipleMatches
}
