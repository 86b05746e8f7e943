package judger

import (
	"errors"
	"fmt"

	"github.com/learnhub/judgecore/sanitize"
)

// Kind classifies judge errors for the transport layer
type Kind int

// Error kinds
const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindInternal
)

var kindToString = map[Kind]string{
	KindValidation: "validation",
	KindNotFound:   "not found",
	KindInternal:   "internal",
}

func (k Kind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return "unknown"
}

// Error is returned by the judge for requests that produce no result.
// Message is safe to show to the submitter.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFoundError(msg string, err error) error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

func internalError(err error) error {
	return &Error{Kind: KindInternal, Message: sanitize.Error(err), Err: err}
}
