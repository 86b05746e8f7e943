// Package store defines the persistence used by the judge. Implementations
// live in memstore and mongostore.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/learnhub/judgecore/types"
)

// ErrNotFound is returned when a question or user does not exist
var ErrNotFound = errors.New("not found")

// Store loads questions and users and persists scoring progress
type Store interface {
	// Question returns the question with its hidden cases
	Question(ctx context.Context, id string) (*types.Question, error)

	// User returns a copy of the user that the caller may modify
	User(ctx context.Context, id string) (*types.User, error)

	// SaveProgress writes the scoring fields of user (total points,
	// streaks, last streak date, completed questions) and appends sub to
	// its submissions in a single update. sub.ID is assigned on success.
	SaveProgress(ctx context.Context, user *types.User, sub *types.Submission) error

	// UserSubmissions lists the submissions of a user, newest first
	UserSubmissions(ctx context.Context, userID string) ([]types.SubmissionRecord, error)

	// QuestionSubmissions lists every submission for a question, newest first
	QuestionSubmissions(ctx context.Context, questionID string) ([]types.SubmissionRecord, error)

	Close(ctx context.Context) error
}

// SortNewestFirst orders records by submission time, newest first
func SortNewestFirst(rs []types.SubmissionRecord) {
	slices.SortStableFunc(rs, func(a, b types.SubmissionRecord) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
}
