// Package model holds the request / response shapes shared by the REST,
// WebSocket and gRPC front ends.
package model

import (
	"context"
	"errors"
	"net/http"

	"github.com/learnhub/judgecore/judger"
	"github.com/learnhub/judgecore/types"
)

// Judge is the part of judger.Judger served to clients
type Judge interface {
	RunTrial(context.Context, judger.TrialRequest) (*judger.TrialResult, error)
	Submit(context.Context, judger.SubmitRequest) (*judger.SubmitResult, error)
	Terminate(context.Context, string) bool
	UserProgress(context.Context, string) (*types.User, error)
	UserSubmissions(context.Context, string) ([]types.SubmissionRecord, error)
	QuestionSubmissions(context.Context, string) ([]types.SubmissionRecord, error)
}

var _ Judge = &judger.Judger{}

// TerminateRequest stops the running execution of a user
type TerminateRequest struct {
	UserID string `json:"userId"`
}

// TerminateResponse reports whether an execution was running
type TerminateResponse struct {
	Terminated bool `json:"terminated"`
}

// Progress is the public view of a user's scoring state
type Progress struct {
	ID                 string   `json:"id"`
	Username           string   `json:"username"`
	TotalPoints        int      `json:"totalPoints"`
	Streaks            int      `json:"streaks"`
	LastStreakDate     string   `json:"lastStreakDate,omitempty"`
	CompletedQuestions []string `json:"completedQuestions"`
}

// ConvertProgress converts a user to its public view
func ConvertProgress(u *types.User) Progress {
	completed := u.CompletedQuestions
	if completed == nil {
		completed = []string{}
	}
	return Progress{
		ID:                 u.ID,
		Username:           u.Username,
		TotalPoints:        u.TotalPoints,
		Streaks:            u.Streaks,
		LastStreakDate:     u.LastStreakDate,
		CompletedQuestions: completed,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ConvertError maps a judge error to a HTTP status and body. Internal
// errors carry a fixed message with the sanitized cause as details.
func ConvertError(err error) (int, ErrorResponse) {
	var je *judger.Error
	if !errors.As(err, &je) {
		je = &judger.Error{Kind: judger.KindInternal}
	}
	switch je.Kind {
	case judger.KindValidation:
		return http.StatusBadRequest, ErrorResponse{Message: je.Message}
	case judger.KindNotFound:
		return http.StatusNotFound, ErrorResponse{Message: je.Message}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Message: "Internal Server Error",
			Details: je.Message,
		}
	}
}

// IsInternal reports whether err is not caused by the request
func IsInternal(err error) bool {
	return judger.KindOf(err) == judger.KindInternal
}
