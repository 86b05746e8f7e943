// Package types defines the persisted records of the judging platform
package types

import (
	"slices"
	"time"

	"github.com/learnhub/judgecore/language"
)

// DateLayout is the layout of User.LastStreakDate
const DateLayout = "2006-01-02"

// Question is a read-only problem with its example and hidden cases
type Question struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	ExampleInputs  []string `json:"exampleInputs"`
	ExampleOutputs []string `json:"exampleOutputs"`
	HiddenInputs   []string `json:"-"`
	HiddenOutputs  []string `json:"-"`
	Points         int      `json:"points"`
}

// Submission records one scored attempt
type Submission struct {
	ID          string            `json:"id"`
	QuestionID  string            `json:"questionId"`
	SourceCode  string            `json:"submission"`
	Language    language.Language `json:"language"`
	Points      int               `json:"points"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// User holds the progress of a submitter
type User struct {
	ID                 string       `json:"id"`
	Username           string       `json:"username"`
	TotalPoints        int          `json:"totalPoints"`
	Streaks            int          `json:"streaks"`
	LastStreakDate     string       `json:"lastStreakDate,omitempty"`
	CompletedQuestions []string     `json:"completedQuestions"`
	Submissions        []Submission `json:"-"`
}

// HasCompleted reports whether questionID is in the completed set
func (u *User) HasCompleted(questionID string) bool {
	return slices.Contains(u.CompletedQuestions, questionID)
}

// Complete adds questionID to the completed set once
func (u *User) Complete(questionID string) {
	if !u.HasCompleted(questionID) {
		u.CompletedQuestions = append(u.CompletedQuestions, questionID)
	}
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	c := *u
	c.CompletedQuestions = slices.Clone(u.CompletedQuestions)
	c.Submissions = slices.Clone(u.Submissions)
	return &c
}

// SubmissionRecord is a submission listed with its owner
type SubmissionRecord struct {
	Submission
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}
