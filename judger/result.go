package judger

import "github.com/learnhub/judgecore/envexec"

// Response messages
const (
	msgTrialPassed       = "All example test cases passed!"
	msgTrialFailed       = "Some test cases failed. Check errors in output."
	msgExamplesFailed    = "Example test cases failed."
	msgHiddenPassed      = "All test cases passed! Points awarded."
	msgHiddenFailed      = "Hidden test cases failed. Try a different approach."
	msgAlreadyCompleted  = "You've already completed this question."
	msgTerminated        = "Execution terminated."
	msgUnsupportedPrefix = "Unsupported language: "
	msgMissingTrial      = "Missing required parameters. Ensure 'code', 'language', 'inputs', and 'expectedOutputs' are provided."
	msgMissingSubmit     = "Missing required parameters"
	msgCaseMismatch      = "'inputs' and 'expectedOutputs' must have the same length"
)

// TrialRequest runs code against caller supplied cases
type TrialRequest struct {
	Code            string   `json:"code"`
	Language        string   `json:"language"`
	Inputs          []string `json:"inputs"`
	ExpectedOutputs []string `json:"expectedOutputs"`
	SubmitterKey    string   `json:"userId,omitempty"`
}

// CaseResult is the outcome of one visible case
type CaseResult struct {
	Input    string         `json:"input"`
	Output   string         `json:"output"`
	Expected string         `json:"expected"`
	Passed   bool           `json:"passed"`
	Error    string         `json:"error,omitempty"`
	Status   envexec.Status `json:"status"`
	TimedOut bool           `json:"timedOut,omitempty"`
}

// TrialResult is the response of a trial run
type TrialResult struct {
	Success        bool         `json:"success"`
	ExampleResults []CaseResult `json:"exampleResults"`
	Message        string       `json:"message"`
	Terminated     bool         `json:"terminated,omitempty"`
}

// SubmitRequest scores code against a stored question
type SubmitRequest struct {
	UserID     string `json:"userId"`
	QuestionID string `json:"questionId"`
	Code       string `json:"code"`
	Language   string `json:"language"`
}

// SubmitResult is the response of a scored submission. Hidden cases are
// never described.
type SubmitResult struct {
	Success          bool         `json:"success"`
	PassedAllTests   bool         `json:"passedAllTests"`
	AlreadySubmitted bool         `json:"alreadySubmitted,omitempty"`
	ExampleResults   []CaseResult `json:"exampleResults,omitempty"`
	Message          string       `json:"message"`
	SubmissionID     string       `json:"submissionId,omitempty"`
	PointsAwarded    int          `json:"pointsAwarded,omitempty"`
	Terminated       bool         `json:"terminated,omitempty"`
}

func allPassed(rs []CaseResult) bool {
	for _, r := range rs {
		if !r.Passed {
			return false
		}
	}
	return true
}
