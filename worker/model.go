package worker

import (
	"fmt"

	"github.com/learnhub/judgecore/runner"
)

// Request defines single worker request. With Program nil the source is
// prepared (written and compiled), otherwise Program is executed with Stdin.
type Request struct {
	RequestID string

	Prepare *runner.PrepareParam

	Program *runner.Program
	Stdin   []string
}

// Response defines worker response for single request. A prepare request
// sets Program when the source is ready to run; Result holds the compile
// outcome, the failed compile when Program is nil.
type Response struct {
	RequestID string
	Program   *runner.Program
	Result    *runner.Result
	Error     error
}

// Kind returns "compile" or "run"
func (r *Request) Kind() string {
	if r.Program == nil {
		return "compile"
	}
	return "run"
}

func (r Response) String() string {
	return fmt.Sprintf("Response{RequestID:%s Result:%v Error:%v}", r.RequestID, r.Result, r.Error)
}
