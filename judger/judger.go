// Package judger runs trial executions and scored submissions: it compiles
// a source once, runs it over the cases, compares trimmed output and
// applies the scoring side effects of a passing submission.
package judger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/registry"
	"github.com/learnhub/judgecore/runner"
	"github.com/learnhub/judgecore/sanitize"
	"github.com/learnhub/judgecore/scorelock"
	"github.com/learnhub/judgecore/store"
	"github.com/learnhub/judgecore/types"
	"github.com/learnhub/judgecore/worker"
	"go.uber.org/zap"
)

const (
	anonymousKeyPrefix  = "temp-"
	defaultMessageLimit = 4 << 10
)

// errCancelled marks a run stopped by supersede, terminate or the caller
var errCancelled = errors.New("execution cancelled")

// Config defines the judge dependencies
type Config struct {
	Worker       worker.Worker
	Registry     *registry.Registry
	Store        store.Store
	Locker       scorelock.Locker
	Languages    *language.Table
	MessageLimit int
	Now          func() time.Time
	Logger       *zap.Logger
}

// Judger judges trial runs and submissions
type Judger struct {
	worker       worker.Worker
	registry     *registry.Registry
	store        store.Store
	locker       scorelock.Locker
	languages    *language.Table
	messageLimit int
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a judge
func New(conf Config) *Judger {
	if conf.Locker == nil {
		conf.Locker = scorelock.NewLocal()
	}
	if conf.Languages == nil {
		conf.Languages = language.Default()
	}
	if conf.MessageLimit <= 0 {
		conf.MessageLimit = defaultMessageLimit
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	return &Judger{
		worker:       conf.Worker,
		registry:     conf.Registry,
		store:        conf.Store,
		locker:       conf.Locker,
		languages:    conf.Languages,
		messageLimit: conf.MessageLimit,
		now:          conf.Now,
		logger:       conf.Logger,
	}
}

// RunTrial runs code once per input and compares with the expected
// outputs. Nothing is persisted.
func (j *Judger) RunTrial(ctx context.Context, req TrialRequest) (*TrialResult, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Language) == "" || req.Inputs == nil || req.ExpectedOutputs == nil {
		return nil, validationError(msgMissingTrial)
	}
	if len(req.Inputs) != len(req.ExpectedOutputs) {
		return nil, validationError(msgCaseMismatch)
	}
	lang, ok := j.parseLanguage(req.Language)
	if !ok {
		return &TrialResult{
			ExampleResults: []CaseResult{},
			Message:        msgUnsupportedPrefix + req.Language,
		}, nil
	}

	key := req.SubmitterKey
	if key == "" {
		key = anonymousKeyPrefix + uuid.NewString()
	}
	logger := j.logger.With(zap.String("key", key), zap.Stringer("language", lang))

	h, err := j.registry.Start(ctx, key)
	if err != nil {
		return nil, internalError(err)
	}
	defer h.Finish()

	results, err := j.runCases(h, lang, req.Code, req.Inputs, req.ExpectedOutputs, false)
	if errors.Is(err, errCancelled) {
		logger.Info("trial cancelled", zap.Error(h.Err()))
		return &TrialResult{ExampleResults: []CaseResult{}, Message: msgTerminated, Terminated: true}, nil
	}
	if err != nil {
		logger.Error("trial failed", zap.Error(err))
		return nil, internalError(err)
	}

	rt := &TrialResult{
		Success:        allPassed(results),
		ExampleResults: results,
		Message:        msgTrialFailed,
	}
	if rt.Success {
		rt.Message = msgTrialPassed
	}
	logger.Debug("trial finished", zap.Bool("success", rt.Success), zap.Int("cases", len(results)))
	return rt, nil
}

// Submit scores code against the question's example then hidden cases.
// A passing, first time submission updates points, streak and the
// completed set; the user is persisted once.
func (j *Judger) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.UserID == "" || req.QuestionID == "" || strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Language) == "" {
		return nil, validationError(msgMissingSubmit)
	}
	lang, ok := j.parseLanguage(req.Language)
	if !ok {
		return &SubmitResult{Message: msgUnsupportedPrefix + req.Language}, nil
	}
	logger := j.logger.With(zap.String("user", req.UserID), zap.String("question", req.QuestionID))

	// a newer request of the same user supersedes this one
	h, err := j.registry.Start(ctx, req.UserID)
	if err != nil {
		return nil, internalError(err)
	}
	defer h.Finish()
	hctx := h.Context()

	unlock, err := j.locker.Lock(hctx, req.UserID)
	if err != nil {
		if hctx.Err() != nil {
			return terminatedSubmit(), nil
		}
		return nil, internalError(err)
	}
	defer unlock()

	q, err := j.store.Question(hctx, req.QuestionID)
	if err != nil {
		return nil, j.storeError("Question not found", err)
	}
	u, err := j.store.User(hctx, req.UserID)
	if err != nil {
		return nil, j.storeError("User not found", err)
	}
	if u.HasCompleted(q.ID) {
		return &SubmitResult{
			Success:          true,
			PassedAllTests:   true,
			AlreadySubmitted: true,
			Message:          msgAlreadyCompleted,
		}, nil
	}

	examples, passed, err := j.judgeQuestion(h, lang, req.Code, q)
	if errors.Is(err, errCancelled) {
		logger.Info("submission cancelled", zap.Error(h.Err()))
		return terminatedSubmit(), nil
	}
	if err != nil {
		logger.Error("submission failed", zap.Error(err))
		return nil, internalError(err)
	}
	if !allPassed(examples) {
		return &SubmitResult{
			ExampleResults: examples,
			Message:        msgExamplesFailed,
		}, nil
	}

	now := j.now()
	sub := types.Submission{
		QuestionID:  q.ID,
		SourceCode:  req.Code,
		Language:    lang,
		SubmittedAt: now,
	}
	before := u.TotalPoints
	if passed {
		sub.Points = q.Points
		u.TotalPoints += q.Points
		UpdateStreak(u, now)
		u.Complete(q.ID)
	}
	// last chance for a newer request to win before anything is written
	if hctx.Err() != nil {
		return terminatedSubmit(), nil
	}
	if err := j.store.SaveProgress(hctx, u, &sub); err != nil {
		if hctx.Err() != nil {
			return terminatedSubmit(), nil
		}
		logger.Error("save progress failed", zap.Error(err))
		return nil, internalError(err)
	}

	rt := &SubmitResult{
		Success:        passed,
		PassedAllTests: passed,
		ExampleResults: examples,
		Message:        msgHiddenFailed,
		SubmissionID:   sub.ID,
	}
	if passed {
		rt.Message = msgHiddenPassed
		rt.PointsAwarded = u.TotalPoints - before
	}
	logger.Info("submission judged", zap.Bool("passed", passed), zap.String("submission", sub.ID))
	return rt, nil
}

// Terminate kills the running execution of key
func (j *Judger) Terminate(ctx context.Context, key string) bool {
	return j.registry.Terminate(ctx, key)
}

// UserProgress returns the scoring fields of a user
func (j *Judger) UserProgress(ctx context.Context, userID string) (*types.User, error) {
	if userID == "" {
		return nil, validationError("User ID is required")
	}
	u, err := j.store.User(ctx, userID)
	if err != nil {
		return nil, j.storeError("User not found", err)
	}
	return u, nil
}

// UserSubmissions lists the submissions of a user, newest first
func (j *Judger) UserSubmissions(ctx context.Context, userID string) ([]types.SubmissionRecord, error) {
	rs, err := j.store.UserSubmissions(ctx, userID)
	if err != nil {
		return nil, j.storeError("User not found", err)
	}
	return rs, nil
}

// QuestionSubmissions lists the submissions for a question, newest first
func (j *Judger) QuestionSubmissions(ctx context.Context, questionID string) ([]types.SubmissionRecord, error) {
	rs, err := j.store.QuestionSubmissions(ctx, questionID)
	if err != nil {
		return nil, j.storeError("Question not found", err)
	}
	return rs, nil
}

func (j *Judger) parseLanguage(s string) (language.Language, bool) {
	lang, err := language.Parse(s)
	if err != nil {
		return language.Invalid, false
	}
	_, ok := j.languages.Get(lang)
	return lang, ok
}

func (j *Judger) storeError(notFoundMsg string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(notFoundMsg, err)
	}
	return internalError(err)
}

func terminatedSubmit() *SubmitResult {
	return &SubmitResult{Message: msgTerminated, Terminated: true}
}

// judgeQuestion compiles once and runs all example cases, then, when they
// all pass, the hidden cases until the first mismatch
func (j *Judger) judgeQuestion(h *registry.Handle, lang language.Language, code string, q *types.Question) ([]CaseResult, bool, error) {
	prog, failed, err := j.prepare(h, lang, code)
	if err != nil {
		return nil, false, err
	}
	if failed != nil {
		return j.failAll(q.ExampleInputs, q.ExampleOutputs, *failed), false, nil
	}
	defer prog.Release()

	examples, err := j.runProgram(h, prog, q.ExampleInputs, q.ExampleOutputs, false)
	if err != nil || !allPassed(examples) {
		return examples, false, err
	}
	hidden, err := j.runProgram(h, prog, q.HiddenInputs, q.HiddenOutputs, true)
	if err != nil {
		return nil, false, err
	}
	return examples, allPassed(hidden), nil
}

// runCases compiles once and runs every input
func (j *Judger) runCases(h *registry.Handle, lang language.Language, code string, inputs, expected []string, stopOnFail bool) ([]CaseResult, error) {
	prog, failed, err := j.prepare(h, lang, code)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return j.failAll(inputs, expected, *failed), nil
	}
	defer prog.Release()
	return j.runProgram(h, prog, inputs, expected, stopOnFail)
}

func (j *Judger) prepare(h *registry.Handle, lang language.Language, code string) (*runner.Program, *runner.Result, error) {
	ctx := h.Context()
	rt := <-j.worker.Submit(ctx, &worker.Request{
		RequestID: uuid.NewString(),
		Prepare: &runner.PrepareParam{
			Key:      h.Key(),
			Language: lang,
			Source:   code,
			Tracker:  h,
		},
	})
	if rt.Error != nil {
		if ctx.Err() != nil {
			return nil, nil, errCancelled
		}
		return nil, nil, rt.Error
	}
	if rt.Program == nil {
		switch {
		case rt.Result == nil, rt.Result.Status == envexec.StatusTerminated:
			return nil, nil, errCancelled
		case rt.Result.Status == envexec.StatusInternalError:
			return nil, nil, errors.New(rt.Result.Message())
		}
		return nil, rt.Result, nil
	}
	return rt.Program, nil, nil
}

func (j *Judger) runProgram(h *registry.Handle, prog *runner.Program, inputs, expected []string, stopOnFail bool) ([]CaseResult, error) {
	ctx := h.Context()
	results := make([]CaseResult, 0, len(inputs))
	for i, in := range inputs {
		rt := <-j.worker.Submit(ctx, &worker.Request{
			RequestID: uuid.NewString(),
			Program:   prog,
			Stdin:     []string{in},
		})
		if rt.Error != nil {
			if ctx.Err() != nil {
				return nil, errCancelled
			}
			return nil, rt.Error
		}
		res := *rt.Result
		if res.Status == envexec.StatusTerminated || ctx.Err() != nil {
			return nil, errCancelled
		}
		if res.Status == envexec.StatusInternalError {
			return nil, errors.New(res.Message())
		}
		cr := j.caseResult(in, expected[i], res)
		results = append(results, cr)
		if stopOnFail && !cr.Passed {
			break
		}
	}
	return results, nil
}

func (j *Judger) caseResult(input, expected string, res runner.Result) CaseResult {
	cr := CaseResult{
		Input:    input,
		Output:   res.Output(),
		Expected: expected,
		Status:   res.Status,
		TimedOut: res.TimedOut,
	}
	if res.Failed() {
		cr.Error = sanitize.Truncate(res.Message(), j.messageLimit)
		return cr
	}
	cr.Passed = res.Output() == strings.TrimSpace(expected)
	if !cr.Passed {
		cr.Status = envexec.StatusWrongAnswer
	}
	return cr
}

// failAll reports the compile failure on every case
func (j *Judger) failAll(inputs, expected []string, res runner.Result) []CaseResult {
	msg := sanitize.Truncate(res.Message(), j.messageLimit)
	rt := make([]CaseResult, 0, len(inputs))
	for i, in := range inputs {
		rt = append(rt, CaseResult{
			Input:    in,
			Expected: expected[i],
			Error:    msg,
			Status:   envexec.StatusCompileError,
			TimedOut: res.TimedOut,
		})
	}
	return rt
}
