package restexecutor

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnhub/judgecore/cmd/judge-server/model"
	"github.com/learnhub/judgecore/judger"
	"go.uber.org/zap"
)

type judgeHandle struct {
	judge  model.Judge
	logger *zap.Logger
}

// NewJudgeHandle creates the run / submit / terminate handle
func NewJudgeHandle(judge model.Judge, logger *zap.Logger) Register {
	return &judgeHandle{
		judge:  judge,
		logger: logger,
	}
}

func (j *judgeHandle) Register(r gin.IRouter) {
	r.POST("/run", j.handleRun)
	r.POST("/submit", j.handleSubmit)
	r.POST("/terminate", j.handleTerminate)
	r.GET("/users/:userId", j.handleUser)
	r.GET("/submissions/user/:userId", j.handleUserSubmissions)
	r.GET("/submissions/question/:questionId", j.handleQuestionSubmissions)
}

func (j *judgeHandle) handleRun(c *gin.Context) {
	var req judger.TrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Message: err.Error()})
		return
	}
	j.logger.Debug("run", zap.String("language", req.Language), zap.Int("cases", len(req.Inputs)))
	rt, err := j.judge.RunTrial(c.Request.Context(), req)
	if err != nil {
		j.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (j *judgeHandle) handleSubmit(c *gin.Context) {
	var req judger.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Message: err.Error()})
		return
	}
	j.logger.Debug("submit", zap.String("user", req.UserID), zap.String("question", req.QuestionID))
	rt, err := j.judge.Submit(c.Request.Context(), req)
	if err != nil {
		j.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (j *judgeHandle) handleTerminate(c *gin.Context) {
	var req model.TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Message: "User ID is required"})
		return
	}
	c.JSON(http.StatusOK, model.TerminateResponse{
		Terminated: j.judge.Terminate(c.Request.Context(), req.UserID),
	})
}

func (j *judgeHandle) handleUser(c *gin.Context) {
	u, err := j.judge.UserProgress(c.Request.Context(), c.Param("userId"))
	if err != nil {
		j.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ConvertProgress(u))
}

func (j *judgeHandle) handleUserSubmissions(c *gin.Context) {
	rt, err := j.judge.UserSubmissions(c.Request.Context(), c.Param("userId"))
	if err != nil {
		j.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (j *judgeHandle) handleQuestionSubmissions(c *gin.Context) {
	rt, err := j.judge.QuestionSubmissions(c.Request.Context(), c.Param("questionId"))
	if err != nil {
		j.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (j *judgeHandle) abort(c *gin.Context, err error) {
	c.Error(err)
	code, body := model.ConvertError(err)
	if code >= http.StatusInternalServerError {
		j.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, body)
}
