// Package wsexecutor serves run, submit and terminate requests over a
// WebSocket connection. Requests on a connection run concurrently and
// replies carry the id of their request.
package wsexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/learnhub/judgecore/cmd/judge-server/model"
	"github.com/learnhub/judgecore/judger"
	"go.uber.org/zap"
)

// Message types
const (
	TypeRun       = "run"
	TypeSubmit    = "submit"
	TypeTerminate = "terminate"
	TypeError     = "error"
)

// Register registers web socket handle /ws
type Register interface {
	Register(gin.IRouter)
}

// Request is a client message. Fields not used by Type are ignored.
type Request struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	judger.TrialRequest
	QuestionID string `json:"questionId,omitempty"`
}

// Response is a server message
type Response struct {
	Type   string               `json:"type"`
	ID     string               `json:"id,omitempty"`
	Result any                  `json:"result,omitempty"`
	Error  *model.ErrorResponse `json:"error,omitempty"`
}

// New creates new websocket handle
func New(judge model.Judge, logger *zap.Logger) Register {
	return &wsHandle{
		judge:  judge,
		logger: logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type wsHandle struct {
	judge  model.Judge
	logger *zap.Logger
}

func (h *wsHandle) Register(r gin.IRouter) {
	r.GET("/ws", h.handleWS)
}

func (h *wsHandle) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.Error(err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sendCh := make(chan Response, 16)

	go h.sendLoop(ctx, cancel, conn, sendCh)
	go func() {
		// closing the connection cancels every request still running
		var wg sync.WaitGroup
		defer wg.Wait()
		defer cancel()
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				if isDecodeError(err) {
					h.send(ctx, sendCh, errorResponse(req, &judger.Error{Kind: judger.KindValidation, Message: err.Error()}))
					continue
				}
				h.logger.Debug("ws read finished", zap.Error(err))
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.send(ctx, sendCh, h.handle(ctx, req))
			}()
		}
	}()
}

func (h *wsHandle) handle(ctx context.Context, req Request) Response {
	rt := Response{Type: req.Type, ID: req.ID}
	var err error
	switch req.Type {
	case TypeRun:
		rt.Result, err = h.judge.RunTrial(ctx, req.TrialRequest)
	case TypeSubmit:
		rt.Result, err = h.judge.Submit(ctx, judger.SubmitRequest{
			UserID:     req.SubmitterKey,
			QuestionID: req.QuestionID,
			Code:       req.Code,
			Language:   req.Language,
		})
	case TypeTerminate:
		if req.SubmitterKey == "" {
			err = &judger.Error{Kind: judger.KindValidation, Message: "User ID is required"}
			break
		}
		rt.Result = model.TerminateResponse{Terminated: h.judge.Terminate(ctx, req.SubmitterKey)}
	default:
		err = &judger.Error{Kind: judger.KindValidation, Message: "unknown message type: " + req.Type}
	}
	if err != nil {
		if model.IsInternal(err) {
			h.logger.Error("ws request failed", zap.String("type", req.Type), zap.Error(err))
		}
		return errorResponse(req, err)
	}
	return rt
}

func errorResponse(req Request, err error) Response {
	_, body := model.ConvertError(err)
	return Response{Type: TypeError, ID: req.ID, Error: &body}
}

func isDecodeError(err error) bool {
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &te)
}

// send gives up once the connection is finished, sendLoop cancels ctx
// when it can no longer write
func (h *wsHandle) send(ctx context.Context, sendCh chan<- Response, r Response) {
	select {
	case <-ctx.Done():
	case sendCh <- r:
	}
}

func (h *wsHandle) sendLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sendCh <-chan Response) {
	defer cancel()
	defer conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(r); err != nil {
				h.logger.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
