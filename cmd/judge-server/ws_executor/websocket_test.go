package wsexecutor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/learnhub/judgecore/judger"
	"github.com/learnhub/judgecore/types"
	"go.uber.org/zap/zaptest"
)

type mockJudge struct {
	block chan struct{}
}

func (m *mockJudge) RunTrial(ctx context.Context, req judger.TrialRequest) (*judger.TrialResult, error) {
	if req.Code == "block" {
		select {
		case <-m.block:
		case <-ctx.Done():
			return &judger.TrialResult{Message: "Execution terminated.", Terminated: true}, nil
		}
	}
	return &judger.TrialResult{Success: true, ExampleResults: []judger.CaseResult{}, Message: req.Code}, nil
}

func (m *mockJudge) Submit(_ context.Context, req judger.SubmitRequest) (*judger.SubmitResult, error) {
	if req.QuestionID == "" {
		return nil, &judger.Error{Kind: judger.KindValidation, Message: "Missing required parameters"}
	}
	return &judger.SubmitResult{Success: true, PassedAllTests: true, SubmissionID: req.UserID + "-" + req.QuestionID}, nil
}

func (m *mockJudge) Terminate(context.Context, string) bool { return true }

func (m *mockJudge) UserProgress(context.Context, string) (*types.User, error) { return nil, nil }

func (m *mockJudge) UserSubmissions(context.Context, string) ([]types.SubmissionRecord, error) {
	return nil, nil
}

func (m *mockJudge) QuestionSubmissions(context.Context, string) ([]types.SubmissionRecord, error) {
	return nil, nil
}

type reply struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func dial(t *testing.T, m *mockJudge) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(m, zaptest.NewLogger(t)).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var r reply
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestWSRun(t *testing.T) {
	conn := dial(t, &mockJudge{})
	if err := conn.WriteJSON(map[string]any{
		"type": "run", "id": "1", "code": "hello", "language": "C",
		"inputs": []string{}, "expectedOutputs": []string{},
	}); err != nil {
		t.Fatal(err)
	}
	r := read(t, conn)
	if r.Type != TypeRun || r.ID != "1" || r.Error != nil {
		t.Fatalf("reply %+v", r)
	}
	var rt judger.TrialResult
	if err := json.Unmarshal(r.Result, &rt); err != nil {
		t.Fatal(err)
	}
	if !rt.Success || rt.Message != "hello" {
		t.Fatalf("result %+v", rt)
	}
}

func TestWSSubmitAndErrors(t *testing.T) {
	conn := dial(t, &mockJudge{})

	conn.WriteJSON(map[string]any{"type": "submit", "id": "s", "userId": "u1", "questionId": "q1", "code": "x", "language": "C"})
	r := read(t, conn)
	if r.Type != TypeSubmit || !strings.Contains(string(r.Result), `"submissionId":"u1-q1"`) {
		t.Fatalf("reply %+v %s", r, r.Result)
	}

	conn.WriteJSON(map[string]any{"type": "submit", "id": "bad", "userId": "u1"})
	r = read(t, conn)
	if r.Type != TypeError || r.ID != "bad" || r.Error == nil || r.Error.Message != "Missing required parameters" {
		t.Fatalf("reply %+v", r)
	}

	conn.WriteJSON(map[string]any{"type": "compile", "id": "x"})
	r = read(t, conn)
	if r.Type != TypeError || r.Error == nil {
		t.Fatalf("reply %+v", r)
	}

	conn.WriteJSON(map[string]any{"type": "terminate", "id": "t"})
	r = read(t, conn)
	if r.Type != TypeError {
		t.Fatalf("terminate without user: %+v", r)
	}

	// malformed messages do not close the connection
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type": ]}`))
	r = read(t, conn)
	if r.Type != TypeError {
		t.Fatalf("reply %+v", r)
	}
	conn.WriteJSON(map[string]any{"type": "terminate", "id": "t", "userId": "u1"})
	r = read(t, conn)
	if r.Type != TypeTerminate || strings.TrimSpace(string(r.Result)) != `{"terminated":true}` {
		t.Fatalf("reply %+v %s", r, r.Result)
	}
}

func TestWSConcurrentRequests(t *testing.T) {
	m := &mockJudge{block: make(chan struct{})}
	conn := dial(t, m)

	conn.WriteJSON(map[string]any{"type": "run", "id": "slow", "code": "block", "language": "C"})
	conn.WriteJSON(map[string]any{"type": "run", "id": "fast", "code": "fast", "language": "C"})
	if r := read(t, conn); r.ID != "fast" {
		t.Fatalf("reply %+v", r)
	}
	close(m.block)
	if r := read(t, conn); r.ID != "slow" {
		t.Fatalf("reply %+v", r)
	}
}

func TestWSSendAfterWriteFailure(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	conn := <-conns
	// writes on the server side fail from now on
	conn.NetConn().Close()

	h := &wsHandle{judge: &mockJudge{}, logger: zaptest.NewLogger(t)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sendCh := make(chan Response, 1)
	sendCh <- Response{Type: TypeRun, ID: "1"}
	loopDone := make(chan struct{})
	go func() {
		h.sendLoop(ctx, cancel, conn, sendCh)
		close(loopDone)
	}()
	select {
	case <-loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("send loop did not stop on write failure")
	}
	if ctx.Err() == nil {
		t.Fatal("connection context still live after send loop exit")
	}

	// a full channel with nobody draining it must not block senders
	sendCh <- Response{Type: TypeRun, ID: "2"}
	sent := make(chan struct{})
	go func() {
		h.send(ctx, sendCh, Response{Type: TypeError, ID: "3"})
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send blocked after send loop exit")
	}
}
