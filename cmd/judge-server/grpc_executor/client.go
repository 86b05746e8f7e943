package grpcexecutor

import (
	"context"

	"github.com/learnhub/judgecore/cmd/judge-server/model"
	"github.com/learnhub/judgecore/judger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the judge.Judge service with typed requests
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client on cc
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// RunTrial calls judge.Judge/RunTrial
func (c *Client) RunTrial(ctx context.Context, req judger.TrialRequest, opts ...grpc.CallOption) (*judger.TrialResult, error) {
	return invoke[judger.TrialResult](ctx, c.cc, "RunTrial", req, opts)
}

// Submit calls judge.Judge/Submit
func (c *Client) Submit(ctx context.Context, req judger.SubmitRequest, opts ...grpc.CallOption) (*judger.SubmitResult, error) {
	return invoke[judger.SubmitResult](ctx, c.cc, "Submit", req, opts)
}

// Terminate calls judge.Judge/Terminate
func (c *Client) Terminate(ctx context.Context, userID string, opts ...grpc.CallOption) (bool, error) {
	rt, err := invoke[model.TerminateResponse](ctx, c.cc, "Terminate", model.TerminateRequest{UserID: userID}, opts)
	if err != nil {
		return false, err
	}
	return rt.Terminated, nil
}

func invoke[T any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*T, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	rt := new(T)
	if err := fromStruct(out, rt); err != nil {
		return nil, err
	}
	return rt, nil
}
