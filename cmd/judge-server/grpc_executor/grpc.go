// Package grpcexecutor serves the judge over gRPC
package grpcexecutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnhub/judgecore/cmd/judge-server/model"
	"github.com/learnhub/judgecore/judger"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// New creates grpc judge server
func New(judge model.Judge, logger *zap.Logger) JudgeServer {
	return &judgeServer{
		judge:  judge,
		logger: logger,
	}
}

type judgeServer struct {
	judge  model.Judge
	logger *zap.Logger
}

func (j *judgeServer) RunTrial(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req judger.TrialRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rt, err := j.judge.RunTrial(ctx, req)
	if err != nil {
		return nil, j.convertError(err)
	}
	return toStruct(rt)
}

func (j *judgeServer) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req judger.SubmitRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rt, err := j.judge.Submit(ctx, req)
	if err != nil {
		return nil, j.convertError(err)
	}
	return toStruct(rt)
}

func (j *judgeServer) Terminate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.TerminateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "User ID is required")
	}
	return toStruct(model.TerminateResponse{Terminated: j.judge.Terminate(ctx, req.UserID)})
}

func (j *judgeServer) convertError(err error) error {
	_, body := model.ConvertError(err)
	switch judger.KindOf(err) {
	case judger.KindValidation:
		return status.Error(codes.InvalidArgument, body.Message)
	case judger.KindNotFound:
		return status.Error(codes.NotFound, body.Message)
	}
	j.logger.Error("grpc request failed", zap.Error(err))
	return status.Error(codes.Internal, body.Details)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
