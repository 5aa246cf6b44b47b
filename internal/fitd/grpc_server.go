package fitd

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
)

// ObjectiveService lets an out-of-process minimizer drive a session. Its
// messages are protobuf well-known types:
//
//	Evaluate(Struct{session_id, parameters}) -> DoubleValue (NLL)
//	Describe(StringValue session_id)         -> Struct{free, initial, lower, upper, model}
const (
	objectiveServiceName   = "ampcore.v1.ObjectiveService"
	objectiveEvaluatePath  = "/" + objectiveServiceName + "/Evaluate"
	objectiveDescribePath  = "/" + objectiveServiceName + "/Describe"
	objectiveServiceSource = "ampcore/v1/objective.proto"
)

// ObjectiveServer is the server API for ObjectiveService.
type ObjectiveServer interface {
	Evaluate(context.Context, *structpb.Struct) (*wrapperspb.DoubleValue, error)
	Describe(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ObjectiveServiceDesc describes ObjectiveService for grpc.Server.RegisterService.
var ObjectiveServiceDesc = grpc.ServiceDesc{
	ServiceName: objectiveServiceName,
	HandlerType: (*ObjectiveServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: objectiveServiceSource,
}

// RegisterObjectiveServer registers srv on s.
func RegisterObjectiveServer(s grpc.ServiceRegistrar, srv ObjectiveServer) {
	s.RegisterService(&ObjectiveServiceDesc, srv)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectiveServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: objectiveEvaluatePath}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ObjectiveServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectiveServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: objectiveDescribePath}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ObjectiveServer).Describe(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ObjectiveGRPCServer implements ObjectiveServer on top of a FitExecutor.
type ObjectiveGRPCServer struct {
	Executor *FitExecutor
}

func NewObjectiveGRPCServer(executor *FitExecutor) *ObjectiveGRPCServer {
	return &ObjectiveGRPCServer{Executor: executor}
}

func (s *ObjectiveGRPCServer) Evaluate(ctx context.Context, req *structpb.Struct) (*wrapperspb.DoubleValue, error) {
	id, params, err := parseEvaluateRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	nll, err := s.Executor.Evaluate(id, params)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.Double(nll), nil
}

func (s *ObjectiveGRPCServer) Describe(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req == nil || req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, ErrSessionIDMissing.Error())
	}
	rec, err := s.Executor.session(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}

	names := rec.Model.FreeParameterNames()
	free := make([]any, len(names))
	for i, n := range names {
		free[i] = n
	}
	initial := rec.Model.Initial()
	bounds := rec.Model.Bounds()
	start, lower, upper := make([]any, len(initial)), make([]any, len(bounds)), make([]any, len(bounds))
	for i, v := range initial {
		start[i] = v
	}
	for i, b := range bounds {
		lower[i], upper[i] = b.Lower, b.Upper
	}

	out, err := structpb.NewStruct(map[string]any{
		"session_id": rec.ID,
		"model":      rec.Model.String(),
		"free":       free,
		"initial":    start,
		"lower":      lower,
		"upper":      upper,
	})
	if err != nil {
		logger.Error("failed to build describe response", "session_id", rec.ID, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func newEvaluateRequest(sessionID string, params []float64) (*structpb.Struct, error) {
	values := make([]any, len(params))
	for i, v := range params {
		values[i] = v
	}
	return structpb.NewStruct(map[string]any{
		"session_id": sessionID,
		"parameters": values,
	})
}

func parseEvaluateRequest(req *structpb.Struct) (string, []float64, error) {
	if req == nil {
		return "", nil, ErrSessionIDMissing
	}
	fields := req.GetFields()
	id := fields["session_id"].GetStringValue()
	if id == "" {
		return "", nil, ErrSessionIDMissing
	}
	list := fields["parameters"].GetListValue()
	params := make([]float64, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return "", nil, fmt.Errorf("parameter %d is not a number", i)
		}
		params = append(params, n.NumberValue)
	}
	return id, params, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrDatasetNotFound), errors.Is(err, ErrNoFit):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrSessionIDMissing), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, amplitude.ErrParameterCount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrFitRunning), errors.Is(err, ErrSessionTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ObjectiveClient calls a remote ObjectiveService.
type ObjectiveClient struct {
	cc grpc.ClientConnInterface
}

func NewObjectiveClient(cc grpc.ClientConnInterface) *ObjectiveClient {
	return &ObjectiveClient{cc: cc}
}

// Evaluate returns the NLL of session sessionID at params.
func (c *ObjectiveClient) Evaluate(ctx context.Context, sessionID string, params []float64, opts ...grpc.CallOption) (float64, error) {
	in, err := newEvaluateRequest(sessionID, params)
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.DoubleValue)
	if err := c.cc.Invoke(ctx, objectiveEvaluatePath, in, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Describe returns the free parameter layout of a session.
func (c *ObjectiveClient) Describe(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, objectiveDescribePath, wrapperspb.String(sessionID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
