// Package transport adapts the Doctor admission gate to two RPC
// frameworks: a gRPC unary client interceptor and an HTTP RoundTripper.
// Both are thin: all admission and bookkeeping logic lives in doctor,
// breaker and metrics; this package only classifies an outcome into one
// of the five recorders and calls Test/RecordCalled around the call.
package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doctor-go/doctor"
)

// Guardian is the subset of *doctor.Doctor the adapters need, so tests can
// substitute a fake without constructing a full Doctor.
type Guardian interface {
	Test(service, endpoint string) bool
	RecordCalled(service, endpoint string)
	RecordOK(service, endpoint string)
	RecordUserExc(service, endpoint string)
	RecordTimeout(service, endpoint string)
	RecordSysExc(service, endpoint string)
	RecordUnknownExc(service, endpoint string)
}

// GRPCUnaryClientInterceptor tests (service, method) before every call,
// denying with a codes.Unavailable status wrapping doctor.ErrCircuitOpen
// when the circuit is open, and classifies the resulting status into
// exactly one recorder call afterward.
func GRPCUnaryClientInterceptor(g Guardian, service string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !g.Test(service, method) {
			return fmt.Errorf("%w: %w", doctor.ErrCircuitOpen, status.Error(codes.Unavailable, method))
		}

		g.RecordCalled(service, method)
		err := invoker(ctx, method, req, reply, cc, opts...)
		classifyGRPC(g, service, method, err)
		return err
	}
}

// classifyGRPC maps a gRPC status code to one of the five outcome
// recorders. Codes that reflect the caller's request rather than the
// downstream dependency's health (InvalidArgument, NotFound, and the
// like) are user errors: they leave the endpoint's latest_state healthy.
func classifyGRPC(g Guardian, service, method string, err error) {
	if err == nil {
		g.RecordOK(service, method)
		return
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		g.RecordTimeout(service, method)
	case codes.Unavailable, codes.Internal, codes.ResourceExhausted, codes.Aborted:
		g.RecordSysExc(service, method)
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange:
		g.RecordUserExc(service, method)
	default:
		g.RecordUnknownExc(service, method)
	}
}
