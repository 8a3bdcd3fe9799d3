package grpcserver

import (
	"errors"

	"github.com/tbeaudouin05/fanvault/api/services/stripe/app"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// confirmPending is what the buyer sees when a payment cannot be verified yet.
const confirmPending = "we couldn't verify your payment yet, please check your purchases page"

// toStatus maps app errors to gRPC status codes. Storage and provider details
// stay in the logs.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrBadEvent), errors.Is(err, app.ErrSignature):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, app.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, app.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, app.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, app.ErrPlanMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, app.ErrGateway):
		return status.Error(codes.Unavailable, "payment provider unavailable")
	}
	return status.Error(codes.Internal, "internal error")
}

// confirmStatus degrades every failure the buyer cannot fix to the same
// retryable message.
func confirmStatus(err error) error {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrUnauthenticated), errors.Is(err, app.ErrForbidden):
		return toStatus(err)
	}
	return status.Error(codes.Unavailable, confirmPending)
}
