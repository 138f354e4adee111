package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

// validateRequired checks if a field is non-empty.
func validateRequired(field, fieldName string) error {
	if field == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

// =============================================================================
// ERROR CODES
// =============================================================================

// InvalidArgument returns a gRPC InvalidArgument error for a missing field.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// Internal wraps an internal error with context.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// toStatus maps engine errors onto gRPC codes.
//
//	InvalidPhaseTransitionError, stale or busy continuation -> FailedPrecondition
//	unknown objective                                        -> NotFound
//	PersistenceError                                         -> Unavailable
//	context errors                                           -> Canceled / DeadlineExceeded
//	anything else (rejected user input)                      -> InvalidArgument
func toStatus(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var transition *interview.InvalidPhaseTransitionError
	var persistence *interview.PersistenceError
	code := codes.InvalidArgument
	switch {
	case errors.As(err, &transition),
		errors.Is(err, interview.ErrStaleContinuation),
		errors.Is(err, interview.ErrPromptAlreadyPending),
		errors.Is(err, interview.ErrObjectiveDependency):
		code = codes.FailedPrecondition
	case errors.Is(err, interview.ErrUnknownObjective):
		code = codes.NotFound
	case errors.As(err, &persistence):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Errorf(code, "%s: %v", operation, err)
}
