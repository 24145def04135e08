package api

import (
	"context"
	"errors"
	"net/http"

	"warehub/internal/apperror"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func httpStatus(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindState:
		return http.StatusConflict
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindUpstream:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return codes.InvalidArgument
	case apperror.KindAuthorization:
		return codes.PermissionDenied
	case apperror.KindState:
		return codes.FailedPrecondition
	case apperror.KindNotFound:
		return codes.NotFound
	case apperror.KindUpstream:
		return codes.Unavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// grpcError converts a service error into a status error. Only the
// caller-safe message leaves the process.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(grpcCode(err), apperror.Message(err))
}
