package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/overlay"
	"github.com/matheus3301/pmsync/internal/store"
	intsync "github.com/matheus3301/pmsync/internal/sync"
)

// toStatus maps engine errors onto gRPC codes. Errors that already carry a
// status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}

	var apiErr *blog.APIError
	code := codes.Internal
	switch {
	case errors.Is(err, intsync.ErrNoConversation), errors.Is(err, history.ErrEmpty):
		code = codes.FailedPrecondition
	case errors.Is(err, intsync.ErrStale):
		code = codes.Aborted
	case errors.Is(err, history.ErrBusy):
		code = codes.Unavailable
	case errors.Is(err, history.ErrExhausted):
		code = codes.OutOfRange
	case errors.Is(err, overlay.ErrRecallNotAllowed):
		code = codes.FailedPrecondition
	case errors.Is(err, store.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.As(err, &apiErr):
		code = apiCode(apiErr)
	}
	return grpcstatus.Error(code, err.Error())
}

func apiCode(e *blog.APIError) codes.Code {
	switch {
	case e.Status == http.StatusUnauthorized:
		return codes.Unauthenticated
	case e.Status == http.StatusForbidden:
		return codes.PermissionDenied
	case e.Status == http.StatusNotFound:
		return codes.NotFound
	case e.Status >= 500:
		return codes.Unavailable
	}
	return codes.FailedPrecondition
}

func invalid(format string, args ...any) error {
	return grpcstatus.Errorf(codes.InvalidArgument, format, args...)
}
