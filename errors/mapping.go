package errors

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is the error code carried by websocket error frames.
type Code string

const (
	CodeAuth        Code = "AUTH"
	CodeMembership  Code = "MEMBERSHIP"
	CodeNotJoined   Code = "NOT_JOINED"
	CodePersistence Code = "PERSISTENCE"
	CodeProtocol    Code = "PROTOCOL"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeInternal    Code = "INTERNAL"
)

// CodeOf maps an error to its wire code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrAuth):
		return CodeAuth
	case Is(err, ErrMembership), Is(err, ErrRoomNotFound):
		return CodeMembership
	case Is(err, ErrNotJoined):
		return CodeNotJoined
	case Is(err, ErrPersistence), Is(err, ErrSequenceConflict):
		return CodePersistence
	case Is(err, ErrProtocol), Is(err, ErrInvalidRoom):
		return CodeProtocol
	case Is(err, ErrRateLimited):
		return CodeRateLimited
	case Is(err, ErrUnavailable), Is(err, ErrSessionClosed),
		Is(err, context.DeadlineExceeded), Is(err, context.Canceled):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case Is(err, ErrAuth), Is(err, ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case Is(err, ErrMembership):
		return status.Error(codes.PermissionDenied, err.Error())
	case Is(err, ErrRoomNotFound), Is(err, ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	case Is(err, ErrUserAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case Is(err, ErrProtocol), Is(err, ErrInvalidRoom), Is(err, ErrInvalidPassword):
		return status.Error(codes.InvalidArgument, err.Error())
	case Is(err, ErrPersistence), Is(err, ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
