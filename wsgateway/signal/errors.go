package signal

import (
	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/access"
	"github.com/imtaco/room-relay/session"
)

// Application error codes sent to clients next to the standard JSON-RPC ones.
const (
	CodeAccessDenied    = 4003
	CodeNotAMember      = 4004
	CodeAlreadyJoined   = 4009
	CodeNotFound        = 4040
	CodeTargetNotInRoom = 4041
	CodeRateLimited     = 4290
	CodeUnavailable     = 5030
)

// toRPCError maps session errors to what a client may see. Directory and
// internal details never leave the server.
func toRPCError(err error) *jsonrpc.Error {
	if rpcErr, ok := errors.As[*jsonrpc.Error](err); ok {
		return *rpcErr
	}

	if denied, ok := errors.As[*access.DeniedError](err); ok {
		return jsonrpc.ErrCustom(CodeAccessDenied, (*denied).Error())
	}

	switch {
	case errors.Is(err, session.ErrValidation):
		return jsonrpc.ErrInvalidParams(errors.Message(err))
	case errors.Is(err, session.ErrForbidden):
		return jsonrpc.ErrCustom(CodeAccessDenied, errors.Message(err))
	case errors.Is(err, session.ErrNotAMember):
		return jsonrpc.ErrCustom(CodeNotAMember, errors.Message(err))
	case errors.Is(err, session.ErrAlreadyJoined):
		return jsonrpc.ErrCustom(CodeAlreadyJoined, errors.Message(err))
	case errors.Is(err, session.ErrTargetNotInRoom):
		return jsonrpc.ErrCustom(CodeTargetNotInRoom, "Target user is not in the room")
	case errors.Is(err, session.ErrNotFound):
		return jsonrpc.ErrCustom(CodeNotFound, "Not found")
	case errors.IsAny(err, rooms.ErrDirectoryUnavailable, session.ErrCreationFailed, session.ErrCodeExhausted):
		return jsonrpc.ErrCustom(CodeUnavailable, "Service temporarily unavailable")
	default:
		return jsonrpc.ErrInternal("Internal error")
	}
}

var errRateLimited = jsonrpc.ErrCustom(CodeRateLimited, "Too many requests")
