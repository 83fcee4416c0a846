package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/access"
	"github.com/imtaco/room-relay/session"
)

func TestToRPCError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int64
		message string
	}{
		{"validation", errors.New(session.ErrValidation, "room name is required"), jsonrpc.CodeInvalidParams, "room name is required"},
		{"denied", access.Denied(access.ReasonRoomFull, "abc-xyz"), CodeAccessDenied, "Room is at maximum capacity"},
		{"forbidden", errors.New(session.ErrForbidden, "owner only"), CodeAccessDenied, "owner only"},
		{"not a member", errors.New(session.ErrNotAMember, "You must be in the room abc-xyz"), CodeNotAMember, "You must be in the room abc-xyz"},
		{"already joined", errors.New(session.ErrAlreadyJoined, "already in abc-xyz"), CodeAlreadyJoined, "already in abc-xyz"},
		{"not found", errors.New(session.ErrNotFound, "gone"), CodeNotFound, "Not found"},
		{"target", errors.New(session.ErrTargetNotInRoom, "c9"), CodeTargetNotInRoom, "Target user is not in the room"},
		{"directory", errors.Wrap(rooms.ErrDirectoryUnavailable, errors.PureNew("dial tcp: refused"), "find"), CodeUnavailable, "Service temporarily unavailable"},
		{"creation", errors.Wrap(session.ErrCreationFailed, errors.PureNew("LOADING"), "create"), CodeUnavailable, "Service temporarily unavailable"},
		{"internal", errors.New(session.ErrInternal, "registry out of sync"), jsonrpc.CodeInternalError, "Internal error"},
		{"passthrough", jsonrpc.ErrCustom(CodeRateLimited, "Too many requests"), CodeRateLimited, "Too many requests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toRPCError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}
