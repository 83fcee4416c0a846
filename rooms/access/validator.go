package access

import (
	"context"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/code"
)

const ErrAccessDenied errors.Code = "access denied"

// Reason tells why access to a room was refused.
type Reason string

const (
	ReasonInvalidFormat Reason = "InvalidFormat"
	ReasonRoomNotFound  Reason = "RoomNotFound"
	ReasonRoomInactive  Reason = "RoomInactive"
	ReasonNotAMember    Reason = "NotAMember"
	ReasonRoomFull      Reason = "RoomFull"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidFormat: "Invalid room code format",
	ReasonRoomNotFound:  "Room does not exist",
	ReasonRoomInactive:  "Room is no longer active",
	ReasonNotAMember:    "User does not have access to this room",
	ReasonRoomFull:      "Room is at maximum capacity",
}

// DeniedError matches ErrAccessDenied with errors.Is.
type DeniedError struct {
	Reason   Reason
	RoomCode string
}

func (e *DeniedError) Error() string {
	return reasonMessages[e.Reason]
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

func Denied(reason Reason, roomCode string) error {
	return &DeniedError{Reason: reason, RoomCode: roomCode}
}

// ReasonOf returns the denial reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	denied, ok := errors.As[*DeniedError](err)
	if !ok {
		return "", false
	}
	return (*denied).Reason, true
}

type Validator interface {
	// Check returns the examined room when userID may join roomCode.
	Check(ctx context.Context, roomCode, userID string) (*rooms.Room, error)
}

type validatorImpl struct {
	dir    rooms.Directory
	logger *log.Logger
}

func NewValidator(dir rooms.Directory, logger *log.Logger) Validator {
	if dir == nil {
		panic("directory is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &validatorImpl{
		dir:    dir,
		logger: logger,
	}
}

// Check runs format, existence, active, membership and capacity checks in that order.
// The first failing check decides the reason and later checks never run.
func (v *validatorImpl) Check(ctx context.Context, roomCode, userID string) (*rooms.Room, error) {
	if !code.ValidateFormat(roomCode) {
		return nil, Denied(ReasonInvalidFormat, roomCode)
	}

	room, err := v.dir.FindByCode(ctx, roomCode)
	if err != nil {
		return nil, unavailable(err, "find room %s", roomCode)
	}
	if room == nil {
		return nil, Denied(ReasonRoomNotFound, roomCode)
	}

	active, err := v.dir.IsActive(ctx, roomCode)
	if err != nil {
		return nil, unavailable(err, "check active flag of %s", roomCode)
	}
	if !active {
		return nil, Denied(ReasonRoomInactive, roomCode)
	}

	member, err := v.dir.IsMember(ctx, roomCode, userID)
	if err != nil {
		return nil, unavailable(err, "check membership in %s", roomCode)
	}
	if room.InviteOnly && !member {
		return nil, Denied(ReasonNotAMember, roomCode)
	}

	// returning members already hold a seat
	if member {
		return room, nil
	}
	count, err := v.dir.ParticipantCount(ctx, roomCode)
	if err != nil {
		return nil, unavailable(err, "count participants of %s", roomCode)
	}
	if count >= room.MaxParticipants {
		v.logger.Debug("Room is full",
			log.String("roomCode", roomCode),
			log.Int("count", count),
			log.Int("max", room.MaxParticipants))
		return nil, Denied(ReasonRoomFull, roomCode)
	}
	return room, nil
}

func unavailable(err error, format string, args ...any) error {
	return errors.Wrapf(rooms.ErrDirectoryUnavailable, err, format, args...)
}
