package signal

import "github.com/imtaco/room-relay/rooms"

type roomParams struct {
	RoomCode string `json:"roomCode" validate:"required,roomcode"`
}

type targetParams struct {
	RoomCode           string `json:"roomCode" validate:"required,roomcode"`
	TargetConnectionID string `json:"targetConnectionId" validate:"required"`
}

type createRoomParams struct {
	Name            string `json:"name" validate:"required,roomname"`
	OwnerID         string `json:"ownerId"`
	MaxParticipants int    `json:"maxParticipants" validate:"capacity"`
	InviteOnly      bool   `json:"inviteOnly"`
}

type ackResult struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

type createRoomResult struct {
	Room      *rooms.Room `json:"room"`
	RoomCode  string      `json:"roomCode"`
	Timestamp string      `json:"timestamp"`
}

type errorEvent struct {
	Message string `json:"message"`
	Code    int64  `json:"code"`
	Method  string `json:"method,omitempty"`
}
