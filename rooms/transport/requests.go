package transport

// CreateRoomRequest is the body of POST /api/rooms. The owner is the caller.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,roomname"`
	// MaxParticipants: 0 selects the server default
	MaxParticipants int  `json:"maxParticipants" binding:"capacity"`
	InviteOnly      bool `json:"inviteOnly"`
}

// RoomURI binds the :code path segment. Its format is checked by the session
// layer so a bad code gets the same answer as on the websocket.
type RoomURI struct {
	Code string `uri:"code" binding:"required"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}
