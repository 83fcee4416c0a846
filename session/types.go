package session

import (
	"context"
	"time"

	"github.com/imtaco/room-relay/internal/errors"
)

const (
	ErrValidation      errors.Code = "validation error"
	ErrAlreadyJoined   errors.Code = "already joined"
	ErrNotAMember      errors.Code = "not a member"
	ErrNotFound        errors.Code = "not found"
	ErrTargetNotInRoom errors.Code = "target not in room"
	ErrCodeExhausted   errors.Code = "room code exhausted"
	ErrCreationFailed  errors.Code = "room creation failed"
	ErrForbidden       errors.Code = "forbidden"
	ErrInternal        errors.Code = "internal error"
)

// Outbound event names, kept stable for client compatibility.
const (
	EventConnectionStatus   = "connection-status"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventUserDisconnected   = "user-disconnected"
	EventVideoOffer         = "video-offer"
	EventVideoClose         = "video-close"
	EventExistingUsers      = "existing-users"
	EventVideoAnswer        = "video-answer-received"
	EventIceCandidate       = "ice-candidate-received"
	EventMediaStateChanged  = "peer-media-state-changed"
	EventPeerReconnecting   = "peer-reconnecting"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventSignal             = "signal"
	EventMessage            = "message"
	EventError              = "error"
)

// Participant is one live connection's membership in a room.
type Participant struct {
	ConnectionID    string    `json:"connectionId"`
	UserID          string    `json:"userId"`
	RoomCode        string    `json:"roomCode"`
	HasVideo        bool      `json:"hasVideo"`
	HasAudio        bool      `json:"hasAudio"`
	IsScreenSharing bool      `json:"isScreenSharing"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// Notifier delivers one outbound event to one live connection.
// Implementations enqueue and return; they must not wait on the recipient.
type Notifier interface {
	Notify(ctx context.Context, connID string, event string, payload any) error
}

// RoomEvent describes a durable membership change.
type RoomEvent struct {
	Type         string
	RoomCode     string
	UserID       string
	ConnectionID string
	At           time.Time
}

const (
	RoomEventCreated = "room-created"
	RoomEventJoined  = "user-joined"
	RoomEventLeft    = "user-left"
	RoomEventDeleted = "room-deleted"
)

// EventSink receives membership changes for external consumers. Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, ev *RoomEvent)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, *RoomEvent) {}

// JoinResult is returned to the joining connection.
type JoinResult struct {
	RoomCode     string        `json:"roomCode"`
	RoomName     string        `json:"roomName"`
	Participants []Participant `json:"participants"`
	Timestamp    string        `json:"timestamp"`
}

type userJoinedPayload struct {
	ConnectionID string        `json:"connectionId"`
	UserID       string        `json:"userId"`
	Participants []Participant `json:"participants"`
	Timestamp    string        `json:"timestamp"`
}

type userLeftPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Timestamp    string `json:"timestamp"`
}

type mediaStatePayload struct {
	ConnectionID string `json:"connectionId"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
	Timestamp    string `json:"timestamp"`
}

type screenSharePayload struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

type messagePayload struct {
	From      string `json:"from"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// isoLayout is ISO-8601 in UTC with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
