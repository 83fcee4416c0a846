package rooms

import (
	"context"
	"time"

	"github.com/imtaco/room-relay/internal/errors"
)

const (
	DefaultMaxParticipants = 10
)

const (
	ErrRoomExists   errors.Code = "room exists"
	ErrRoomNotFound errors.Code = "room not found"
	// ErrDirectoryUnavailable marks a failed or timed out Directory call.
	ErrDirectoryUnavailable errors.Code = "directory unavailable"
)

// Room is the durable record kept by a Directory.
type Room struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	OwnerID         string    `json:"ownerId"`
	MaxParticipants int       `json:"maxParticipants"`
	IsActive        bool      `json:"isActive"`
	InviteOnly      bool      `json:"inviteOnly"`
	Participants    []string  `json:"participants"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Directory is the authoritative room repository.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Create persists room, failing with ErrRoomExists when the code is taken.
	Create(ctx context.Context, room *Room) error
	// FindByCode returns nil, nil when no room has this code.
	FindByCode(ctx context.Context, code string) (*Room, error)
	IsActive(ctx context.Context, code string) (bool, error)
	ParticipantCount(ctx context.Context, code string) (int, error)
	IsMember(ctx context.Context, code, userID string) (bool, error)
	// AddParticipant fails with ErrRoomNotFound when the room is gone.
	AddParticipant(ctx context.Context, code, userID string) error
	// RemoveParticipant returns the number of participants left.
	RemoveParticipant(ctx context.Context, code, userID string) (int, error)
	Delete(ctx context.Context, code string) (bool, error)
	// SetActive fails with ErrRoomNotFound when the room is gone.
	SetActive(ctx context.Context, code string, active bool) error
}
