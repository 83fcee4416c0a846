package session

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
)

// fanout delivers events through the Notifier. Each recipient is independent:
// a failed enqueue is logged and counted and never stops the rest.
type fanout struct {
	registry *Registry
	notifier Notifier
	logger   *log.Logger
}

func (f *fanout) toRoom(ctx context.Context, roomCode, exclude, event string, payload any) int {
	return f.toConns(ctx, f.registry.ConnectionIDs(roomCode, exclude), event, payload)
}

func (f *fanout) toConns(ctx context.Context, connIDs []string, event string, payload any) int {
	delivered := 0
	for _, id := range connIDs {
		if err := f.notifier.Notify(ctx, id, event, payload); err != nil {
			deliveryFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
			f.logger.Warn("Failed to deliver event",
				log.String("connectionId", id),
				log.String("event", event),
				log.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Payload holds opaque signaling fields. The relay only adds sender tags
// ("from", "userId", "timestamp") and never looks inside the rest.
type Payload map[string]any

func (p Payload) tagged(sender Participant, ts string) Payload {
	out := make(Payload, len(p)+3)
	for k, v := range p {
		out[k] = v
	}
	out["from"] = sender.ConnectionID
	out["userId"] = sender.UserID
	out["timestamp"] = ts
	return out
}

// Relay forwards signaling between members of a room. Membership is read from
// the Registry only.
type Relay struct {
	fanout
	clock clockwork.Clock
}

func NewRelay(registry *Registry, notifier Notifier, clock clockwork.Clock, logger *log.Logger) *Relay {
	if registry == nil || notifier == nil {
		panic("registry and notifier are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		fanout: fanout{
			registry: registry,
			notifier: notifier,
			logger:   logger,
		},
		clock: clock,
	}
}

func (r *Relay) sender(roomCode, connID string) (Participant, error) {
	p, ok := r.registry.Get(roomCode, connID)
	if !ok {
		return Participant{}, errors.Newf(ErrNotAMember, "You must be in the room %s", roomCode)
	}
	return p, nil
}

// RelayToPeer forwards payload to targetConnID as event. A target outside the
// room gets nothing and ErrTargetNotInRoom is returned. Delivery itself is
// fire-and-forget.
func (r *Relay) RelayToPeer(
	ctx context.Context,
	fromConnID string,
	roomCode string,
	targetConnID string,
	event string,
	payload Payload,
) error {
	sender, err := r.sender(roomCode, fromConnID)
	if err != nil {
		return err
	}
	if !r.registry.IsMember(roomCode, targetConnID) {
		relayDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
		r.logger.Debug("Relay target not in room",
			log.String("roomCode", roomCode),
			log.String("from", fromConnID),
			log.String("target", targetConnID),
			log.String("event", event))
		return errors.Newf(ErrTargetNotInRoom, "target %s is not in room %s", targetConnID, roomCode)
	}

	relayedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	r.toConns(ctx, []string{targetConnID}, event, payload.tagged(sender, FormatTimestamp(r.clock.Now())))
	return nil
}

// Broadcast sends a chat message to every other member of the room.
func (r *Relay) Broadcast(ctx context.Context, fromConnID, roomCode, message string) error {
	sender, err := r.sender(roomCode, fromConnID)
	if err != nil {
		return err
	}
	r.toRoom(ctx, roomCode, fromConnID, EventMessage, &messagePayload{
		From:      fromConnID,
		UserID:    sender.UserID,
		Message:   message,
		Timestamp: FormatTimestamp(r.clock.Now()),
	})
	return nil
}

// BroadcastEvent sends a tagged payload as event to every other member of the room.
// It returns how many recipients accepted the event.
func (r *Relay) BroadcastEvent(
	ctx context.Context,
	fromConnID string,
	roomCode string,
	event string,
	payload Payload,
) (int, error) {
	sender, err := r.sender(roomCode, fromConnID)
	if err != nil {
		return 0, err
	}
	n := r.toRoom(ctx, roomCode, fromConnID, event, payload.tagged(sender, FormatTimestamp(r.clock.Now())))
	return n, nil
}

// SendExistingUsers tells connID which other connections are in its room.
func (r *Relay) SendExistingUsers(ctx context.Context, connID, roomCode string) error {
	if _, err := r.sender(roomCode, connID); err != nil {
		return err
	}
	users := r.registry.ConnectionIDs(roomCode, connID)
	r.toConns(ctx, []string{connID}, EventExistingUsers, &existingUsersPayload{
		Users:     users,
		Timestamp: FormatTimestamp(r.clock.Now()),
	})
	return nil
}

type existingUsersPayload struct {
	Users     []string `json:"users"`
	Timestamp string   `json:"timestamp"`
}
