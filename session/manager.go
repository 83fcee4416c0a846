package session

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
	intotel "github.com/imtaco/room-relay/internal/otel"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/access"
	"github.com/imtaco/room-relay/rooms/code"
)

// Manager owns the join/leave lifecycle and keeps the Registry and the Directory in step.
//
// Lock order is connection first, then room. Membership changes of one room are
// serialized, different rooms proceed in parallel, and every operation of one
// connection runs in arrival order, so a disconnect always waits for an in-flight join.
type Manager struct {
	fanout
	dir       rooms.Directory
	access    access.Validator
	sink      EventSink
	roomLocks *keyedMutex
	connLocks *keyedMutex
	clock     clockwork.Clock
	cfg       Config
	generate  func() string
	tracer    trace.Tracer
}

func NewManager(
	dir rooms.Directory,
	validator access.Validator,
	registry *Registry,
	notifier Notifier,
	sink EventSink,
	clock clockwork.Clock,
	cfg Config,
	logger *log.Logger,
) *Manager {
	if dir == nil || validator == nil || registry == nil || notifier == nil {
		panic("directory, validator, registry and notifier are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		fanout: fanout{
			registry: registry,
			notifier: notifier,
			logger:   logger,
		},
		dir:       dir,
		access:    validator,
		sink:      sink,
		roomLocks: newKeyedMutex(),
		connLocks: newKeyedMutex(),
		clock:     clock,
		cfg:       cfg.withDefaults(),
		generate:  code.Generate,
		tracer:    otel.Tracer("session.manager"),
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) timestamp() string {
	return FormatTimestamp(m.clock.Now())
}

func (m *Manager) directoryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.DirectoryTimeout)
}

func (m *Manager) directoryError(ctx context.Context, err error, op, roomCode string) error {
	directoryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	m.logger.Error("Directory call failed",
		log.String("op", op),
		log.String("roomCode", roomCode),
		log.Error(err))
	if errors.Is(err, rooms.ErrDirectoryUnavailable) {
		return err
	}
	return errors.Wrapf(rooms.ErrDirectoryUnavailable, err, "%s %s", op, roomCode)
}

// publish runs under the room lock, so it gets the same bound as a Directory call.
func (m *Manager) publish(ctx context.Context, typ, roomCode, userID, connID string) {
	ctx, cancel := m.directoryCtx(ctx)
	defer cancel()
	m.sink.Publish(ctx, &RoomEvent{
		Type:         typ,
		RoomCode:     roomCode,
		UserID:       userID,
		ConnectionID: connID,
		At:           m.clock.Now().UTC(),
	})
}

// CreateRoom issues a fresh code and persists the room with the owner as its first participant.
// A maxParticipants of zero selects the configured default.
func (m *Manager) CreateRoom(
	ctx context.Context,
	ownerID string,
	name string,
	maxParticipants int,
	inviteOnly bool,
) (*rooms.Room, error) {
	ctx, span := intotel.StartSpan(ctx, m.tracer, "session.CreateRoom",
		attribute.String("owner.id", ownerID))
	defer span.End()

	name = strings.TrimSpace(name)
	switch {
	case ownerID == "":
		return nil, errors.New(ErrValidation, "owner id is required")
	case name == "":
		return nil, errors.New(ErrValidation, "room name is required")
	case maxParticipants < 0:
		return nil, errors.New(ErrValidation, "max participants must not be negative")
	case maxParticipants == 0:
		maxParticipants = m.cfg.DefaultMaxParticipants
	}

	now := m.clock.Now().UTC()
	for attempt := 1; attempt <= m.cfg.CodeAttempts; attempt++ {
		room := &rooms.Room{
			Code:            m.generate(),
			Name:            name,
			OwnerID:         ownerID,
			MaxParticipants: maxParticipants,
			IsActive:        true,
			InviteOnly:      inviteOnly,
			Participants:    []string{ownerID},
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		dctx, cancel := m.directoryCtx(ctx)
		err := m.dir.Create(dctx, room)
		cancel()

		if err == nil {
			intotel.SetSpanAttributes(span,
				attribute.String("room.code", room.Code),
				attribute.Int("attempt", attempt))
			roomsCreated.Add(ctx, 1)
			m.logger.Info("Room created",
				log.String("roomCode", room.Code),
				log.String("ownerId", ownerID),
				log.Int("maxParticipants", maxParticipants),
				log.Int("attempt", attempt))
			m.publish(ctx, RoomEventCreated, room.Code, ownerID, "")
			return room, nil
		}
		if errors.Is(err, rooms.ErrRoomExists) {
			m.logger.Debug("Room code collision, regenerating",
				log.String("roomCode", room.Code),
				log.Int("attempt", attempt))
			continue
		}

		intotel.RecordError(span, err)
		directoryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "create")))
		m.logger.Error("Failed to create room", log.String("ownerId", ownerID), log.Error(err))
		return nil, errors.Wrap(ErrCreationFailed, err, "Failed to create room")
	}

	err := errors.Newf(ErrCodeExhausted, "no free room code after %d attempts", m.cfg.CodeAttempts)
	intotel.RecordError(span, err)
	return nil, err
}

// JoinRoom admits connID into roomCode after the access check.
// The durable write happens before the registry entry, so a rejected or failed
// join leaves no trace and broadcasts nothing.
func (m *Manager) JoinRoom(ctx context.Context, connID, userID, roomCode string) (*JoinResult, error) {
	ctx, span := intotel.StartSpan(ctx, m.tracer, "session.JoinRoom",
		attribute.String("room.code", roomCode),
		attribute.String("connection.id", connID))
	defer span.End()

	if connID == "" || userID == "" {
		return nil, errors.New(ErrValidation, "connection and user are required")
	}

	unlockConn := m.connLocks.Lock(connID)
	defer unlockConn()

	if current, ok := m.registry.RoomOf(connID); ok {
		return nil, errors.Newf(ErrAlreadyJoined, "connection already joined room %s", current)
	}

	unlockRoom := m.roomLocks.Lock(roomCode)
	defer unlockRoom()

	dctx, cancel := m.directoryCtx(ctx)
	defer cancel()

	room, err := m.access.Check(dctx, roomCode, userID)
	if err != nil {
		if reason, ok := access.ReasonOf(err); ok {
			joinsDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
			m.logger.Info("Join denied",
				log.String("roomCode", roomCode),
				log.String("userId", userID),
				log.String("reason", string(reason)))
			return nil, err
		}
		intotel.RecordError(span, err)
		return nil, m.directoryError(ctx, err, "check access", roomCode)
	}

	if err := m.dir.AddParticipant(dctx, roomCode, userID); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			m.logger.Warn("Room vanished during join", log.String("roomCode", roomCode))
			return nil, errors.Wrapf(ErrNotFound, err, "room %s", roomCode)
		}
		intotel.RecordError(span, err)
		return nil, m.directoryError(ctx, err, "add participant", roomCode)
	}

	p := Participant{
		ConnectionID: connID,
		UserID:       userID,
		RoomCode:     roomCode,
		JoinedAt:     m.clock.Now().UTC(),
	}
	if !m.registry.add(p, room.OwnerID) {
		invariantFailures.Add(ctx, 1)
		m.logger.Error("Registry refused a participant after the durable add",
			log.String("roomCode", roomCode),
			log.String("connectionId", connID),
			log.String("userId", userID))
		m.rollbackAdd(ctx, room, userID, room.HasParticipant(userID))
		return nil, errors.Newf(ErrInternal, "connection %s could not be registered", connID)
	}

	participantsLive.Add(ctx, 1)
	joinsTotal.Add(ctx, 1)
	m.logger.Info("Participant joined",
		log.String("roomCode", roomCode),
		log.String("connectionId", connID),
		log.String("userId", userID))

	roster := m.registry.Participants(roomCode)
	ts := m.timestamp()
	m.toRoom(ctx, roomCode, connID, EventUserJoined, &userJoinedPayload{
		ConnectionID: connID,
		UserID:       userID,
		Participants: roster,
		Timestamp:    ts,
	})
	m.publish(ctx, RoomEventJoined, roomCode, userID, connID)

	return &JoinResult{
		RoomCode:     roomCode,
		RoomName:     room.Name,
		Participants: roster,
		Timestamp:    ts,
	}, nil
}

// rollbackAdd undoes AddParticipant for a user that held no seat before the join.
func (m *Manager) rollbackAdd(ctx context.Context, room *rooms.Room, userID string, wasMember bool) {
	if wasMember || m.registry.UserConnections(room.Code, userID) > 0 {
		return
	}
	dctx, cancel := m.directoryCtx(ctx)
	defer cancel()
	if _, err := m.dir.RemoveParticipant(dctx, room.Code, userID); err != nil {
		m.logger.Error("Failed to roll back durable participant",
			log.String("roomCode", room.Code),
			log.String("userId", userID),
			log.Error(err))
	}
}

// LeaveRoom removes connID from roomCode. When the Directory cannot be updated the
// connection stays joined and ErrDirectoryUnavailable is returned.
func (m *Manager) LeaveRoom(ctx context.Context, connID, roomCode string) error {
	ctx, span := intotel.StartSpan(ctx, m.tracer, "session.LeaveRoom",
		attribute.String("room.code", roomCode),
		attribute.String("connection.id", connID))
	defer span.End()

	unlockConn := m.connLocks.Lock(connID)
	defer unlockConn()
	unlockRoom := m.roomLocks.Lock(roomCode)
	defer unlockRoom()

	p, ok := m.registry.Get(roomCode, connID)
	if !ok {
		return errors.Newf(ErrNotFound, "connection is not in room %s", roomCode)
	}
	if err := m.releaseDurable(ctx, p); err != nil {
		intotel.RecordError(span, err)
		return err
	}
	m.dropParticipant(ctx, p, EventUserLeft)
	return nil
}

// HandleDisconnect is LeaveRoom for whatever room the connection is in.
// Unknown connections are ignored, so calling it twice is harmless.
// The registry entry always goes because the channel is gone; a Directory
// failure is logged and counted.
func (m *Manager) HandleDisconnect(ctx context.Context, connID string) {
	unlockConn := m.connLocks.Lock(connID)
	defer unlockConn()

	roomCode, ok := m.registry.RoomOf(connID)
	if !ok {
		return
	}

	unlockRoom := m.roomLocks.Lock(roomCode)
	defer unlockRoom()

	p, ok := m.registry.Get(roomCode, connID)
	if !ok {
		return
	}
	if err := m.releaseDurable(ctx, p); err != nil {
		m.logger.Error("Durable membership not released on disconnect",
			log.String("roomCode", roomCode),
			log.String("connectionId", connID),
			log.String("userId", p.UserID),
			log.Error(err))
	}
	m.dropParticipant(ctx, p, EventUserDisconnected)
}

// releaseDurable updates the Directory for p leaving. The room is deleted when p
// is its last live connection and the owner has been in; otherwise the user's
// seat is released when p is the user's last connection, except for the owner
// who keeps theirs. A room only visitors have entered waits for its owner.
// Caller holds the room lock.
func (m *Manager) releaseDurable(ctx context.Context, p Participant) error {
	dctx, cancel := m.directoryCtx(ctx)
	defer cancel()

	switch {
	case m.registry.Count(p.RoomCode) == 1 && m.registry.OwnerJoined(p.RoomCode):
		deleted, err := m.dir.Delete(dctx, p.RoomCode)
		if err != nil {
			return m.directoryError(ctx, err, "delete room", p.RoomCode)
		}
		if !deleted {
			invariantFailures.Add(ctx, 1)
			m.logger.Error("Registry held a room the Directory does not have",
				log.String("roomCode", p.RoomCode),
				log.String("connectionId", p.ConnectionID))
			return nil
		}
		roomsDeleted.Add(ctx, 1)
		m.logger.Info("Room deleted, last participant left", log.String("roomCode", p.RoomCode))
		m.publish(ctx, RoomEventDeleted, p.RoomCode, p.UserID, p.ConnectionID)

	case m.registry.UserConnections(p.RoomCode, p.UserID) == 1 &&
		p.UserID != m.registry.OwnerOf(p.RoomCode):
		if _, err := m.dir.RemoveParticipant(dctx, p.RoomCode, p.UserID); err != nil {
			return m.directoryError(ctx, err, "remove participant", p.RoomCode)
		}
	}
	return nil
}

func (m *Manager) dropParticipant(ctx context.Context, p Participant, event string) {
	if _, ok, _ := m.registry.remove(p.RoomCode, p.ConnectionID); !ok {
		return
	}
	participantsLive.Add(ctx, -1)
	leavesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	m.logger.Info("Participant removed",
		log.String("roomCode", p.RoomCode),
		log.String("connectionId", p.ConnectionID),
		log.String("event", event))

	m.toRoom(ctx, p.RoomCode, p.ConnectionID, event, &userLeftPayload{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		Timestamp:    m.timestamp(),
	})
	m.publish(ctx, RoomEventLeft, p.RoomCode, p.UserID, p.ConnectionID)
}

// UpdateMediaState sets both media flags of a joined connection and tells the room.
func (m *Manager) UpdateMediaState(ctx context.Context, connID, roomCode string, hasVideo, hasAudio bool) error {
	return m.changeMedia(ctx, connID, roomCode, func(p *Participant) {
		p.HasVideo = hasVideo
		p.HasAudio = hasAudio
	})
}

// UpdateVideo sets only the video flag, keeping the current audio state.
func (m *Manager) UpdateVideo(ctx context.Context, connID, roomCode string, hasVideo bool) error {
	return m.changeMedia(ctx, connID, roomCode, func(p *Participant) {
		p.HasVideo = hasVideo
	})
}

func (m *Manager) changeMedia(ctx context.Context, connID, roomCode string, fn func(p *Participant)) error {
	p, ok := m.registry.update(roomCode, connID, fn)
	if !ok {
		return errors.Newf(ErrNotAMember, "You must be in the room %s", roomCode)
	}
	m.toRoom(ctx, roomCode, connID, EventMediaStateChanged, &mediaStatePayload{
		ConnectionID: connID,
		VideoEnabled: p.HasVideo,
		AudioEnabled: p.HasAudio,
		Timestamp:    m.timestamp(),
	})
	return nil
}

// UpdateScreenShare flips the screen-share flag. Start and stop use distinct events.
func (m *Manager) UpdateScreenShare(ctx context.Context, connID, roomCode string, isSharing bool) error {
	_, ok := m.registry.update(roomCode, connID, func(p *Participant) {
		p.IsScreenSharing = isSharing
	})
	if !ok {
		return errors.Newf(ErrNotAMember, "You must be in the room %s", roomCode)
	}
	event := EventScreenShareStopped
	if isSharing {
		event = EventScreenShareStarted
	}
	m.toRoom(ctx, roomCode, connID, event, &screenSharePayload{
		ConnectionID: connID,
		Timestamp:    m.timestamp(),
	})
	return nil
}

// RoomInfo is a room's durable record together with its live head count.
type RoomInfo struct {
	*rooms.Room
	LiveParticipants int `json:"liveParticipants"`
}

func (m *Manager) GetRoom(ctx context.Context, roomCode string) (*RoomInfo, error) {
	if !code.ValidateFormat(roomCode) {
		return nil, access.Denied(access.ReasonInvalidFormat, roomCode)
	}
	dctx, cancel := m.directoryCtx(ctx)
	defer cancel()

	room, err := m.dir.FindByCode(dctx, roomCode)
	if err != nil {
		return nil, m.directoryError(ctx, err, "find room", roomCode)
	}
	if room == nil {
		return nil, errors.Newf(ErrNotFound, "room %s not found", roomCode)
	}
	return &RoomInfo{
		Room:             room,
		LiveParticipants: m.registry.Count(roomCode),
	}, nil
}

// SetRoomActive opens or closes a room for new joins. Only the owner may do it.
// Connections already joined are not affected.
func (m *Manager) SetRoomActive(ctx context.Context, userID, roomCode string, active bool) error {
	unlockRoom := m.roomLocks.Lock(roomCode)
	defer unlockRoom()

	info, err := m.GetRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if info.OwnerID != userID {
		return errors.Newf(ErrForbidden, "only the owner may change room %s", roomCode)
	}

	dctx, cancel := m.directoryCtx(ctx)
	defer cancel()
	if err := m.dir.SetActive(dctx, roomCode, active); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return errors.Wrapf(ErrNotFound, err, "room %s", roomCode)
		}
		return m.directoryError(ctx, err, "set active", roomCode)
	}
	m.logger.Info("Room active flag changed",
		log.String("roomCode", roomCode),
		log.Bool("active", active))
	return nil
}
