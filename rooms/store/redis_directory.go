package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
	fredis "github.com/imtaco/room-relay/internal/redis"
	"github.com/imtaco/room-relay/rooms"
)

const (
	fieldName    = "name"
	fieldOwner   = "owner"
	fieldMax     = "max"
	fieldActive  = "active"
	fieldInvite  = "invite"
	fieldCreated = "created"
	fieldUpdated = "updated"

	retryInitialInterval = 50 * time.Millisecond
	retryMaxInterval     = time.Second
)

var (
	// KEYS[1]: room meta hash
	// KEYS[2]: room participant set
	// ARGV: name, owner, max, invite, now, nonce
	// A retried call that already went through finds its own nonce and succeeds.
	luaCreateRoom = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			if redis.call('HGET', KEYS[1], 'nonce') == ARGV[6] then
				return 1
			end
			return 0
		end
		redis.call('HSET', KEYS[1],
			'name', ARGV[1], 'owner', ARGV[2], 'max', ARGV[3],
			'active', '1', 'invite', ARGV[4],
			'created', ARGV[5], 'updated', ARGV[5], 'nonce', ARGV[6])
		redis.call('DEL', KEYS[2])
		redis.call('SADD', KEYS[2], ARGV[2])
		return 1
	`)

	// ARGV: user, now
	luaAddParticipant = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return -1
		end
		redis.call('SADD', KEYS[2], ARGV[1])
		redis.call('HSET', KEYS[1], 'updated', ARGV[2])
		return redis.call('SCARD', KEYS[2])
	`)

	// ARGV: user, now
	luaRemoveParticipant = redis.NewScript(`
		redis.call('SREM', KEYS[2], ARGV[1])
		if redis.call('EXISTS', KEYS[1]) == 1 then
			redis.call('HSET', KEYS[1], 'updated', ARGV[2])
		end
		return redis.call('SCARD', KEYS[2])
	`)

	// KEYS[1]: room meta hash
	// ARGV: active flag, now
	luaSetActive = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return -1
		end
		redis.call('HSET', KEYS[1], 'active', ARGV[1], 'updated', ARGV[2])
		return 1
	`)
)

type redisDirectory struct {
	client fredis.Forever
	prefix string
	clock  clockwork.Clock
	logger *log.Logger

	newNonce func() string
}

// NewRedisDirectory stores each room as a meta hash plus a participant set.
// Every call retries transient redis failures until ctx is done.
func NewRedisDirectory(
	client redis.UniversalClient,
	prefix string,
	clock clockwork.Clock,
	logger *log.Logger,
) rooms.Directory {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &redisDirectory{
		client: fredis.NewForever(client, retryInitialInterval, retryMaxInterval, logger),
		prefix: prefix,
		clock:  clock,
		logger: logger,

		newNonce: uuid.NewString,
	}
}

// Both keys of a room share the {code} hash tag so scripts stay in one cluster slot.
func (d *redisDirectory) metaKey(code string) string {
	return fmt.Sprintf("%s:room:{%s}", d.prefix, code)
}

func (d *redisDirectory) membersKey(code string) string {
	return fmt.Sprintf("%s:room:{%s}:members", d.prefix, code)
}

func (d *redisDirectory) now() string {
	return d.clock.Now().UTC().Format(time.RFC3339Nano)
}

func (d *redisDirectory) Create(ctx context.Context, room *rooms.Room) error {
	res, err := d.client.RunScript(ctx, luaCreateRoom,
		[]string{d.metaKey(room.Code), d.membersKey(room.Code)},
		room.Name, room.OwnerID, room.MaxParticipants, boolArg(room.InviteOnly), d.now(), d.newNonce())
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if n, _ := res.(int64); n == 0 {
		return errors.Newf(rooms.ErrRoomExists, "room %s already exists", room.Code)
	}
	d.logger.Debug("Room created", log.String("roomCode", room.Code))
	return nil
}

func (d *redisDirectory) FindByCode(ctx context.Context, code string) (*rooms.Room, error) {
	meta, err := d.client.HGetAll(ctx, d.metaKey(code))
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	members, err := d.client.SMembers(ctx, d.membersKey(code))
	if err != nil {
		return nil, fmt.Errorf("failed to get room participants: %w", err)
	}
	sort.Strings(members)

	room := &rooms.Room{
		Code:         code,
		Name:         meta[fieldName],
		OwnerID:      meta[fieldOwner],
		IsActive:     meta[fieldActive] == "1",
		InviteOnly:   meta[fieldInvite] == "1",
		Participants: members,
	}
	if room.MaxParticipants, err = strconv.Atoi(meta[fieldMax]); err != nil {
		d.logger.Warn("invalid max participants, using default",
			log.String("roomCode", code),
			log.String("max", meta[fieldMax]))
		room.MaxParticipants = rooms.DefaultMaxParticipants
	}
	room.CreatedAt = d.parseTime(code, meta[fieldCreated])
	room.UpdatedAt = d.parseTime(code, meta[fieldUpdated])
	return room, nil
}

func (d *redisDirectory) parseTime(code, v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		d.logger.Warn("invalid timestamp for room", log.String("roomCode", code), log.String("ts", v))
		return time.Time{}
	}
	return ts
}

func (d *redisDirectory) IsActive(ctx context.Context, code string) (bool, error) {
	v, err := d.client.HGet(ctx, d.metaKey(code), fieldActive)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get room active flag: %w", err)
	}
	return v == "1", nil
}

func (d *redisDirectory) ParticipantCount(ctx context.Context, code string) (int, error) {
	n, err := d.client.SCard(ctx, d.membersKey(code))
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return int(n), nil
}

func (d *redisDirectory) IsMember(ctx context.Context, code, userID string) (bool, error) {
	ok, err := d.client.SIsMember(ctx, d.membersKey(code), userID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

func (d *redisDirectory) AddParticipant(ctx context.Context, code, userID string) error {
	res, err := d.client.RunScript(ctx, luaAddParticipant,
		[]string{d.metaKey(code), d.membersKey(code)}, userID, d.now())
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	if n, _ := res.(int64); n < 0 {
		return errors.Newf(rooms.ErrRoomNotFound, "room %s not found", code)
	}
	return nil
}

func (d *redisDirectory) RemoveParticipant(ctx context.Context, code, userID string) (int, error) {
	res, err := d.client.RunScript(ctx, luaRemoveParticipant,
		[]string{d.metaKey(code), d.membersKey(code)}, userID, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to remove participant: %w", err)
	}
	n, _ := res.(int64)
	return int(n), nil
}

func (d *redisDirectory) Delete(ctx context.Context, code string) (bool, error) {
	n, err := d.client.Del(ctx, d.metaKey(code), d.membersKey(code))
	if err != nil {
		return false, fmt.Errorf("failed to delete room: %w", err)
	}
	d.logger.Debug("Room deleted", log.String("roomCode", code), log.Int64("keys", n))
	return n > 0, nil
}

func (d *redisDirectory) SetActive(ctx context.Context, code string, active bool) error {
	res, err := d.client.RunScript(ctx, luaSetActive,
		[]string{d.metaKey(code)}, boolArg(active), d.now())
	if err != nil {
		return fmt.Errorf("failed to set room active flag: %w", err)
	}
	if n, _ := res.(int64); n < 0 {
		return errors.Newf(rooms.ErrRoomNotFound, "room %s not found", code)
	}
	return nil
}

func boolArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
