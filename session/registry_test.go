package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participant(conn, user, room string, at time.Time) Participant {
	return Participant{ConnectionID: conn, UserID: user, RoomCode: room, JoinedAt: at}
}

func TestRegistryAddAndRemove(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, r.add(participant("c1", "u1", "abc-xyz", t0), "u1"))
	require.True(t, r.add(participant("c2", "u2", "abc-xyz", t0.Add(time.Second)), "u1"))

	assert.True(t, r.IsMember("abc-xyz", "c1"))
	assert.Equal(t, 2, r.Count("abc-xyz"))
	assert.Equal(t, "u1", r.OwnerOf("abc-xyz"))
	assert.Equal(t, []string{"c2"}, r.ConnectionIDs("abc-xyz", "c1"))

	roster := r.Participants("abc-xyz")
	require.Len(t, roster, 2)
	assert.Equal(t, "c1", roster[0].ConnectionID)
	assert.Equal(t, "c2", roster[1].ConnectionID)

	removed, ok, last := r.remove("abc-xyz", "c1")
	assert.True(t, ok)
	assert.False(t, last)
	assert.Equal(t, "u1", removed.UserID)
	assert.False(t, r.IsMember("abc-xyz", "c1"))

	_, ok, last = r.remove("abc-xyz", "c2")
	assert.True(t, ok)
	assert.True(t, last)
	assert.Equal(t, 0, r.Count("abc-xyz"))
	assert.Empty(t, r.Participants("abc-xyz"))

	rooms, conns := r.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, conns)
}

func TestRegistryOneRoomPerConnection(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.add(participant("c1", "u1", "abc-xyz", time.Now()), "u1"))
	assert.False(t, r.add(participant("c1", "u1", "def-uvw", time.Now()), "u1"))
	assert.False(t, r.add(participant("c1", "u1", "abc-xyz", time.Now()), "u1"))

	code, ok := r.RoomOf("c1")
	assert.True(t, ok)
	assert.Equal(t, "abc-xyz", code)
	assert.Equal(t, 0, r.Count("def-uvw"))
}

func TestRegistryRemoveFromWrongRoom(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.add(participant("c1", "u1", "abc-xyz", time.Now()), "u1"))

	_, ok, _ := r.remove("def-uvw", "c1")
	assert.False(t, ok)
	assert.True(t, r.IsMember("abc-xyz", "c1"))
}

func TestRegistryUpdateReturnsCopy(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.add(participant("c1", "u1", "abc-xyz", time.Now()), "u1"))

	p, ok := r.update("abc-xyz", "c1", func(p *Participant) { p.HasVideo = true })
	require.True(t, ok)
	assert.True(t, p.HasVideo)

	p.HasAudio = true
	got, _ := r.Get("abc-xyz", "c1")
	assert.True(t, got.HasVideo)
	assert.False(t, got.HasAudio)

	_, ok = r.update("abc-xyz", "missing", func(p *Participant) {})
	assert.False(t, ok)
}

func TestRegistryUserConnections(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.add(participant("c1", "u1", "abc-xyz", time.Now()), "u1"))
	require.True(t, r.add(participant("c2", "u1", "abc-xyz", time.Now()), "u1"))
	require.True(t, r.add(participant("c3", "u2", "abc-xyz", time.Now()), "u1"))

	assert.Equal(t, 2, r.UserConnections("abc-xyz", "u1"))
	assert.Equal(t, 1, r.UserConnections("abc-xyz", "u2"))
	assert.Equal(t, 0, r.UserConnections("def-uvw", "u1"))
}

func TestRegistryConcurrentMembershipKeepsIndexConsistent(t *testing.T) {
	r := NewRegistry()
	roomCodes := []string{"aaa-aaa", "bbb-bbb", "ccc-ccc"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i%10)
			for j := 0; j < 50; j++ {
				code := roomCodes[(i+j)%len(roomCodes)]
				if r.add(participant(conn, "u", code, time.Now()), "u") {
					r.remove(code, conn)
				}
			}
		}(i)
	}
	wg.Wait()

	// every indexed connection appears in exactly the room it is indexed under
	seen := make(map[string]string)
	for _, code := range roomCodes {
		for _, p := range r.Participants(code) {
			prev, dup := seen[p.ConnectionID]
			require.False(t, dup, "connection %s in %s and %s", p.ConnectionID, prev, code)
			seen[p.ConnectionID] = code
			indexed, ok := r.RoomOf(p.ConnectionID)
			require.True(t, ok)
			require.Equal(t, code, indexed)
		}
	}
	_, conns := r.Stats()
	assert.Equal(t, len(seen), conns)
}

func TestRegistryOwnerJoined(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, r.add(participant("c2", "u2", "abc-xyz", t0), "u1"))
	assert.False(t, r.OwnerJoined("abc-xyz"))

	require.True(t, r.add(participant("c1", "u1", "abc-xyz", t0), "u1"))
	_, _, _ = r.remove("abc-xyz", "c1")
	assert.True(t, r.OwnerJoined("abc-xyz"), "stays set after the owner leaves")

	_, _, last := r.remove("abc-xyz", "c2")
	require.True(t, last)
	assert.False(t, r.OwnerJoined("abc-xyz"))
}
