package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Test: First join creates the room with the requested capacity
func TestRoomManager_CreateOnFirstJoin(t *testing.T) {
	rm := NewRoomManager()

	becameFull, rejoined, err := rm.JoinRoom(1, 2, "alice", "conn-a")
	assert.NoError(t, err)
	assert.False(t, becameFull)
	assert.False(t, rejoined)

	snapshot, ok := rm.Snapshot(1)
	assert.True(t, ok)
	assert.Equal(t, 2, snapshot.Capacity)
	assert.Equal(t, StatusFilling, snapshot.Status)
	assert.ElementsMatch(t, []string{"alice"}, snapshot.Players)
}

// Test: Unspecified capacity falls back to the default
func TestRoomManager_DefaultCapacity(t *testing.T) {
	rm := NewRoomManager()

	_, _, err := rm.JoinRoom(1, 0, "alice", "conn-a")
	assert.NoError(t, err)

	snapshot, _ := rm.Snapshot(1)
	assert.Equal(t, DefaultCapacity, snapshot.Capacity)
}

// Test: Join filling the room flips it to playing exactly once
func TestRoomManager_JoinToCapacityStartsMatch(t *testing.T) {
	rm := NewRoomManager()

	becameFull, _, err := rm.JoinRoom(1, 2, "alice", "conn-a")
	assert.NoError(t, err)
	assert.False(t, becameFull)

	becameFull, _, err = rm.JoinRoom(1, 0, "bob", "conn-b")
	assert.NoError(t, err)
	assert.True(t, becameFull, "second join should fill a 2-player room")

	snapshot, _ := rm.Snapshot(1)
	assert.Equal(t, StatusPlaying, snapshot.Status)

	// A re-join by a member of a running room must not report full again.
	becameFull, rejoined, err := rm.JoinRoom(1, 0, "alice", "conn-a2")
	assert.NoError(t, err)
	assert.False(t, becameFull)
	assert.True(t, rejoined)
}

// Test: Capacity is fixed at creation; a conflicting request is rejected
// Why: The source silently ignored later capacities - here the policy is
// explicit and surfaced as a typed error
func TestRoomManager_CapacityMismatchRejected(t *testing.T) {
	rm := NewRoomManager()

	_, _, err := rm.JoinRoom(1, 2, "alice", "conn-a")
	assert.NoError(t, err)

	_, _, err = rm.JoinRoom(1, 3, "bob", "conn-b")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CAPACITY_MISMATCH")

	// Passing zero means "whatever the room has" and is accepted.
	_, _, err = rm.JoinRoom(1, 0, "bob", "conn-b")
	assert.NoError(t, err)
}

// Test: Strangers cannot join a started room; size never exceeds capacity
func TestRoomManager_StartedRoomRejectsStrangers(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")

	_, _, err := rm.JoinRoom(1, 2, "carol", "conn-c")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GAME_ALREADY_STARTED")

	snapshot, _ := rm.Snapshot(1)
	assert.LessOrEqual(t, len(snapshot.Players), snapshot.Capacity)
	assert.NotContains(t, snapshot.Players, "carol")
}

// Test: Rejoin with the same identity overwrites the connection handle
// Why: Reconnection of a crashed client is an explicit, supported behavior
func TestRoomManager_RejoinOverwritesHandle(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-old")

	_, rejoined, err := rm.JoinRoom(1, 0, "alice", "conn-new")
	assert.NoError(t, err)
	assert.True(t, rejoined)

	members, ok := rm.Members(1)
	assert.True(t, ok)
	assert.Equal(t, "conn-new", members["alice"])
	assert.Len(t, members, 1)
}

// Test: A stale handle cannot remove a reconnected player
func TestRoomManager_StaleDisconnectIgnored(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-old")
	_, _, _ = rm.JoinRoom(1, 0, "alice", "conn-new")

	// The old connection's teardown fires after the reconnect.
	_, _, removed := rm.RemovePlayer(1, "alice", "conn-old")
	assert.False(t, removed)

	members, _ := rm.Members(1)
	assert.Equal(t, "conn-new", members["alice"])

	// The live handle does remove the player.
	remaining, _, removed := rm.RemovePlayer(1, "alice", "conn-new")
	assert.True(t, removed)
	assert.Equal(t, 0, remaining)
}

// Test: Game-over set stays a subset of the member set
func TestRoomManager_GameOverSubsetOfPlayers(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")

	allOver, err := rm.MarkGameOver(1, "alice")
	assert.NoError(t, err)
	assert.False(t, allOver)

	// Non-members cannot be marked.
	_, err = rm.MarkGameOver(1, "carol")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_IN_ROOM")

	// Removing a player also clears their game-over flag.
	_, _, removed := rm.RemovePlayer(1, "alice", "conn-a")
	assert.True(t, removed)

	snapshot, _ := rm.Snapshot(1)
	for _, identity := range snapshot.GameOver {
		assert.Contains(t, snapshot.Players, identity)
	}
}

// Test: Everyone finished flips allOver
func TestRoomManager_AllOver(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")

	allOver, err := rm.MarkGameOver(1, "alice")
	assert.NoError(t, err)
	assert.False(t, allOver)

	allOver, err = rm.MarkGameOver(1, "bob")
	assert.NoError(t, err)
	assert.True(t, allOver)
}

// Test: Scores accumulate additively and stay isolated per player
func TestRoomManager_AddScore(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")

	total, err := rm.AddScore(1, "alice", 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, total)

	total, err = rm.AddScore(1, "alice", 10)
	assert.NoError(t, err)
	assert.Equal(t, 15, total)

	snapshot, _ := rm.Snapshot(1)
	assert.Equal(t, 15, snapshot.Scores["alice"])
	assert.Equal(t, 0, snapshot.Scores["bob"])

	_, err = rm.AddScore(99, "alice", 5)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ROOM_NOT_FOUND")
}

// Test: FinishRoom marks everyone over, snapshots scores, and deletes
func TestRoomManager_FinishRoom(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")
	_, _ = rm.AddScore(1, "alice", 42)

	members, finalScores, ok := rm.FinishRoom(1)
	assert.True(t, ok)
	assert.Len(t, members, 2)
	assert.Equal(t, 42, finalScores["alice"])
	assert.Equal(t, 0, finalScores["bob"])

	_, exists := rm.Snapshot(1)
	assert.False(t, exists)

	// Finishing twice is a no-op.
	_, _, ok = rm.FinishRoom(1)
	assert.False(t, ok)
}

// Test: DeleteRoom is idempotent, unknown ids are no-ops
func TestRoomManager_DeleteIdempotent(t *testing.T) {
	rm := NewRoomManager()

	rm.DeleteRoom(99) // absent id

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	rm.DeleteRoom(1)
	rm.DeleteRoom(1)

	_, exists := rm.Snapshot(1)
	assert.False(t, exists)
}

// Test: Operations against unknown rooms are clean no-ops
// Why: The connection may already be torn down; nothing should propagate
func TestRoomManager_UnknownRoomNoOps(t *testing.T) {
	rm := NewRoomManager()

	rm.TouchRoom(404)

	_, _, removed := rm.RemovePlayer(404, "alice", "conn-a")
	assert.False(t, removed)

	_, ok := rm.Members(404)
	assert.False(t, ok)

	assert.Nil(t, rm.ActiveMembers(404))

	_, err := rm.MarkGameOver(404, "alice")
	assert.Error(t, err)
}

// Test: ActiveMembers excludes finished players
func TestRoomManager_ActiveMembers(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(1, 2, "bob", "conn-b")
	_, _ = rm.MarkGameOver(1, "alice")

	active := rm.ActiveMembers(1)
	assert.Equal(t, map[string]string{"bob": "conn-b"}, active)
}

// Test: IdleRooms only reports rooms past the threshold
func TestRoomManager_IdleRooms(t *testing.T) {
	rm := NewRoomManager()

	_, _, _ = rm.JoinRoom(1, 2, "alice", "conn-a")
	_, _, _ = rm.JoinRoom(2, 2, "bob", "conn-b")

	// Age room 1 artificially.
	rm.mu.Lock()
	rm.rooms[1].LastActive = time.Now().Add(-time.Hour)
	rm.mu.Unlock()

	idle := rm.IdleRooms(30 * time.Minute)
	assert.Equal(t, []int{1}, idle)

	rm.TouchRoom(1)
	assert.Empty(t, rm.IdleRooms(30*time.Minute))
}

// Test: Concurrent joins across many rooms (thread safety)
func TestRoomManager_ConcurrentJoins(t *testing.T) {
	rm := NewRoomManager()

	var wg sync.WaitGroup
	numRooms := 50

	for i := 0; i < numRooms; i++ {
		wg.Add(2)
		go func(roomID int) {
			defer wg.Done()
			_, _, _ = rm.JoinRoom(roomID, 2, fmt.Sprintf("a-%d", roomID), "conn-a")
		}(i)
		go func(roomID int) {
			defer wg.Done()
			_, _, _ = rm.JoinRoom(roomID, 0, fmt.Sprintf("b-%d", roomID), "conn-b")
		}(i)
	}
	wg.Wait()

	assert.Len(t, rm.RoomIDs(), numRooms)
	for i := 0; i < numRooms; i++ {
		snapshot, ok := rm.Snapshot(i)
		assert.True(t, ok)
		assert.LessOrEqual(t, len(snapshot.Players), snapshot.Capacity)
	}
}
