package server

import (
	"errors"
	"sync"
	"time"
)

// DefaultCapacity is used when the creating connection does not request one.
// The classic match is head-to-head.
const DefaultCapacity = 2

// MinViablePlayers is the population below which a started match cannot
// continue and the room is torn down.
const MinViablePlayers = 2

type RoomStatus string

const (
	StatusFilling RoomStatus = "filling"
	StatusPlaying RoomStatus = "playing"
	StatusEnded   RoomStatus = "ended"
)

// Room is the unit of isolation: one match, its members, their scores and
// game-over flags, and the timer handles the room owns. All access goes
// through RoomManager under its lock.
type Room struct {
	ID         int
	Capacity   int
	Status     RoomStatus
	Players    map[string]string // identity → connectionID
	GameOver   map[string]bool   // subset of Players
	Scores     map[string]int
	LastActive time.Time

	timers *roomTimers
}

func newRoom(id, capacity int) *Room {
	return &Room{
		ID:         id,
		Capacity:   capacity,
		Status:     StatusFilling,
		Players:    make(map[string]string),
		GameOver:   make(map[string]bool),
		Scores:     make(map[string]int),
		LastActive: time.Now(),
	}
}

// RoomSnapshot is a read-only copy of a room's observable state, for tests
// and diagnostics.
type RoomSnapshot struct {
	ID         int
	Capacity   int
	Status     RoomStatus
	Players    []string
	GameOver   []string
	Scores     map[string]int
	LastActive time.Time
}

// RoomManager owns the process-wide room registry. Every mutation of room
// state happens through its methods while holding its lock; timer goroutines
// and connection goroutines never touch a Room directly.
type RoomManager struct {
	rooms map[int]*Room
	mu    sync.RWMutex
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[int]*Room),
	}
}

// JoinRoom admits identity into roomID, creating the room on first contact.
// Capacity is fixed by the creating join; later joins may pass 0 ("whatever
// the room has") but a different explicit capacity is rejected. A join by an
// identity that is already a member overwrites the stored connection handle,
// which is how reconnection works.
//
// becameFull reports that this join filled the room and the match should
// start; rejoined reports that the identity was already a member.
func (rm *RoomManager) JoinRoom(roomID, requestedCapacity int, identity, connectionID string) (becameFull, rejoined bool, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		capacity := requestedCapacity
		if capacity < 1 {
			capacity = DefaultCapacity
		}
		room = newRoom(roomID, capacity)
		rm.rooms[roomID] = room
	} else if requestedCapacity != 0 && requestedCapacity != room.Capacity {
		return false, false, errors.New("CAPACITY_MISMATCH: Room exists with a different capacity")
	}

	_, member := room.Players[identity]
	if !member {
		if room.Status != StatusFilling {
			return false, false, errors.New("GAME_ALREADY_STARTED: Cannot join a match in progress")
		}
		if len(room.Players) >= room.Capacity {
			return false, false, errors.New("ROOM_FULL: Room is at capacity")
		}
	}

	room.Players[identity] = connectionID
	if _, ok := room.Scores[identity]; !ok {
		room.Scores[identity] = 0
	}
	room.LastActive = time.Now()

	if room.Status == StatusFilling && len(room.Players) == room.Capacity {
		room.Status = StatusPlaying
		becameFull = true
	}

	return becameFull, member, nil
}

// RemovePlayer takes identity out of roomID, but only if connectionID still
// is the stored handle: a disconnect racing a reconnection must not evict the
// fresh connection.
func (rm *RoomManager) RemovePlayer(roomID int, identity, connectionID string) (remaining int, wasPlaying, removed bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return 0, false, false
	}

	current, member := room.Players[identity]
	if !member || current != connectionID {
		return len(room.Players), room.Status == StatusPlaying, false
	}

	delete(room.Players, identity)
	delete(room.GameOver, identity)
	room.LastActive = time.Now()

	return len(room.Players), room.Status == StatusPlaying, true
}

// MarkGameOver sets identity's game-over flag. allOver reports that every
// remaining member has now finished.
func (rm *RoomManager) MarkGameOver(roomID int, identity string) (allOver bool, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return false, errors.New("ROOM_NOT_FOUND: Room no longer exists")
	}

	if _, member := room.Players[identity]; !member {
		return false, errors.New("NOT_IN_ROOM: Player is not a room member")
	}

	room.GameOver[identity] = true
	room.LastActive = time.Now()

	return len(room.GameOver) == len(room.Players), nil
}

// AddScore accumulates delta into identity's score and returns the new total.
func (rm *RoomManager) AddScore(roomID int, identity string, delta int) (int, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return 0, errors.New("ROOM_NOT_FOUND: Room no longer exists")
	}

	if _, member := room.Players[identity]; !member {
		return 0, errors.New("NOT_IN_ROOM: Player is not a room member")
	}

	room.Scores[identity] += delta
	room.LastActive = time.Now()

	return room.Scores[identity], nil
}

// TouchRoom refreshes the room's activity timestamp. Unknown rooms are a
// no-op; the sender may already be torn down.
func (rm *RoomManager) TouchRoom(roomID int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, exists := rm.rooms[roomID]; exists {
		room.LastActive = time.Now()
	}
}

// Members returns a copy of the identity → connectionID mapping.
func (rm *RoomManager) Members(roomID int) (map[string]string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return nil, false
	}

	members := make(map[string]string, len(room.Players))
	for identity, connID := range room.Players {
		members[identity] = connID
	}
	return members, true
}

// ActiveMembers returns the members that have not yet signaled game over.
func (rm *RoomManager) ActiveMembers(roomID int) map[string]string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return nil
	}

	active := make(map[string]string)
	for identity, connID := range room.Players {
		if !room.GameOver[identity] {
			active[identity] = connID
		}
	}
	return active
}

// Snapshot returns a read-only copy of the room's state.
func (rm *RoomManager) Snapshot(roomID int) (RoomSnapshot, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return RoomSnapshot{}, false
	}

	snapshot := RoomSnapshot{
		ID:         room.ID,
		Capacity:   room.Capacity,
		Status:     room.Status,
		Scores:     make(map[string]int, len(room.Scores)),
		LastActive: room.LastActive,
	}
	for identity := range room.Players {
		snapshot.Players = append(snapshot.Players, identity)
	}
	for identity := range room.GameOver {
		snapshot.GameOver = append(snapshot.GameOver, identity)
	}
	for identity, score := range room.Scores {
		snapshot.Scores[identity] = score
	}
	return snapshot, true
}

// attachTimers hands ownership of a timer set to the room. It refuses when
// the room is gone or already owns live timers, which is what makes starting
// the engine idempotent.
func (rm *RoomManager) attachTimers(roomID int, timers *roomTimers) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists || room.timers != nil {
		return false
	}
	room.timers = timers
	return true
}

// DeleteRoom removes the room and cancels any timers it owns. Idempotent.
func (rm *RoomManager) DeleteRoom(roomID int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.deleteRoomLocked(roomID)
}

// FinishRoom is the terminal transition: every remaining member is marked
// game over, timers are cancelled, and the registry entry is removed, all
// under one lock acquisition. It returns the final member and score
// snapshots so the caller can notify and disconnect the players. A second
// call for the same room reports ok=false.
func (rm *RoomManager) FinishRoom(roomID int) (members map[string]string, finalScores map[string]int, ok bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return nil, nil, false
	}

	members = make(map[string]string, len(room.Players))
	for identity, connID := range room.Players {
		members[identity] = connID
		room.GameOver[identity] = true
	}
	finalScores = make(map[string]int, len(room.Scores))
	for identity, score := range room.Scores {
		finalScores[identity] = score
	}

	room.Status = StatusEnded
	rm.deleteRoomLocked(roomID)

	return members, finalScores, true
}

// IdleRooms returns the ids of rooms with no activity past the threshold.
func (rm *RoomManager) IdleRooms(threshold time.Duration) []int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	cutoff := time.Now().Add(-threshold)
	var idle []int
	for id, room := range rm.rooms {
		if room.LastActive.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// RoomIDs returns the ids of all live rooms.
func (rm *RoomManager) RoomIDs() []int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	ids := make([]int, 0, len(rm.rooms))
	for id := range rm.rooms {
		ids = append(ids, id)
	}
	return ids
}

// deleteRoomLocked cancels the room's timers and removes it. Cancellation
// happens while the lock is held, so no tick can observe a half-deleted room:
// a tick either sees the stop signal or finds the room already absent.
func (rm *RoomManager) deleteRoomLocked(roomID int) {
	room, exists := rm.rooms[roomID]
	if !exists {
		return
	}
	if room.timers != nil {
		room.timers.cancel()
	}
	delete(rm.rooms, roomID)
}
