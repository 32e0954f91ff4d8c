package server

import (
	"encoding/json"

	"blockbattle-server/internal/items"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// CONNECTION ADMISSION (myIdentity, playerJoined, playerLeft, roomStart)
// ============================================================================
type IdentityMessage struct {
	Identity string `json:"identity"`
	RoomID   int    `json:"roomId"`
}

type PlayerJoinedNotification struct {
	Identity string `json:"identity"`
}

type PlayerLeftNotification struct {
	Identity string `json:"identity"`
}

type RoomStartNotification struct {
	Players []string `json:"players"`
}

// ============================================================================
// TIMER EVENTS (timerTick, itemOffer)
// ============================================================================
type TimerTickNotification struct {
	Remaining string `json:"remaining"`
}

type ItemOfferNotification struct {
	Items []items.Item `json:"items"`
}

// ============================================================================
// GAME END (gameEnd)
// ============================================================================
type GameEndNotification struct {
	Over bool `json:"over"`
}

// ============================================================================
// INPUT RELAY (inputFrame)
// ============================================================================
type InputFrameEvent struct {
	UserID   string `json:"userId"`
	Event    int    `json:"event"`
	Keyframe int    `json:"keyframe"`
	Sequence int    `json:"sequence"`
}

// ============================================================================
// WORLD INFO (requestWorldInfo -> worldInfoRequest)
// ============================================================================
type WorldInfoRequest struct {
	Identity string `json:"identity"`
}

type WorldInfoNotification struct {
	From string `json:"from"`
}

// ============================================================================
// GAME OVER SIGNAL (gameOver)
// ============================================================================
type GameOverSignal struct {
	Over bool `json:"over"`
}

// ============================================================================
// SCORES (updateScore)
// ============================================================================
type UpdateScoreRequest struct {
	Token string `json:"token"`
	Delta int    `json:"delta"`
}

// ============================================================================
// ITEM USAGE (useItem -> selectedItem)
// ============================================================================
type UseItemEvent struct {
	Item string `json:"item"`
}

type SelectedItemNotification struct {
	Identity string `json:"identity"`
	Item     string `json:"item"`
}

// ============================================================================
// BLOCK SPAWNING (spawnBlock -> nextBlock)
// ============================================================================
type SpawnBlockEvent struct {
	Block json.RawMessage `json:"block"`
}

type NextBlockNotification struct {
	Identity string          `json:"identity"`
	Block    json.RawMessage `json:"block"`
}
