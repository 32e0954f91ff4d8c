package server

import (
	"context"
	"log"
	"time"

	"github.com/coder/websocket"
)

// endRoom is the single terminal teardown path. Countdown expiry, everyone
// signaling game over, population dropping below viable, the ghost reaper and
// shutdown all converge here: broadcast the terminal event, report final
// scores, force-disconnect every remaining handle and delete the room.
// FinishRoom is atomic, so concurrent triggers end the room exactly once.
func (s *Server) endRoom(roomID int) {
	members, finalScores, ok := s.roomManager.FinishRoom(roomID)
	if !ok {
		return
	}

	log.Printf("Room %d ended with %d players", roomID, len(members))

	for _, connID := range members {
		s.sendToPlayer(connID, "gameEnd", GameEndNotification{Over: true})
	}

	s.reportScores(roomID, finalScores)

	for _, connID := range members {
		s.connectionManager.CloseConnection(connID, websocket.StatusNormalClosure, "game over")
	}
}

// reportScores hands the final score sheet to the reporter without blocking
// teardown. Failures are logged and dropped.
func (s *Server) reportScores(roomID int, finalScores map[string]int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.scoreReporter.Report(ctx, roomID, finalScores); err != nil {
			log.Printf("Failed to report scores for room %d: %v", roomID, err)
		}
	}()
}

// handleDisconnect runs when a connection's read loop exits. The session
// context was bound to the handle at admission, so a room that is already
// gone resolves to a clean no-op.
func (s *Server) handleDisconnect(session SessionContext, connectionID string) {
	remaining, wasPlaying, removed := s.roomManager.RemovePlayer(session.RoomID, session.Identity, connectionID)
	if !removed {
		return
	}

	log.Printf("Player %s left room %d (%d remaining)", session.Identity, session.RoomID, remaining)

	s.broadcastToRoom(session.RoomID, "playerLeft", PlayerLeftNotification{Identity: session.Identity})

	switch {
	case remaining == 0:
		s.roomManager.DeleteRoom(session.RoomID)
	case wasPlaying && remaining < MinViablePlayers:
		// A started match below viable population cannot continue.
		s.endRoom(session.RoomID)
	}
}
