package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/coder/websocket"
)

// The relay is pure fan-out: resolve the current connection of each member,
// write, and swallow delivery failures (a failed target is assumed already
// disconnected).

func (s *Server) sendMessage(conn *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) sendError(conn *websocket.Conn, ctx context.Context, code, message string) {
	response := ServerMessage{
		Type: "error",
		Payload: ErrorMessage{
			Code:    code,
			Message: message,
		},
	}

	if err := s.sendMessage(conn, ctx, response); err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}

// sendToPlayer delivers one event to exactly one connection.
func (s *Server) sendToPlayer(connectionID, msgType string, payload interface{}) {
	conn := s.connectionManager.GetConnection(connectionID)
	if conn == nil {
		return
	}

	msg := ServerMessage{
		Type:    msgType,
		Payload: payload,
	}
	// Background context: broadcasts outlive the sender's request context.
	if err := s.sendMessage(conn, context.Background(), msg); err != nil {
		log.Printf("Failed to send %s to connection %s: %v", msgType, connectionID, err)
	}
}

// broadcastToRoom sends an event to every current member of the room.
func (s *Server) broadcastToRoom(roomID int, msgType string, payload interface{}) {
	s.broadcastToRoomExcept(roomID, "", msgType, payload)
}

// broadcastToRoomExcept sends an event to every member except one identity.
// Player-submitted gameplay events are relayed this way so the sender never
// echoes its own frames.
func (s *Server) broadcastToRoomExcept(roomID int, exceptIdentity, msgType string, payload interface{}) {
	members, ok := s.roomManager.Members(roomID)
	if !ok {
		return
	}

	for identity, connID := range members {
		if identity == exceptIdentity {
			continue
		}
		s.sendToPlayer(connID, msgType, payload)
	}
}
