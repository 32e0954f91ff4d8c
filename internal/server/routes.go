package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := json.Marshal(map[string]any{
		"status": "ok",
		"rooms":  len(s.roomManager.RoomIDs()),
	})
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// websocketHandler is the session lifecycle entrypoint: authenticate, join
// the requested room, then route gameplay events until the connection drops.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	log.Printf("New connection: %s", connectionID)
	s.connectionManager.AddConnection(connectionID, socket)
	defer func() {
		session, hadSession := s.connectionManager.GetSession(connectionID)

		s.connectionManager.RemoveConnection(connectionID)
		s.rateLimiter.RemoveConnection(connectionID)
		log.Printf("Connection closed: %s", connectionID)

		// Only connections that made it into a room mutate room state.
		if hadSession {
			s.handleDisconnect(session, connectionID)
		}
	}()

	// Authentication happens on this connection's goroutine; a slow verify
	// never stalls other rooms. Rejections carry an explicit reason code
	// before the close.
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = r.Header.Get("Authorization")
	}

	identity, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		log.Printf("Connection %s rejected: %v", connectionID, err)
		s.sendError(socket, ctx, "AUTH_FAILED", "Invalid or missing credential")
		socket.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("roomId"))
	if err != nil {
		s.sendError(socket, ctx, "INVALID_ROOM", "roomId must be an integer")
		socket.Close(websocket.StatusPolicyViolation, "invalid room id")
		return
	}

	// Absent or malformed capacity means "whatever the room has".
	capacity, _ := strconv.Atoi(r.URL.Query().Get("capacity"))

	becameFull, rejoined, err := s.roomManager.JoinRoom(roomID, capacity, identity, connectionID)
	if err != nil {
		code, message := splitErrorCode(err)
		s.sendError(socket, ctx, code, message)
		socket.Close(websocket.StatusPolicyViolation, code)
		return
	}

	s.connectionManager.BindSession(connectionID, SessionContext{
		Identity: identity,
		RoomID:   roomID,
	})

	if rejoined {
		log.Printf("Player %s reconnected to room %d", identity, roomID)
	} else {
		log.Printf("Player %s joined room %d", identity, roomID)
	}

	if err := s.sendMessage(socket, ctx, ServerMessage{
		Type:    "myIdentity",
		Payload: IdentityMessage{Identity: identity, RoomID: roomID},
	}); err != nil {
		log.Printf("Failed to send myIdentity to %s: %v", connectionID, err)
		return
	}

	s.broadcastToRoomExcept(roomID, identity, "playerJoined", PlayerJoinedNotification{Identity: identity})

	if becameFull {
		members, _ := s.roomManager.Members(roomID)
		names := make([]string, 0, len(members))
		for name := range members {
			names = append(names, name)
		}
		s.broadcastToRoom(roomID, "roomStart", RoomStartNotification{Players: names})
		s.StartRoomTimers(roomID)
	}

	for {
		// Read from client
		msgType, data, err := socket.Read(ctx)

		if err != nil {
			log.Printf("Connection %s read error: %v", connectionID, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			log.Printf("Rate limit exceeded for %s, dropping event", connectionID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", connectionID, err)
			s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid JSON")
			continue
		}

		// Route the message
		switch msg.Type {
		case "ping":
			s.handlePing(socket, ctx, connectionID)

		case "inputFrame":
			s.handleInputFrame(socket, ctx, connectionID, msg.Payload)

		case "requestWorldInfo":
			s.handleRequestWorldInfo(socket, ctx, connectionID, msg.Payload)

		case "gameOver":
			s.handleGameOver(socket, ctx, connectionID, msg.Payload)

		case "updateScore":
			s.handleUpdateScore(socket, ctx, connectionID, msg.Payload)

		case "useItem":
			s.handleUseItem(socket, ctx, connectionID, msg.Payload)

		case "spawnBlock":
			s.handleSpawnBlock(socket, ctx, connectionID, msg.Payload)

		default:
			log.Printf("Unknown message type '%s' from %s", msg.Type, connectionID)
			s.sendError(socket, ctx, "UNKNOWN_TYPE", fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string) {
	response := ServerMessage{
		Type:    "pong",
		Payload: struct{}{},
	}

	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send pong to %s: %v", connectionID, err)
	}
}

// handleInputFrame relays a movement/rotation frame to the rest of the room.
// Frames are gameplay hints, so malformed ones are reported and dropped
// without touching the session.
func (s *Server) handleInputFrame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var event InputFrameEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid inputFrame payload")
		return
	}

	s.roomManager.TouchRoom(session.RoomID)
	s.broadcastToRoomExcept(session.RoomID, session.Identity, "inputFrame", event)
}

// handleRequestWorldInfo asks one named peer for its board state,
// point-to-point. An unknown target is a no-op.
func (s *Server) handleRequestWorldInfo(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var req WorldInfoRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid requestWorldInfo payload")
		return
	}

	members, exists := s.roomManager.Members(session.RoomID)
	if !exists {
		return
	}

	targetConn, member := members[req.Identity]
	if !member {
		return
	}

	s.sendToPlayer(targetConn, "worldInfoRequest", WorldInfoNotification{From: session.Identity})
}

// handleGameOver marks the sender finished; when the whole room has finished
// the match ends.
func (s *Server) handleGameOver(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var signal GameOverSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid gameOver payload")
		return
	}

	if !signal.Over {
		return
	}

	allOver, err := s.roomManager.MarkGameOver(session.RoomID, session.Identity)
	if err != nil {
		// The room may already be torn down; the player is effectively gone.
		log.Printf("gameOver from %s ignored: %v", session.Identity, err)
		return
	}

	if allOver {
		s.endRoom(session.RoomID)
	}
}

// handleUpdateScore re-verifies the supplied credential against the session
// identity before accumulating the delta.
func (s *Server) handleUpdateScore(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var req UpdateScoreRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid updateScore payload")
		return
	}

	identity, err := s.verifier.Verify(ctx, req.Token)
	if err != nil || identity != session.Identity {
		s.sendError(socket, ctx, "AUTH_FAILED", "Score update credential mismatch")
		return
	}

	if _, err := s.roomManager.AddScore(session.RoomID, session.Identity, req.Delta); err != nil {
		log.Printf("updateScore from %s ignored: %v", session.Identity, err)
	}
}

// handleUseItem relays an item activation to the rest of the room.
func (s *Server) handleUseItem(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var event UseItemEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid useItem payload")
		return
	}

	s.roomManager.TouchRoom(session.RoomID)
	s.broadcastToRoomExcept(session.RoomID, session.Identity, "selectedItem", SelectedItemNotification{
		Identity: session.Identity,
		Item:     event.Item,
	})
}

// handleSpawnBlock relays the sender's next block to its peers with the
// sender identity attached.
func (s *Server) handleSpawnBlock(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	session, ok := s.connectionManager.GetSession(connectionID)
	if !ok {
		return
	}

	var event SpawnBlockEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.sendError(socket, ctx, "MALFORMED_PAYLOAD", "Invalid spawnBlock payload")
		return
	}

	s.roomManager.TouchRoom(session.RoomID)
	s.broadcastToRoomExcept(session.RoomID, session.Identity, "nextBlock", NextBlockNotification{
		Identity: session.Identity,
		Block:    event.Block,
	})
}
