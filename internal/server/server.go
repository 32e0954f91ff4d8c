package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"blockbattle-server/internal/auth"
	"blockbattle-server/internal/scores"
)

type Config struct {
	Port        int
	JWTSecret   string
	DatabaseURL string

	MatchDuration     time.Duration
	CountdownInterval time.Duration
	ItemOfferInterval time.Duration
	RoomIdleTimeout   time.Duration
	ReaperInterval    time.Duration
}

// LoadConfig reads the environment (a .env file is loaded automatically) and
// fills in defaults for anything unset.
func LoadConfig() Config {
	return Config{
		Port:              envInt("PORT", 8080),
		JWTSecret:         envString("JWT_SECRET", "dev-secret"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MatchDuration:     envSeconds("MATCH_DURATION_SECONDS", 120),
		CountdownInterval: time.Second,
		ItemOfferInterval: envSeconds("ITEM_OFFER_INTERVAL_SECONDS", 30),
		RoomIdleTimeout:   envSeconds("ROOM_IDLE_TIMEOUT_SECONDS", 300),
		ReaperInterval:    envSeconds("REAPER_INTERVAL_SECONDS", 60),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

type Server struct {
	cfg               Config
	connectionManager *ConnectionManager
	roomManager       *RoomManager
	rateLimiter       *RateLimiter
	verifier          auth.Verifier
	scoreReporter     scores.Reporter
}

func NewServer() (*Server, *http.Server) {
	cfg := LoadConfig()

	if cfg.JWTSecret == "dev-secret" {
		log.Println("Warning: JWT_SECRET not set, using development secret")
	}

	// Final scores go to Postgres when a database is configured; without one
	// they are simply dropped.
	var reporter scores.Reporter = scores.NopReporter{}
	if cfg.DatabaseURL != "" {
		pg, err := scores.NewPostgresReporter(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: score reporting disabled: %v", err)
		} else {
			reporter = pg
		}
	}

	s := &Server{
		cfg:               cfg,
		connectionManager: NewConnectionManager(),
		roomManager:       NewRoomManager(),
		rateLimiter:       NewRateLimiter(120, time.Second),
		verifier:          auth.NewJWTVerifier(cfg.JWTSecret),
		scoreReporter:     reporter,
	}

	// Start background tasks
	go s.reaperTask()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer
}

// reaperTask periodically reclaims ghost rooms: rooms whose last activity is
// past the idle threshold. Reaping uses the same teardown path as every other
// trigger, so timer cancellation guarantees hold here too.
func (s *Server) reaperTask() {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for range ticker.C {
		for _, roomID := range s.roomManager.IdleRooms(s.cfg.RoomIdleTimeout) {
			log.Printf("Reaping ghost room %d", roomID)
			s.endRoom(roomID)
		}
	}
}

// Shutdown ends every live room, notifying and disconnecting its players.
func (s *Server) Shutdown(ctx context.Context) error {
	ids := s.roomManager.RoomIDs()
	log.Printf("Shutting down: ending %d rooms", len(ids))

	for _, roomID := range ids {
		s.endRoom(roomID)
	}

	return nil
}
