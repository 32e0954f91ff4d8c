package server

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"blockbattle-server/internal/items"
)

// roomTimers is the cancellable handle set a Room owns: one countdown loop
// and one item-offer loop share the stop channel. Cancellation is
// synchronous: DeleteRoom/FinishRoom close the channel while holding the
// registry lock, and every tick re-checks room presence before acting, so a
// tick can never observe a half-torn-down room.
type roomTimers struct {
	stop chan struct{}
	once sync.Once

	countdownTicks atomic.Int64
}

func newRoomTimers() *roomTimers {
	return &roomTimers{stop: make(chan struct{})}
}

func (t *roomTimers) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// StartRoomTimers starts the countdown and item-offer loops for a room.
// Calling it again while the room already owns live timers is a no-op, so a
// re-entrant start (say, a late "ready" signal after the room filled) cannot
// produce two concurrent countdowns.
func (s *Server) StartRoomTimers(roomID int) {
	timers := newRoomTimers()
	if !s.roomManager.attachTimers(roomID, timers) {
		return
	}

	go s.runCountdown(roomID, timers)
	go s.runItemOffers(roomID, timers)
}

// runCountdown decrements the match clock every interval and broadcasts the
// remaining time. At zero the room goes through the terminal teardown path.
func (s *Server) runCountdown(roomID int, timers *roomTimers) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Countdown for room %d aborted: %v", roomID, r)
			timers.cancel()
		}
	}()

	remaining := int(s.cfg.MatchDuration / time.Second)

	ticker := time.NewTicker(s.cfg.CountdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timers.stop:
			return
		case <-ticker.C:
			if _, ok := s.roomManager.Members(roomID); !ok {
				return
			}

			timers.countdownTicks.Add(1)
			remaining--
			s.roomManager.TouchRoom(roomID)
			s.broadcastToRoom(roomID, "timerTick", TimerTickNotification{
				Remaining: formatClock(remaining),
			})

			if remaining <= 0 {
				log.Printf("Room %d: match clock expired", roomID)
				s.endRoom(roomID)
				return
			}
		}
	}
}

// runItemOffers periodically offers every player who has not yet finished a
// random pick of items to choose from.
func (s *Server) runItemOffers(roomID int, timers *roomTimers) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Item offers for room %d aborted: %v", roomID, r)
			timers.cancel()
		}
	}()

	ticker := time.NewTicker(s.cfg.ItemOfferInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timers.stop:
			return
		case <-ticker.C:
			active := s.roomManager.ActiveMembers(roomID)
			if active == nil {
				return
			}

			for _, connID := range active {
				s.sendToPlayer(connID, "itemOffer", ItemOfferNotification{
					Items: items.Draw(items.OfferSize),
				})
			}
		}
	}
}

// formatClock renders remaining seconds as M:SS.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
