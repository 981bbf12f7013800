package relay

import (
	"context"
	"log"
	"time"

	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/room"
)

// StartSweeper launches the idle-room sweeper. Rooms without message activity
// for cfg.RoomIdleTimeout are ended with reason "timeout" and both members are
// notified. Stop terminates the loop.
func (s *Service) StartSweeper() {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweepIdleRooms(context.Background())
			case <-s.done:
				return
			}
		}
	}()
	log.Printf("[relay] idle sweeper started interval=%s timeout=%s",
		s.cfg.SweepInterval, s.cfg.RoomIdleTimeout)
}

// Stop shuts down background loops.
func (s *Service) Stop() {
	close(s.done)
}

// sweepIdleRooms ends every room idle past the configured timeout. End is the
// liveness re-check: a message that lands between the snapshot and the End
// call refreshes activity, but the room still ends this cycle; the next
// message on it is rejected with a room-ended error.
func (s *Service) sweepIdleRooms(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.RoomIdleTimeout)
	for _, r := range s.rooms.IdleSince(cutoff) {
		if !s.endRoom(ctx, r, room.ReasonTimeout) {
			continue
		}
		for _, member := range []string{r.MemberA, r.MemberB} {
			s.push(member, protocol.TypePartnerLeft, protocol.PartnerLeftMsg{
				RoomID: r.ID,
				Reason: room.ReasonTimeout,
			})
		}
		log.Printf("[relay] swept idle room=%s", r.ID)
	}
}
