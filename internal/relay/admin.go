package relay

import (
	"context"
	"log"
	"time"

	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/room"
	"github.com/walletchat/relay/internal/store"
)

// Snapshot is a point-in-time view of relay state for the admin surface. Each
// count is read independently under its own lock, so the fields may be
// mutually inconsistent by a few operations; no global lock is taken.
type Snapshot struct {
	OnlineCount       int `json:"online_count"`
	WaitingCount      int `json:"waiting_count"`
	ActiveRooms       int `json:"active_rooms"`
	BlockedPairs      int `json:"blocked_pairs"`
	RecentReportCount int `json:"recent_report_count"`
	StaleSessions     int `json:"stale_sessions"`
}

// Snapshot returns current relay counters. The recent-report count covers the
// auto-ban window; stale sessions are those idle past the room idle timeout.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		OnlineCount:       s.registry.Count(),
		WaitingCount:      s.queue.Len(),
		ActiveRooms:       s.rooms.ActiveCount(),
		BlockedPairs:      s.blocks.Len(),
		RecentReportCount: s.recentReportCount(),
		StaleSessions:     len(s.registry.ListStale(time.Now().Add(-s.cfg.RoomIdleTimeout))),
	}
}

// ForceDisconnect terminates the connection of an identity by operator
// action. Any active room ends with reason "admin". Returns false if the
// identity was not connected.
func (s *Service) ForceDisconnect(ctx context.Context, id string) bool {
	sess := s.registry.Lookup(id)
	if sess == nil {
		return false
	}
	log.Printf("[relay] admin disconnect id=%s", id)

	s.queue.Remove(id)
	if roomID := sess.RoomID(); roomID != "" {
		if r := s.rooms.Get(roomID); r != nil && s.endRoom(ctx, r, room.ReasonAdmin) {
			s.push(r.Partner(id), protocol.TypePartnerLeft, protocol.PartnerLeftMsg{
				RoomID: roomID,
				Reason: room.ReasonAdmin,
			})
		}
	}

	if err := sess.Sender.Close(); err != nil {
		log.Printf("[relay] admin close session %s: %v", id, err)
	}
	s.Disconnect(ctx, id)
	return true
}

// Ban applies an operator ban on an identity for the given duration and
// returns its expiry. The banned identity is notified and disconnected.
func (s *Service) Ban(ctx context.Context, id string, duration time.Duration, reason string) (time.Time, error) {
	if err := s.bans.Ban(ctx, id, duration, reason); err != nil {
		// The durable record still lands below; only the fast path is stale.
		log.Printf("[relay] ban cache set for %s: %v", id, err)
	}
	log.Printf("[relay] admin ban id=%s duration=%s reason=%s", id, duration, reason)

	until := time.Now().Add(duration)
	s.applyBan(ctx, id, duration, reason)
	return until, nil
}

// Unban lifts a ban from both the cache and the durable store.
func (s *Service) Unban(ctx context.Context, id string) error {
	if err := s.bans.Unban(ctx, id); err != nil {
		log.Printf("[relay] unban cache clear for %s: %v", id, err)
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.ClearBan(sctx, id); err != nil {
		return err
	}

	s.mirror.PublishBan(messaging.BanEvent{
		UserID: id,
		Lifted: true,
		Ts:     time.Now().UnixMilli(),
	})
	log.Printf("[relay] admin unban id=%s", id)
	return nil
}

// ChatLogs returns the stored messages of a room for moderation review.
func (s *Service) ChatLogs(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.ListMessages(sctx, roomID, limit)
}
