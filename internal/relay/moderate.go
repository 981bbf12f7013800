package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/walletchat/relay/internal/ban"
	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/room"
	"github.com/walletchat/relay/internal/store"
)

// Block records a permanent block by blockerID against its current room
// partner and ends the room. The blocked party receives blocked_by_partner
// rather than partner_left, so the client can distinguish the two. The block
// edge is symmetric for matching: neither side will ever be paired with the
// other again.
func (s *Service) Block(ctx context.Context, blockerID, roomID string) error {
	s.registry.Touch(blockerID)

	r := s.rooms.Get(roomID)
	if r == nil {
		return ErrRoomEnded
	}
	if !r.IsMember(blockerID) {
		return ErrNotMember
	}
	blocked := r.Partner(blockerID)

	s.blocks.Block(blockerID, blocked)
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := s.store.RecordBlock(sctx, blockerID, blocked)
	cancel()
	if err != nil {
		// In-memory edge holds for this process lifetime; only restart
		// durability is degraded.
		log.Printf("[relay] persistence degraded: block %s->%s: %v", blockerID, blocked, err)
	}
	log.Printf("[relay] id=%s blocked id=%s room=%s", blockerID, blocked, roomID)

	if s.endRoom(ctx, r, room.ReasonBlocked) {
		s.push(blocked, protocol.TypeBlockedByPartner, protocol.BlockedByPartnerMsg{RoomID: roomID})
		s.push(blockerID, protocol.TypeRoomClosed, protocol.RoomClosedMsg{RoomID: roomID})
	}
	return nil
}

// Unblock removes the block edge between a and b. Idempotent; unblocking a
// pair that was never blocked succeeds.
func (s *Service) Unblock(ctx context.Context, a, b string) error {
	s.blocks.Unblock(a, b)
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.RemoveBlock(sctx, a, b); err != nil {
		log.Printf("[relay] persistence degraded: unblock %s/%s: %v", a, b, err)
	}
	return nil
}

// Report files an abuse report by reporterID against its current room
// partner. Reports feed the escalating auto-ban: the third report against an
// identity within 24 hours bans it. The room stays open; reporters block
// separately if they want out.
func (s *Service) Report(ctx context.Context, reporterID, roomID, reason, description string) error {
	s.registry.Touch(reporterID)

	if !store.ValidReportReason(reason) {
		return fmt.Errorf("%w: unknown report reason %q", ErrContentInvalid, reason)
	}

	r := s.rooms.Get(roomID)
	if r == nil {
		return ErrRoomEnded
	}
	if !r.IsMember(reporterID) {
		return ErrNotMember
	}
	reported := r.Partner(reporterID)

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := s.store.RecordReport(sctx, store.Report{
		ReporterID:  reporterID,
		ReportedID:  reported,
		RoomID:      roomID,
		Reason:      reason,
		Description: description,
	})
	cancel()
	if err != nil {
		log.Printf("[relay] persistence degraded: report %s->%s: %v", reporterID, reported, err)
	}

	s.mirror.PublishReport(messaging.ReportEvent{
		ReporterID: reporterID,
		ReportedID: reported,
		RoomID:     roomID,
		Reason:     reason,
		Ts:         time.Now().UnixMilli(),
	})
	s.noteReport(time.Now())
	log.Printf("[relay] id=%s reported id=%s room=%s reason=%s", reporterID, reported, roomID, reason)

	banned, duration, err := s.bans.ReportAndCheck(ctx, reported)
	if err != nil {
		// Cache outage. The durable report records still support the
		// threshold check; the escalation ladder resets to the first tier.
		log.Printf("[relay] auto-ban check for %s: %v (falling back to store)", reported, err)
		cctx, ccancel := context.WithTimeout(ctx, storeTimeout)
		count, serr := s.store.CountRecentReports(cctx, reported, ban.ReportsTTL)
		ccancel()
		if serr != nil {
			log.Printf("[relay] store report count for %s: %v", reported, serr)
			return nil
		}
		if count < ban.AutoBanThreshold {
			return nil
		}
		banned, duration = true, ban.Ban15Min
	}
	if banned {
		log.Printf("[relay] auto-ban id=%s duration=%s", reported, duration)
		s.applyBan(ctx, reported, duration, "multiple_reports")
	}
	return nil
}

// noteReport records a filed report in the sliding window behind the
// snapshot's recent-report count.
func (s *Service) noteReport(now time.Time) {
	s.reportMu.Lock()
	s.reportTimes = append(s.reportTimes, now)
	s.pruneReportsLocked(now)
	s.reportMu.Unlock()
}

// recentReportCount returns the number of reports filed within the auto-ban
// window.
func (s *Service) recentReportCount() int {
	now := time.Now()
	s.reportMu.Lock()
	s.pruneReportsLocked(now)
	n := len(s.reportTimes)
	s.reportMu.Unlock()
	return n
}

func (s *Service) pruneReportsLocked(now time.Time) {
	cutoff := now.Add(-ban.ReportsTTL)
	i := 0
	for i < len(s.reportTimes) && s.reportTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.reportTimes = append(s.reportTimes[:0], s.reportTimes[i:]...)
	}
}

// applyBan performs the shared ban side effects: durable record, queue
// removal, client notification, forced disconnect, and mirror event. The
// cache entry is assumed to be set by the caller (ReportAndCheck or Ban).
func (s *Service) applyBan(ctx context.Context, userID string, duration time.Duration, reason string) {
	until := time.Now().Add(duration)

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	if err := s.store.RecordBan(sctx, userID, until, reason); err != nil {
		log.Printf("[relay] persistence degraded: ban %s: %v", userID, err)
	}
	cancel()

	s.queue.Remove(userID)
	s.push(userID, protocol.TypeBanned, protocol.BannedMsg{
		Duration: int(duration.Seconds()),
		Reason:   reason,
	})
	s.mirror.PublishBan(messaging.BanEvent{
		UserID: userID,
		Until:  until.UnixMilli(),
		Reason: reason,
		Ts:     time.Now().UnixMilli(),
	})

	if sess := s.registry.Lookup(userID); sess != nil {
		if err := sess.Sender.Close(); err != nil {
			log.Printf("[relay] close banned session %s: %v", userID, err)
		}
		s.Disconnect(ctx, userID)
	}
}
