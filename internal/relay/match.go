package relay

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/walletchat/relay/internal/matching"
	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/metrics"
	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/ratelimit"
	"github.com/walletchat/relay/internal/room"
)

// RequestMatch enters id into the matching flow. If an eligible partner is
// already waiting, a room is formed and match_found is pushed to both parties;
// otherwise id is enqueued and receives matching_started. Eligibility excludes
// partners either side has blocked, identities no longer connected, and
// identities already in a room.
//
// Room creation is fail-closed: if the durable store rejects the pairing, the
// waiting partner is returned to the front of the queue and the caller gets
// ErrPersistenceUnavailable.
func (s *Service) RequestMatch(ctx context.Context, id string) error {
	sess := s.registry.Lookup(id)
	if sess == nil {
		return ErrIneligible
	}
	sess.Touch()

	if sess.RoomID() != "" {
		return ErrIneligible
	}
	if banned, _, _, err := s.bans.IsBanned(ctx, id); err == nil && banned {
		return ErrIneligible
	}
	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(ctx, id, ratelimit.RuleMatch)
		if !allowed {
			return ErrRateLimited
		}
	}

	outcome, partner := s.queue.Match(id, func(candidate string) bool {
		if s.blocks.IsBlocked(id, candidate) {
			return false
		}
		c := s.registry.Lookup(candidate)
		return c != nil && c.RoomID() == ""
	})
	metrics.MatchQueueSize.Set(float64(s.queue.Len()))

	switch outcome {
	case matching.AlreadyWaiting:
		return ErrAlreadyWaiting
	case matching.Waiting:
		// The room-reference check above and the enqueue are separate lock
		// scopes; a concurrent match can claim and room this identity in
		// between. Drop the stale entry rather than leave it queued while
		// roomed.
		if sess.RoomID() != "" {
			s.queue.Remove(id)
			metrics.MatchQueueSize.Set(float64(s.queue.Len()))
			return ErrIneligible
		}
		s.push(id, protocol.TypeMatchingStarted, protocol.MatchingStartedMsg{})
		log.Printf("[relay] id=%s waiting for match queue=%d", id, s.queue.Len())
		return nil
	}

	return s.createRoom(ctx, id, partner)
}

// createRoom persists and activates a room for a reserved pair, then notifies
// both parties.
func (s *Service) createRoom(ctx context.Context, initiator string, partner matching.Entry) error {
	roomID := uuid.New().String()

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := s.store.CreateRoom(sctx, roomID, initiator, partner.ID)
	cancel()
	if err != nil {
		s.queue.FailPair(initiator, partner)
		metrics.MatchQueueSize.Set(float64(s.queue.Len()))
		log.Printf("[relay] room create failed for %s/%s: %v", initiator, partner.ID, err)
		return ErrPersistenceUnavailable
	}

	r := s.rooms.Add(roomID, initiator, partner.ID)

	// Both room references must be visible before the reservation is
	// released. During the reserved window a match request from either side
	// gets AlreadyWaiting; once released, the room reference makes it
	// ineligible. Releasing first would let the partner re-enqueue while
	// roomed.
	initiatorSess := s.registry.Lookup(initiator)
	partnerSess := s.registry.Lookup(partner.ID)
	if initiatorSess != nil {
		initiatorSess.SetRoomID(roomID)
	}
	if partnerSess != nil {
		partnerSess.SetRoomID(roomID)
	}
	// The partner can unregister between the lookup and the reference being
	// set, in which case its disconnect teardown saw no room. Re-read so the
	// teardown below runs instead of leaking the room until the idle sweep.
	if s.registry.Lookup(partner.ID) != partnerSess {
		partnerSess = nil
	}

	s.queue.ReleasePair(initiator, partner.ID)

	metrics.MatchesTotal.Inc()
	metrics.MatchWaitSeconds.Observe(time.Since(partner.EnqueuedAt).Seconds())
	metrics.ActiveRooms.Set(float64(s.rooms.ActiveCount()))
	log.Printf("[relay] matched %s with %s room=%s wait=%s",
		initiator, partner.ID, roomID, time.Since(partner.EnqueuedAt).Round(time.Millisecond))

	s.mirror.PublishRoomCreated(messaging.RoomEvent{
		RoomID:  roomID,
		MemberA: initiator,
		MemberB: partner.ID,
		Ts:      time.Now().UnixMilli(),
	})

	s.push(initiator, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		RoomID:    roomID,
		PartnerID: partner.ID,
	})
	s.push(partner.ID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		RoomID:    roomID,
		PartnerID: initiator,
	})

	// The partner can disconnect between the queue claim and the room going
	// live. Its disconnect teardown saw no room reference, so finish the
	// cleanup here.
	if partnerSess == nil && s.endRoom(ctx, r, room.ReasonDisconnected) {
		s.push(initiator, protocol.TypePartnerLeft, protocol.PartnerLeftMsg{
			RoomID: roomID,
			Reason: room.ReasonDisconnected,
		})
	}
	return nil
}

// CancelMatch removes id from the matching queue. Returns true if an entry
// was removed. A false return with no error means a concurrent match already
// claimed the entry; the match stands and the client should expect
// match_found instead of match_cancelled.
func (s *Service) CancelMatch(id string) bool {
	removed := s.queue.Remove(id)
	metrics.MatchQueueSize.Set(float64(s.queue.Len()))
	if removed {
		s.push(id, protocol.TypeMatchCancelled, protocol.MatchCancelledMsg{})
		log.Printf("[relay] id=%s cancelled matching", id)
	}
	return removed
}
