package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/metrics"
	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/ratelimit"
	"github.com/walletchat/relay/internal/room"
)

// SendMessage relays one chat message from senderID to its room partner. The
// relay assigns the message ID and timestamp, persists write-behind, and never
// echoes the message back to the sender. An offline partner simply misses the
// live push; the stored copy surfaces in history replay.
func (s *Service) SendMessage(ctx context.Context, senderID, roomID, content string) error {
	s.registry.Touch(senderID)

	r := s.rooms.Get(roomID)
	if r == nil {
		return ErrRoomEnded
	}
	if !r.IsMember(senderID) {
		return ErrNotMember
	}
	if !r.Active() {
		return ErrRoomEnded
	}
	if err := room.ValidateContent(content); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %v", ErrContentInvalid, err)
	}
	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(ctx, senderID, ratelimit.RuleMessage)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
			return ErrRateLimited
		}
	}

	r.Touch()
	msgID := uuid.New().String()
	now := time.Now()

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := s.store.AppendMessage(sctx, msgID, roomID, senderID, content, now)
	cancel()
	if err != nil {
		// Relay continues; the message is live but lost to history.
		log.Printf("[relay] persistence degraded: message %s room=%s: %v", msgID, roomID, err)
	}

	s.push(r.Partner(senderID), protocol.TypeMessage, protocol.ChatMessageMsg{
		ID:        msgID,
		RoomID:    roomID,
		Content:   content,
		Sender:    protocol.SenderOther,
		Timestamp: now.UnixMilli(),
	})

	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	s.mirror.PublishMessage(messaging.MessageEvent{
		MessageID: msgID,
		RoomID:    roomID,
		SenderID:  senderID,
		Ts:        now.UnixMilli(),
	})
	return nil
}

// LeaveRoom voluntarily ends id's room. The partner receives partner_left and
// the leaver receives a room_closed acknowledgement. Leaving a room that has
// already ended is a no-op; a leave for a room id was never in is rejected.
func (s *Service) LeaveRoom(ctx context.Context, id, roomID string) error {
	s.registry.Touch(id)

	r := s.rooms.Get(roomID)
	if r == nil {
		return nil
	}
	if !r.IsMember(id) {
		return ErrNotMember
	}

	if s.endRoom(ctx, r, room.ReasonLeft) {
		s.push(r.Partner(id), protocol.TypePartnerLeft, protocol.PartnerLeftMsg{
			RoomID: roomID,
			Reason: room.ReasonLeft,
		})
		s.push(id, protocol.TypeRoomClosed, protocol.RoomClosedMsg{RoomID: roomID})
	}
	return nil
}
