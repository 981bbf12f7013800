// Package relay is the coordination core of the service. It composes the
// session registry, block graph, matching queue, room table, ban cache, rate
// limiter, durable store, and event mirror into the operations the transport
// and admin layers call. All relay state lives in memory; the store and the
// mirror are write-behind collaborators.
package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/walletchat/relay/internal/block"
	"github.com/walletchat/relay/internal/matching"
	"github.com/walletchat/relay/internal/messaging"
	"github.com/walletchat/relay/internal/metrics"
	"github.com/walletchat/relay/internal/protocol"
	"github.com/walletchat/relay/internal/ratelimit"
	"github.com/walletchat/relay/internal/room"
	"github.com/walletchat/relay/internal/session"
	"github.com/walletchat/relay/internal/store"
)

// storeTimeout bounds each durable store call made from the live path.
const storeTimeout = 3 * time.Second

// historyLimit is the number of stored messages replayed on room re-attach.
const historyLimit = 50

// BanList is the fast-path ban collaborator, implemented by ban.Cache.
type BanList interface {
	IsBanned(ctx context.Context, userID string) (bool, int, string, error)
	Ban(ctx context.Context, userID string, duration time.Duration, reason string) error
	Unban(ctx context.Context, userID string) error
	ReportAndCheck(ctx context.Context, userID string) (bool, time.Duration, error)
}

// RateLimiter throttles per-identity actions, implemented by
// ratelimit.Limiter. A nil RateLimiter disables throttling.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) int
}

// Mirror receives fire-and-forget lifecycle events, implemented by
// messaging.Client.
type Mirror interface {
	PublishRoomCreated(ev messaging.RoomEvent)
	PublishRoomEnded(ev messaging.RoomEvent)
	PublishMessage(ev messaging.MessageEvent)
	PublishBan(ev messaging.BanEvent)
	PublishReport(ev messaging.ReportEvent)
}

// nopMirror is used when no NATS connection is configured.
type nopMirror struct{}

func (nopMirror) PublishRoomCreated(messaging.RoomEvent) {}
func (nopMirror) PublishRoomEnded(messaging.RoomEvent)   {}
func (nopMirror) PublishMessage(messaging.MessageEvent)  {}
func (nopMirror) PublishBan(messaging.BanEvent)          {}
func (nopMirror) PublishReport(messaging.ReportEvent)    {}

// Config holds relay tuning knobs.
type Config struct {
	// RoomIdleTimeout is the inactivity span after which the sweeper ends a
	// room.
	RoomIdleTimeout time.Duration

	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RoomIdleTimeout: 5 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

// Service is the relay coordination core. A single Service instance owns all
// live matchmaking and room state for the process.
type Service struct {
	cfg      Config
	registry *session.Registry
	blocks   *block.Graph
	queue    *matching.Queue
	rooms    *room.Table
	store    store.Store
	bans     BanList
	limiter  RateLimiter
	mirror   Mirror

	// reportTimes is the sliding window behind the snapshot's recent-report
	// count. Pruned to the report TTL on every access.
	reportMu    sync.Mutex
	reportTimes []time.Time

	done chan struct{}
}

// NewService wires the relay core. store and bans are required; limiter and
// mirror may be nil.
func NewService(cfg Config, st store.Store, bans BanList, limiter RateLimiter, mirror Mirror) *Service {
	if mirror == nil {
		mirror = nopMirror{}
	}
	return &Service{
		cfg:      cfg,
		registry: session.NewRegistry(),
		blocks:   block.NewGraph(),
		queue:    matching.NewQueue(),
		rooms:    room.NewTable(),
		store:    st,
		bans:     bans,
		limiter:  limiter,
		mirror:   mirror,
		done:     make(chan struct{}),
	}
}

// Registry exposes the session registry for the transport layer.
func (s *Service) Registry() *session.Registry { return s.registry }

// Blocks exposes the block graph for startup priming.
func (s *Service) Blocks() *block.Graph { return s.blocks }

// OnlineCount returns the number of connected identities.
func (s *Service) OnlineCount() int { return s.registry.Count() }

// Connect registers a new identity with its transport handle. A banned
// identity is refused with ErrIneligible after a banned event is pushed on the
// raw sender. If resumeRoomID names an active room the identity belongs to,
// the session re-attaches: the partner learns of the reconnect and the client
// receives a chat_history replay.
func (s *Service) Connect(ctx context.Context, id string, sender session.Sender, resumeRoomID string) error {
	if banned, remaining, reason, err := s.bans.IsBanned(ctx, id); err != nil {
		// Cache unavailable; fall back to the authoritative store.
		log.Printf("[relay] ban cache check failed for %s: %v (checking store)", id, err)
		sb, rec, serr := s.store.IsBanned(ctx, id)
		if serr != nil {
			log.Printf("[relay] store ban check failed for %s: %v (allowing)", id, serr)
		} else if sb {
			s.refuseBanned(sender, int(time.Until(rec.Until).Seconds()), rec.Reason)
			return ErrIneligible
		}
	} else if banned {
		s.refuseBanned(sender, remaining, reason)
		return ErrIneligible
	}

	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(ctx, id, ratelimit.RuleConnect)
		if !allowed {
			return ErrRateLimited
		}
	}

	sess, err := s.registry.Register(id, sender)
	if err != nil {
		return ErrAlreadyConnected
	}
	metrics.ConnectionsTotal.Set(float64(s.registry.Count()))
	log.Printf("[relay] connected id=%s online=%d", id, s.registry.Count())

	if resumeRoomID != "" {
		s.resumeRoom(ctx, sess, resumeRoomID)
	}

	s.broadcastOnlineCount()
	return nil
}

// refuseBanned pushes a banned event on the not-yet-registered sender.
func (s *Service) refuseBanned(sender session.Sender, remaining int, reason string) {
	data, err := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{
		Duration: remaining,
		Reason:   reason,
	})
	if err == nil {
		if err := sender.Send(data); err != nil {
			log.Printf("[relay] send banned notice: %v", err)
		}
	}
}

// resumeRoom re-attaches a reconnecting session to its active room.
func (s *Service) resumeRoom(ctx context.Context, sess *session.UserSession, roomID string) {
	r := s.rooms.Get(roomID)
	if r == nil || !r.Active() || !r.IsMember(sess.ID) {
		return
	}

	sess.SetRoomID(roomID)
	r.Touch()
	log.Printf("[relay] id=%s re-attached to room=%s", sess.ID, roomID)

	s.push(r.Partner(sess.ID), protocol.TypePartnerStatus, protocol.PartnerStatusMsg{Connected: true})

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	msgs, err := s.store.ListMessages(sctx, roomID, historyLimit)
	if err != nil {
		log.Printf("[relay] history load room=%s: %v", roomID, err)
		return
	}

	history := make([]protocol.ChatMessageMsg, 0, len(msgs))
	for _, m := range msgs {
		sender := protocol.SenderOther
		if m.SenderID == sess.ID {
			sender = protocol.SenderSelf
		}
		history = append(history, protocol.ChatMessageMsg{
			Type:      protocol.TypeMessage,
			ID:        m.ID,
			RoomID:    m.RoomID,
			Content:   m.Content,
			Sender:    sender,
			Timestamp: m.CreatedAt.UnixMilli(),
		})
	}
	s.push(sess.ID, protocol.TypeChatHistory, protocol.ChatHistoryMsg{
		RoomID:   roomID,
		Messages: history,
	})
}

// Disconnect tears down all relay state for a departing identity: queue entry,
// room membership, and registry record. Safe to call more than once.
func (s *Service) Disconnect(ctx context.Context, id string) {
	s.queue.Remove(id)
	metrics.MatchQueueSize.Set(float64(s.queue.Len()))

	sess := s.registry.Unregister(id)
	if sess == nil {
		return
	}

	if roomID := sess.RoomID(); roomID != "" {
		if r := s.rooms.Get(roomID); r != nil && s.endRoom(ctx, r, room.ReasonDisconnected) {
			s.push(r.Partner(id), protocol.TypePartnerLeft, protocol.PartnerLeftMsg{
				RoomID: roomID,
				Reason: room.ReasonDisconnected,
			})
		}
	}

	metrics.ConnectionsTotal.Set(float64(s.registry.Count()))
	log.Printf("[relay] disconnected id=%s online=%d", id, s.registry.Count())
	s.broadcastOnlineCount()
}

// endRoom performs the shared teardown: end-once gate, member room-reference
// cleanup, durable sync, mirror event, and table eviction. Returns true when
// this call won the end race and the caller should notify.
func (s *Service) endRoom(ctx context.Context, r *room.Room, reason string) bool {
	if !r.End(reason) {
		return false
	}

	for _, member := range []string{r.MemberA, r.MemberB} {
		if sess := s.registry.Lookup(member); sess != nil && sess.RoomID() == r.ID {
			sess.SetRoomID("")
		}
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.EndRoom(sctx, r.ID, reason); err != nil {
		log.Printf("[relay] persistence degraded: end room=%s: %v", r.ID, err)
	}

	s.mirror.PublishRoomEnded(messaging.RoomEvent{
		RoomID:  r.ID,
		MemberA: r.MemberA,
		MemberB: r.MemberB,
		Reason:  reason,
		Ts:      time.Now().UnixMilli(),
	})

	s.rooms.Evict(r.ID)
	metrics.ActiveRooms.Set(float64(s.rooms.ActiveCount()))
	log.Printf("[relay] room=%s ended reason=%s", r.ID, reason)
	return true
}

// push encodes and sends one event to a connected identity. Offline targets
// and transport failures are logged, never propagated; there is no delivery
// queue for offline users.
func (s *Service) push(id, msgType string, payload interface{}) {
	sess := s.registry.Lookup(id)
	if sess == nil {
		return
	}
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[relay] encode %s for %s: %v", msgType, id, err)
		return
	}
	if err := sess.Sender.Send(data); err != nil {
		log.Printf("[relay] push %s to %s: %v", msgType, id, err)
	}
}

// broadcastOnlineCount fans the current connection count out to every session.
func (s *Service) broadcastOnlineCount() {
	count := s.registry.Count()
	data, err := protocol.NewServerMessage(protocol.TypeOnlineCount, protocol.OnlineCountMsg{Count: count})
	if err != nil {
		log.Printf("[relay] encode online_count: %v", err)
		return
	}
	for _, sess := range s.registry.All() {
		if err := sess.Sender.Send(data); err != nil {
			log.Printf("[relay] broadcast online_count to %s: %v", sess.ID, err)
		}
	}
}
