// Package messaging provides the NATS client used to mirror relay lifecycle
// events for downstream consumers (admin dashboard, chat-log exporter) and to
// receive moderation commands from operator tooling. All event publishes are
// fire-and-forget: a NATS outage degrades observability, never the live chat
// path.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the relay.
const (
	SubjectRoomCreated  = "relay.room.created"
	SubjectRoomEnded    = "relay.room.ended"
	SubjectMessage      = "relay.message"
	SubjectBan          = "relay.ban"
	SubjectReport       = "relay.report"
	SubjectAdminCommand = "admin.command"
)

// RoomEvent is published on room creation and teardown.
type RoomEvent struct {
	RoomID  string `json:"room_id"`
	MemberA string `json:"member_a"`
	MemberB string `json:"member_b"`
	Reason  string `json:"reason,omitempty"` // teardown only
	Ts      int64  `json:"ts"`
}

// MessageEvent is published for every relayed chat message.
type MessageEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Ts        int64  `json:"ts"`
}

// BanEvent is published when a ban is applied or lifted.
type BanEvent struct {
	UserID string `json:"user_id"`
	Until  int64  `json:"until,omitempty"` // zero when lifted
	Reason string `json:"reason,omitempty"`
	Lifted bool   `json:"lifted,omitempty"`
	Ts     int64  `json:"ts"`
}

// ReportEvent is published when an abuse report is filed.
type ReportEvent struct {
	ReporterID string `json:"reporter_id"`
	ReportedID string `json:"reported_id"`
	RoomID     string `json:"room_id"`
	Reason     string `json:"reason"`
	Ts         int64  `json:"ts"`
}

// AdminCommand is the moderation command payload published by operator
// tooling (cmd/adminctl) and consumed by the relay.
type AdminCommand struct {
	Command  string `json:"command"` // "disconnect", "ban", "unban"
	UserID   string `json:"user_id"`
	Duration int    `json:"duration_minutes,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// publishJSON marshals v and publishes it, logging failures instead of
// propagating them (mirror events are fire-and-forget).
func (c *Client) publishJSON(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// PublishRoomCreated mirrors a room creation.
func (c *Client) PublishRoomCreated(ev RoomEvent) { c.publishJSON(SubjectRoomCreated, ev) }

// PublishRoomEnded mirrors a room teardown.
func (c *Client) PublishRoomEnded(ev RoomEvent) { c.publishJSON(SubjectRoomEnded, ev) }

// PublishMessage mirrors a relayed message (metadata only, no content).
func (c *Client) PublishMessage(ev MessageEvent) { c.publishJSON(SubjectMessage, ev) }

// PublishBan mirrors a ban being applied or lifted.
func (c *Client) PublishBan(ev BanEvent) { c.publishJSON(SubjectBan, ev) }

// PublishReport mirrors a filed abuse report.
func (c *Client) PublishReport(ev ReportEvent) { c.publishJSON(SubjectReport, ev) }

// PublishAdminCommand publishes a moderation command for the relay.
func (c *Client) PublishAdminCommand(cmd AdminCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("nats: marshal admin command: %w", err)
	}
	if err := c.conn.Publish(SubjectAdminCommand, data); err != nil {
		return fmt.Errorf("nats: publish admin command: %w", err)
	}
	return c.conn.Flush()
}

// SubscribeAdminCommands registers a handler for moderation commands.
func (c *Client) SubscribeAdminCommands(handler func(cmd AdminCommand)) error {
	return c.subscribe(SubjectAdminCommand, func(msg *nats.Msg) {
		var cmd AdminCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			log.Printf("[nats] invalid admin command: %v", err)
			return
		}
		handler(cmd)
	})
}

// subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
