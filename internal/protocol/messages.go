// Package protocol defines the WebSocket event types and structures exchanged
// between a client and the relay. All events are serialized as JSON, one event
// per text frame, with a "type" discriminator in a consistent envelope.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Relay event types.
const (
	TypeFindMatch   = "find_match"
	TypeCancelMatch = "cancel_match"
	TypeSendMessage = "send_message"
	TypeLeaveRoom   = "leave_room"
	TypeBlockUser   = "block_user"
	TypeReportUser  = "report_user"
	TypePing        = "ping"
)

// Relay -> Client event types.
const (
	TypeOnlineCount      = "online_count"
	TypeMatchingStarted  = "matching_started"
	TypeMatchFound       = "match_found"
	TypeMessage          = "message"
	TypePartnerStatus    = "partner_status"
	TypePartnerLeft      = "partner_left"
	TypeBlockedByPartner = "blocked_by_partner"
	TypeMatchCancelled   = "match_cancelled"
	TypeChatHistory      = "chat_history"
	TypeRoomClosed       = "room_closed"
	TypeBanned           = "banned"
	TypeRateLimited      = "rate_limited"
	TypeError            = "error"
	TypePong             = "pong"
)

// Sender values inside a message event, relative to the receiving viewer.
const (
	SenderSelf  = "self"
	SenderOther = "other"
)

// ---------------------------------------------------------------------------
// Envelope, used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Relay event structs
// ---------------------------------------------------------------------------

// FindMatchMsg is sent by the client to enter the matching queue.
type FindMatchMsg struct {
	Type string `json:"type"`
}

// CancelMatchMsg is sent by the client to leave the matching queue.
type CancelMatchMsg struct {
	Type string `json:"type"`
}

// SendMessageMsg is a text message sent by the client within a room.
type SendMessageMsg struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

// LeaveRoomMsg is sent by the client to leave its active room.
type LeaveRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// BlockUserMsg is sent by the client to block its current room partner.
type BlockUserMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// ReportUserMsg is sent by the client to report its current room partner.
type ReportUserMsg struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Relay -> Client event structs
// ---------------------------------------------------------------------------

// OnlineCountMsg broadcasts the current number of connected users.
type OnlineCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// MatchingStartedMsg confirms the client has entered the matching queue.
type MatchingStartedMsg struct {
	Type string `json:"type"`
}

// MatchFoundMsg is sent when a compatible partner has been found.
type MatchFoundMsg struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	PartnerID string `json:"partner_id"`
}

// ChatMessageMsg is a text message relayed to a room member. Sender is
// viewer-relative: "other" for live relayed messages (the relay never echoes
// to the sender), "self" only in history replay.
type ChatMessageMsg struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// PartnerStatusMsg reports a presence change of the room partner.
type PartnerStatusMsg struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// PartnerLeftMsg is sent when the room ended for a reason other than a block
// by the partner. Reason is one of: left, disconnected, timeout, admin.
type PartnerLeftMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

// BlockedByPartnerMsg is sent to the blocked party when the partner blocks
// them, distinct from partner_left so the client can avoid an immediate
// re-match with the same partner.
type BlockedByPartnerMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// MatchCancelledMsg confirms removal from the matching queue.
type MatchCancelledMsg struct {
	Type string `json:"type"`
}

// ChatHistoryMsg replays stored messages when a client re-attaches to an
// active room.
type ChatHistoryMsg struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"room_id"`
	Messages []ChatMessageMsg `json:"messages"`
}

// RoomClosedMsg acknowledges a leave or block to the party that initiated it.
type RoomClosedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// BannedMsg is sent before disconnecting a banned client.
type BannedMsg struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"` // remaining seconds
	Reason   string `json:"reason"`
}

// RateLimitedMsg is sent when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg communicates an operation error to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the relay's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// relay-only event types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeFindMatch:
		var m FindMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelMatch:
		var m CancelMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeBlockUser:
		var m BlockUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportUser:
		var m ReportUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a relay event.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the relay event structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal relay event: %w", err)
	}
	return out, nil
}
