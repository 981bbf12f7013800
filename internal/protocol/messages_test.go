package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message event
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","room_id":"abc-123","content":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.RoomID != "abc-123" {
		t.Errorf("expected room_id %q, got %q", "abc-123", sm.RoomID)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid report_user event
// ---------------------------------------------------------------------------

func TestParseClientMessage_ReportUser(t *testing.T) {
	input := []byte(`{"type":"report_user","room_id":"r1","reason":"spam","description":"link flood"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReportUser {
		t.Fatalf("expected type %q, got %q", TypeReportUser, msgType)
	}

	rm, ok := msg.(ReportUserMsg)
	if !ok {
		t.Fatalf("expected ReportUserMsg, got %T", msg)
	}
	if rm.Reason != "spam" {
		t.Errorf("expected reason %q, got %q", "spam", rm.Reason)
	}
	if rm.Description != "link flood" {
		t.Errorf("expected description %q, got %q", "link flood", rm.Description)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a match_found relay event
// ---------------------------------------------------------------------------

func TestNewServerMessage_MatchFound(t *testing.T) {
	payload := MatchFoundMsg{
		RoomID:    "uuid-456",
		PartnerID: "0xpartner",
	}

	data, err := NewServerMessage(TypeMatchFound, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatchFound {
		t.Errorf("expected type %q, got %v", TypeMatchFound, result["type"])
	}
	if result["room_id"] != "uuid-456" {
		t.Errorf("expected room_id %q, got %v", "uuid-456", result["room_id"])
	}
	if result["partner_id"] != "0xpartner" {
		t.Errorf("expected partner_id %q, got %v", "0xpartner", result["partner_id"])
	}
}

// ---------------------------------------------------------------------------
// Test: Relayed message carries viewer-relative sender
// ---------------------------------------------------------------------------

func TestNewServerMessage_ChatMessage(t *testing.T) {
	payload := ChatMessageMsg{
		ID:        "m1",
		RoomID:    "r1",
		Content:   "hi",
		Sender:    SenderOther,
		Timestamp: 1700000000000,
	}

	data, err := NewServerMessage(TypeMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ChatMessageMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeMessage {
		t.Errorf("expected type %q, got %q", TypeMessage, decoded.Type)
	}
	if decoded.Sender != SenderOther {
		t.Errorf("expected sender %q, got %q", SenderOther, decoded.Sender)
	}
	if decoded.Timestamp != 1700000000000 {
		t.Errorf("unexpected timestamp: %d", decoded.Timestamp)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown event type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown event type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Relay-only event types are rejected from clients
// ---------------------------------------------------------------------------

func TestParseClientMessage_RejectsRelayEvents(t *testing.T) {
	for _, typ := range []string{TypeMatchFound, TypeOnlineCount, TypeBanned} {
		if _, _, err := ParseClientMessage([]byte(`{"type":"` + typ + `"}`)); err == nil {
			t.Errorf("expected error for relay-only type %q", typ)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client event types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"find_match", `{"type":"find_match"}`, TypeFindMatch},
		{"cancel_match", `{"type":"cancel_match"}`, TypeCancelMatch},
		{"send_message", `{"type":"send_message","room_id":"id1","content":"hi"}`, TypeSendMessage},
		{"leave_room", `{"type":"leave_room","room_id":"id1"}`, TypeLeaveRoom},
		{"block_user", `{"type":"block_user","room_id":"id1"}`, TypeBlockUser},
		{"report_user", `{"type":"report_user","room_id":"id1","reason":"spam"}`, TypeReportUser},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
