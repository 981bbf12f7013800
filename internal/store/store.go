// Package store is the boundary through which rooms, messages, bans, blocks,
// and abuse reports are mirrored to durable storage. The relay treats every
// operation here as fallible and retry-free: failures are logged and the live
// path proceeds, with the single exception of room creation, which is
// fail-closed.
package store

import (
	"context"
	"time"
)

// Message is one stored chat message.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Ban is one stored ban record.
type Ban struct {
	UserID string
	Until  time.Time
	Reason string
}

// Report is one stored abuse report.
type Report struct {
	ReporterID  string
	ReportedID  string
	RoomID      string
	Reason      string
	Description string
}

// Store is the durable store collaborator consumed by the relay core.
type Store interface {
	// CreateRoom persists a new room pairing. Fail-closed: if this returns an
	// error the room must not come into existence in memory either.
	CreateRoom(ctx context.Context, id, memberA, memberB string) error

	// EndRoom marks a room ended with the given reason.
	EndRoom(ctx context.Context, id, reason string) error

	// AppendMessage persists one chat message under the relay-assigned ID.
	AppendMessage(ctx context.Context, id, roomID, senderID, content string, sentAt time.Time) error

	// ListMessages returns up to limit messages of a room, oldest first.
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)

	// RecordBan upserts a ban on userID lasting until the given time.
	RecordBan(ctx context.Context, userID string, until time.Time, reason string) error

	// ClearBan removes any ban on userID.
	ClearBan(ctx context.Context, userID string) error

	// IsBanned reports whether userID has an unexpired ban.
	IsBanned(ctx context.Context, userID string) (bool, Ban, error)

	// LoadActiveBans returns all unexpired bans, for cache priming at startup.
	LoadActiveBans(ctx context.Context) ([]Ban, error)

	// RecordBlock persists a block edge (blocker, blocked). Idempotent.
	RecordBlock(ctx context.Context, blocker, blocked string) error

	// RemoveBlock deletes the block edge between a and b in either direction.
	RemoveBlock(ctx context.Context, a, b string) error

	// LoadBlocks returns all recorded block pairs, for graph priming.
	LoadBlocks(ctx context.Context) ([][2]string, error)

	// RecordReport persists an abuse report.
	RecordReport(ctx context.Context, r Report) error

	// CountRecentReports returns how many reports were filed against userID
	// within the window.
	CountRecentReports(ctx context.Context, userID string, window time.Duration) (int, error)
}
