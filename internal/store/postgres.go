package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// validReasons is the set of allowed report reason values, matching the
// CHECK constraint on the abuse_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"scam":       true,
	"other":      true,
}

// ValidReportReason reports whether reason is an allowed report reason value.
// The relay checks this before accepting a report so an invalid reason never
// counts toward the auto-ban threshold.
func ValidReportReason(reason string) bool {
	return validReasons[reason]
}

// Postgres implements Store on a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for the given DSN and verifies it.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}

	return &Postgres{db: db}, nil
}

// DB returns the underlying handle, used by the migration runner at startup.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) CreateRoom(ctx context.Context, id, memberA, memberB string) error {
	const query = `
		INSERT INTO chat_rooms (id, member_a, member_b, status, created_at, last_message_at)
		VALUES ($1, $2, $3, 'active', NOW(), NOW())`

	if _, err := p.db.ExecContext(ctx, query, id, memberA, memberB); err != nil {
		return fmt.Errorf("store: insert room: %w", err)
	}
	return nil
}

func (p *Postgres) EndRoom(ctx context.Context, id, reason string) error {
	const query = `
		UPDATE chat_rooms
		SET status = 'ended', ended_at = NOW(), end_reason = $2
		WHERE id = $1 AND status = 'active'`

	if _, err := p.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("store: end room: %w", err)
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, id, roomID, senderID, content string, sentAt time.Time) error {
	const query = `
		INSERT INTO messages (id, room_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := p.db.ExecContext(ctx, query, id, roomID, senderID, content, sentAt); err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}

	// Best effort: keep the room's last_message_at fresh for admin views.
	const touch = `UPDATE chat_rooms SET last_message_at = $2 WHERE id = $1`
	if _, err := p.db.ExecContext(ctx, touch, roomID, sentAt); err != nil {
		return fmt.Errorf("store: touch room: %w", err)
	}
	return nil
}

func (p *Postgres) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	const query = `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return out, nil
}

func (p *Postgres) RecordBan(ctx context.Context, userID string, until time.Time, reason string) error {
	const query = `
		INSERT INTO bans (user_id, banned_until, reason, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET banned_until = EXCLUDED.banned_until, reason = EXCLUDED.reason, created_at = NOW()`

	if _, err := p.db.ExecContext(ctx, query, userID, until, reason); err != nil {
		return fmt.Errorf("store: record ban: %w", err)
	}
	return nil
}

func (p *Postgres) ClearBan(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM bans WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: clear ban: %w", err)
	}
	return nil
}

func (p *Postgres) IsBanned(ctx context.Context, userID string) (bool, Ban, error) {
	const query = `
		SELECT user_id, banned_until, reason
		FROM bans
		WHERE user_id = $1 AND banned_until > NOW()`

	var b Ban
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&b.UserID, &b.Until, &b.Reason)
	if err == sql.ErrNoRows {
		return false, Ban{}, nil
	}
	if err != nil {
		return false, Ban{}, fmt.Errorf("store: is banned: %w", err)
	}
	return true, b, nil
}

func (p *Postgres) LoadActiveBans(ctx context.Context) ([]Ban, error) {
	const query = `SELECT user_id, banned_until, reason FROM bans WHERE banned_until > NOW()`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: load bans: %w", err)
	}
	defer rows.Close()

	var out []Ban
	for rows.Next() {
		var b Ban
		if err := rows.Scan(&b.UserID, &b.Until, &b.Reason); err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load bans: %w", err)
	}
	return out, nil
}

func (p *Postgres) RecordBlock(ctx context.Context, blocker, blocked string) error {
	const query = `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING`

	if _, err := p.db.ExecContext(ctx, query, blocker, blocked); err != nil {
		return fmt.Errorf("store: record block: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveBlock(ctx context.Context, a, b string) error {
	const query = `
		DELETE FROM blocks
		WHERE (blocker_id = $1 AND blocked_id = $2)
		   OR (blocker_id = $2 AND blocked_id = $1)`

	if _, err := p.db.ExecContext(ctx, query, a, b); err != nil {
		return fmt.Errorf("store: remove block: %w", err)
	}
	return nil
}

func (p *Postgres) LoadBlocks(ctx context.Context) ([][2]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT blocker_id, blocked_id FROM blocks`)
	if err != nil {
		return nil, fmt.Errorf("store: load blocks: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var pair [2]string
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		out = append(out, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load blocks: %w", err)
	}
	return out, nil
}

func (p *Postgres) RecordReport(ctx context.Context, r Report) error {
	if !validReasons[r.Reason] {
		return fmt.Errorf("store: invalid report reason %q", r.Reason)
	}

	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, room_id, reason, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW())`

	if _, err := p.db.ExecContext(ctx, query, r.ReporterID, r.ReportedID, r.RoomID, r.Reason, r.Description); err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}
	return nil
}

func (p *Postgres) CountRecentReports(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := p.db.QueryRowContext(ctx, query, userID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count recent reports: %w", err)
	}
	return count, nil
}
