package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kupantip/chat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	handle        TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL DEFAULT '',
	is_group   BOOLEAN NOT NULL DEFAULT 0,
	direct_key TEXT UNIQUE,
	created_by INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (created_by) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   INTEGER NOT NULL,
	user_id   INTEGER NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	sender_id  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS room_reads (
	user_id              INTEGER NOT NULL,
	room_id              INTEGER NOT NULL,
	last_read_message_id INTEGER NOT NULL DEFAULT 0,
	updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, room_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);
CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, handle, displayName, passwordHash string) (*store.User, error) {
	if displayName == "" {
		displayName = handle
	}
	query := `
		INSERT INTO users (handle, display_name, password_hash, is_guest)
		VALUES (?, ?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, handle, displayName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	guestHandle := "guest_" + sessionID[:8]
	query := `
		INSERT INTO users (handle, display_name, password_hash, is_guest, session_id)
		VALUES (?, ?, '', 1, ?)
	`
	result, err := s.db.ExecContext(ctx, query, guestHandle, "Guest "+sessionID[:8], sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, handle, display_name, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE ` + where
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Handle,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByHandle retrieves a non-guest user by handle.
func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*store.User, error) {
	return s.getUser(ctx, "handle = ? AND is_guest = 0", handle)
}

// GetUserBySessionID retrieves a guest user by session ID.
func (s *SQLiteStore) GetUserBySessionID(ctx context.Context, sessionID string) (*store.User, error) {
	return s.getUser(ctx, "session_id = ? AND is_guest = 1", sessionID)
}

// ==== RoomStore implementation ====

// CreateRoom creates a group room and adds the creator plus participants as members.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, creatorID int64, participantIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, is_group, created_by) VALUES (?, 1, ?)`,
		name, creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	members := append([]int64{creatorID}, participantIDs...)
	for _, uid := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
			roomID, uid,
		); err != nil {
			return nil, fmt.Errorf("insert member %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// CreateDirectRoom creates a direct room between two users, deduplicated via directKey.
func (s *SQLiteStore) CreateDirectRoom(ctx context.Context, directKey string, user1ID, user2ID int64) (*store.Room, error) {
	if room, err := s.GetRoomByDirectKey(ctx, directKey); err == nil {
		return room, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, is_group, direct_key) VALUES ('', 0, ?)`,
		directKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert direct room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, uid := range []int64{user1ID, user2ID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
			roomID, uid,
		); err != nil {
			return nil, fmt.Errorf("insert member %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

func (s *SQLiteStore) getRoom(ctx context.Context, where string, arg any) (*store.Room, error) {
	query := `
		SELECT id, name, is_group, direct_key, created_by, created_at
		FROM rooms
		WHERE ` + where
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.Name,
		&room.IsGroup,
		&room.DirectKey,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	return s.getRoom(ctx, "id = ?", id)
}

// GetRoomByDirectKey retrieves a direct room by its direct_key.
func (s *SQLiteStore) GetRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	return s.getRoom(ctx, "direct_key = ?", directKey)
}

// ListRoomSummaries lists rooms the user is a member of with viewer-specific fields.
func (s *SQLiteStore) ListRoomSummaries(ctx context.Context, userID int64) ([]*store.RoomSummary, error) {
	query := `
		SELECT r.id, r.name, r.is_group, r.direct_key, r.created_by, r.created_at,
		       lm.content, lm.created_at,
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.room_id = r.id
		           AND m.sender_id != ?
		           AND m.id > COALESCE((SELECT rr.last_read_message_id FROM room_reads rr
		                                 WHERE rr.user_id = ? AND rr.room_id = r.id), 0))
		FROM rooms r
		JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = ?
		LEFT JOIN messages lm ON lm.id = (SELECT MAX(id) FROM messages WHERE room_id = r.id)
		ORDER BY COALESCE(lm.created_at, r.created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query room summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*store.RoomSummary
	for rows.Next() {
		var sum store.RoomSummary
		if err := rows.Scan(
			&sum.ID,
			&sum.Name,
			&sum.IsGroup,
			&sum.DirectKey,
			&sum.CreatedBy,
			&sum.CreatedAt,
			&sum.LastMessage,
			&sum.LastMessageAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room summaries: %w", err)
	}

	for _, sum := range summaries {
		members, err := s.ListMembers(ctx, sum.ID)
		if err != nil {
			return nil, err
		}
		sum.Members = members
	}

	return summaries, nil
}

// RenameRoom updates a room's name.
func (s *SQLiteStore) RenameRoom(ctx context.Context, roomID int64, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rooms SET name = ? WHERE id = ?`, name, roomID)
	if err != nil {
		return fmt.Errorf("rename room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("room: %w", store.ErrNotFound)
	}
	return nil
}

// AddMember adds a user to a room. Idempotent.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// ListMembers lists all members of a room.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]store.Member, error) {
	query := `
		SELECT u.id, u.handle, u.display_name, rm.joined_at
		FROM room_members rm
		JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = ?
		ORDER BY rm.joined_at
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]store.Member, 0, 2)
	for rows.Next() {
		var m store.Member
		if err := rows.Scan(&m.UserID, &m.Handle, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, sender_id, content) VALUES (?, ?, ?)`,
		msg.RoomID, msg.SenderID, msg.Content,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE id = ?`, id,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("read back message: %w", err)
	}

	return nil
}

// ListMessages retrieves messages from a room, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT m.id, m.room_id, m.sender_id, u.handle, u.display_name, m.content, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
	`
	args := []any{roomID}
	if beforeID != nil {
		query += " AND m.id < ?"
		args = append(args, *beforeID)
	}
	query += " ORDER BY m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.SenderHandle,
			&m.SenderDisplayName,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Query is newest-first for the LIMIT; callers expect oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkRead records that the user has read everything in the room so far.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID, roomID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_reads (user_id, room_id, last_read_message_id, updated_at)
		VALUES (?, ?, COALESCE((SELECT MAX(id) FROM messages WHERE room_id = ?), 0), CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, room_id) DO UPDATE SET
			last_read_message_id = excluded.last_read_message_id,
			updated_at = excluded.updated_at
	`, userID, roomID, roomID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadCount returns how many messages in the room the user has not read.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID, roomID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.room_id = ?
		  AND m.sender_id != ?
		  AND m.id > COALESCE((SELECT last_read_message_id FROM room_reads
		                        WHERE user_id = ? AND room_id = ?), 0)
	`, roomID, userID, userID, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query unread count: %w", err)
	}
	return count, nil
}
