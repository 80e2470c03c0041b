package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/chat"
)

const (
	// StatusActive is the only session status in use; kept explicit so
	// archived states can be added without a schema change.
	StatusActive = "active"

	DefaultTTL       = 6 * time.Hour
	DefaultMarkerTTL = 1 * time.Hour
	DefaultMaxTurns  = 12
)

// Session is the persisted conversation state for one identity.
type Session struct {
	Status    string         `json:"status"`
	Messages  []chat.Message `json:"messages"`
	UpdatedAt int64          `json:"updatedAt"` // epoch milliseconds
}

// Options configures a Store.
type Options struct {
	// Path is the SQLite database file. Defaults to
	// $HOME/.paws/sessions.db.
	Path string

	// TTL is the session expiry, refreshed on every append.
	TTL time.Duration

	// MarkerTTL is the delivery-marker expiry.
	MarkerTTL time.Duration

	// MaxTurns is the number of most recent turns retained on append.
	MaxTurns int
}

// Store persists sessions and delivery markers in SQLite.
type Store struct {
	opts Options

	mu sync.Mutex
	db *sql.DB
}

// NewStore creates a Store; Connect must be called before use.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		opts.Path = filepath.Join(homeDir, ".paws", "sessions.db")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MarkerTTL <= 0 {
		opts.MarkerTTL = DefaultMarkerTTL
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}

	return &Store{opts: opts}, nil
}

// NormalizeKey derives the canonical store key for an identity. Phone
// numbers in any formatting ("+54 9 11 ...", "54-9-11...") normalize to
// the same key.
func NormalizeKey(identity string) (string, error) {
	var digits strings.Builder
	for _, r := range identity {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("identity %q has no digits", identity)
	}
	return "+" + digits.String(), nil
}

// Connect opens the database and ensures the schema exists. Calling it
// on a connected store is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.opts.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping session database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	identity   TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	messages   TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS delivery_markers (
	message_id TEXT PRIMARY KEY,
	seen       INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_markers_expires ON delivery_markers(expires_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	log.Info().Str("path", s.opts.Path).Msg("Session store connected")

	return nil
}

// Close closes the database. Calling it on a closed store is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to close session database: %w", err)
	}

	log.Info().Msg("Session store closed")
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("session store is not connected")
	}
	return s.db, nil
}

// Load returns the session for an identity, or nil when none exists.
// Store failures degrade to "no session" so callers proceed as fresh.
func (s *Store) Load(ctx context.Context, identity string) (*Session, error) {
	key, err := NormalizeKey(identity)
	if err != nil {
		return nil, err
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var (
		status    string
		rawMsgs   string
		updatedAt int64
	)
	now := time.Now().UnixMilli()
	row := db.QueryRowContext(ctx,
		`SELECT status, messages, updated_at FROM sessions WHERE identity = ? AND expires_at > ?`,
		key, now)

	switch err := row.Scan(&status, &rawMsgs, &updatedAt); {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		log.Warn().Str("session_key", key).Err(err).Msg("Session load failed, treating as absent")
		return nil, nil
	}

	var messages []chat.Message
	if err := json.Unmarshal([]byte(rawMsgs), &messages); err != nil {
		log.Warn().Str("session_key", key).Err(err).Msg("Corrupt session payload, treating as absent")
		return nil, nil
	}

	return &Session{Status: status, Messages: messages, UpdatedAt: updatedAt}, nil
}

// Append loads or creates the session, appends the message, trims the
// log to the retained turn window, and persists with a refreshed TTL.
// Unlike Load, failures propagate: a conversation must not silently
// lose a turn.
func (s *Store) Append(ctx context.Context, identity string, msg chat.Message) (*Session, error) {
	key, err := NormalizeKey(identity)
	if err != nil {
		return nil, err
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	var rawMsgs string
	var messages []chat.Message
	row := tx.QueryRowContext(ctx,
		`SELECT messages FROM sessions WHERE identity = ? AND expires_at > ?`, key, now)
	switch err := row.Scan(&rawMsgs); {
	case err == sql.ErrNoRows:
		// Fresh session.
	case err != nil:
		return nil, fmt.Errorf("failed to read session %s: %w", key, err)
	default:
		if err := json.Unmarshal([]byte(rawMsgs), &messages); err != nil {
			log.Warn().Str("session_key", key).Err(err).Msg("Corrupt session payload, starting fresh")
			messages = nil
		}
	}

	messages = append(messages, msg)
	messages = TrimTurns(messages, s.opts.MaxTurns)

	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session messages: %w", err)
	}

	expires := now + s.opts.TTL.Milliseconds()
	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (identity, status, messages, updated_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
	status = excluded.status,
	messages = excluded.messages,
	updated_at = excluded.updated_at,
	expires_at = excluded.expires_at`,
		key, StatusActive, string(data), now, expires)
	if err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append for %s: %w", key, err)
	}

	log.Debug().
		Str("session_key", key).
		Str("role", string(msg.Role)).
		Int("messages", len(messages)).
		Msg("Message appended")

	return &Session{Status: StatusActive, Messages: messages, UpdatedAt: now}, nil
}

// End hard-deletes the session for an identity. Deleting an absent
// session is not an error.
func (s *Store) End(ctx context.Context, identity string) error {
	key, err := NormalizeKey(identity)
	if err != nil {
		return err
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE identity = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}

	log.Info().Str("session_key", key).Msg("Session ended")
	return nil
}

// Touch renews the session TTL without mutating the log. Touching an
// absent session is a no-op.
func (s *Store) Touch(ctx context.Context, identity string) error {
	key, err := NormalizeKey(identity)
	if err != nil {
		return err
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE identity = ? AND expires_at > ?`,
		now+s.opts.TTL.Milliseconds(), key, now)
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", key, err)
	}
	return nil
}

// IsSeen reports whether an inbound message id was already processed
// within the marker TTL window.
func (s *Store) IsSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	var seen int
	row := db.QueryRowContext(ctx,
		`SELECT seen FROM delivery_markers WHERE message_id = ? AND expires_at > ?`,
		messageID, time.Now().UnixMilli())
	switch err := row.Scan(&seen); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read delivery marker %s: %w", messageID, err)
	}

	return seen != 0, nil
}

// MarkSeen records an inbound message id as processed.
func (s *Store) MarkSeen(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	expires := time.Now().UnixMilli() + s.opts.MarkerTTL.Milliseconds()
	_, err = db.ExecContext(ctx, `
INSERT INTO delivery_markers (message_id, seen, expires_at)
VALUES (?, 1, ?)
ON CONFLICT(message_id) DO UPDATE SET expires_at = excluded.expires_at`,
		messageID, expires)
	if err != nil {
		return fmt.Errorf("failed to mark delivery %s: %w", messageID, err)
	}
	return nil
}

// PurgeExpired removes expired sessions and delivery markers, returning
// how many of each were deleted.
func (s *Store) PurgeExpired(ctx context.Context) (int64, int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UnixMilli()

	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	sessions, _ := res.RowsAffected()

	res, err = db.ExecContext(ctx, `DELETE FROM delivery_markers WHERE expires_at <= ?`, now)
	if err != nil {
		return sessions, 0, fmt.Errorf("failed to purge expired markers: %w", err)
	}
	markers, _ := res.RowsAffected()

	return sessions, markers, nil
}

// CountActive returns the number of unexpired sessions.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var count int
	row := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE expires_at > ?`, time.Now().UnixMilli())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// TrimTurns retains the last maxTurns turns of a message log. A turn
// begins at a user message that is not a tool-result bundle and runs
// until the next such message. Older turns are discarded wholesale;
// a turn is never split.
func TrimTurns(messages []chat.Message, maxTurns int) []chat.Message {
	if maxTurns <= 0 {
		return messages
	}

	var starts []int
	for i, msg := range messages {
		if msg.Role == chat.RoleUser && !msg.IsToolResultBundle() {
			starts = append(starts, i)
		}
	}

	if len(starts) <= maxTurns {
		return messages
	}

	cut := starts[len(starts)-maxTurns]
	return messages[cut:]
}
