package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAlreadyRedeemed = errors.New("transaction already redeemed")
)

// Storage handles all database operations
type Storage struct {
	db     *sqlx.DB
	txOpts *sql.TxOptions
}

// New opens the database with the given driver ("sqlite3" or "pgx") and
// creates the schema
func New(driver, dsn string) (*Storage, error) {
	if driver == "sqlite3" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Storage{db: db}

	switch driver {
	case "sqlite3":
		// one connection keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
	case "pgx":
		s.txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			social_handle TEXT NOT NULL,
			chat_handle TEXT NOT NULL,
			age INTEGER NOT NULL,
			city TEXT NOT NULL,
			gender TEXT NOT NULL,
			purpose TEXT NOT NULL,
			access_level INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS levels (
			level INTEGER PRIMARY KEY,
			price TEXT NOT NULL,
			text_limit INTEGER NOT NULL DEFAULT 0,
			gif_limit INTEGER NOT NULL DEFAULT 0,
			photo_limit INTEGER NOT NULL DEFAULT 0,
			video_limit INTEGER NOT NULL DEFAULT 0,
			video_note_limit INTEGER NOT NULL DEFAULT 0,
			voice_limit INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			user_id BIGINT NOT NULL,
			message_type TEXT NOT NULL,
			timestamp BIGINT NOT NULL -- unix milliseconds
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_type_ts ON messages(user_id, message_type, timestamp)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			txn_hash TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			level INTEGER NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// --- Users ---

// CreateUser inserts a newly registered user at the default access level
func (s *Storage) CreateUser(ctx context.Context, u User) (*User, error) {
	if u.AccessLevel == 0 {
		u.AccessLevel = DefaultAccessLevel
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (id, social_handle, chat_handle, age, city, gender, purpose, access_level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		u.ID, u.SocialHandle, u.ChatHandle, u.Age, u.City, u.Gender, u.Purpose, u.AccessLevel, u.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrAlreadyExists
	}

	u.CreatedAt = time.Unix(u.CreatedAt.Unix(), 0)
	return &u, nil
}

// GetUser returns a user by ID
func (s *Storage) GetUser(ctx context.Context, userID int64) (*User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, social_handle, chat_handle, age, city, gender, purpose, access_level, created_at
		 FROM users WHERE id = ?`),
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u := row.user()
	return &u, nil
}

// UserLevel returns the access level of a registered user
func (s *Storage) UserLevel(ctx context.Context, userID int64) (int, error) {
	var level int
	err := s.db.GetContext(ctx, &level, s.db.Rebind("SELECT access_level FROM users WHERE id = ?"), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get user level: %w", err)
	}
	return level, nil
}

// ListUsers returns every registered user ordered by registration time
func (s *Storage) ListUsers(ctx context.Context) ([]User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, social_handle, chat_handle, age, city, gender, purpose, access_level, created_at
		 FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

// SetUserLevel assigns an access level directly, without a payment record
func (s *Storage) SetUserLevel(ctx context.Context, userID int64, level int) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE users SET access_level = ? WHERE id = ?"),
		level, userID,
	)
	if err != nil {
		return fmt.Errorf("update user level: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Levels ---

const levelColumns = `level, price, text_limit, gif_limit, photo_limit, video_limit, video_note_limit, voice_limit`

// UpsertLevel creates or replaces a level definition
func (s *Storage) UpsertLevel(ctx context.Context, l Level) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO levels (`+levelColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (level) DO UPDATE SET
			price = excluded.price,
			text_limit = excluded.text_limit,
			gif_limit = excluded.gif_limit,
			photo_limit = excluded.photo_limit,
			video_limit = excluded.video_limit,
			video_note_limit = excluded.video_note_limit,
			voice_limit = excluded.voice_limit`),
		l.Level, l.Price.String(), l.TextLimit, l.GifLimit, l.PhotoLimit, l.VideoLimit, l.VideoNoteLimit, l.VoiceLimit,
	)
	if err != nil {
		return fmt.Errorf("upsert level: %w", err)
	}
	return nil
}

// GetLevel returns a level by its number
func (s *Storage) GetLevel(ctx context.Context, level int) (*Level, error) {
	var l Level
	err := s.db.GetContext(ctx, &l, s.db.Rebind(
		`SELECT `+levelColumns+` FROM levels WHERE level = ?`),
		level,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get level: %w", err)
	}
	return &l, nil
}

// ListLevels returns all levels in ascending order
func (s *Storage) ListLevels(ctx context.Context) ([]Level, error) {
	var levels []Level
	if err := s.db.SelectContext(ctx, &levels, `SELECT `+levelColumns+` FROM levels ORDER BY level`); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// LevelsAbove returns the levels strictly greater than current
func (s *Storage) LevelsAbove(ctx context.Context, current int) ([]Level, error) {
	var levels []Level
	err := s.db.SelectContext(ctx, &levels, s.db.Rebind(
		`SELECT `+levelColumns+` FROM levels WHERE level > ? ORDER BY level`),
		current,
	)
	if err != nil {
		return nil, fmt.Errorf("list levels above %d: %w", current, err)
	}
	return levels, nil
}

// --- Messages ---

// RecordMessage appends a message event unconditionally
func (s *Storage) RecordMessage(ctx context.Context, userID int64, category string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO messages (user_id, message_type, timestamp) VALUES (?, ?, ?)"),
		userID, category, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CountMessagesSince counts a user's events of one category newer than since
func (s *Storage) CountMessagesSince(ctx context.Context, userID int64, category string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(
		"SELECT COUNT(*) FROM messages WHERE user_id = ? AND message_type = ? AND timestamp > ?"),
		userID, category, since.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// RecordMessageWithin records a message event only while fewer than limit
// events exist after since. The count and the insert share one transaction.
// A negative limit records unconditionally. Reports whether it recorded.
func (s *Storage) RecordMessageWithin(ctx context.Context, userID int64, category string, limit int, since, now time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if limit >= 0 {
		var count int
		err := tx.GetContext(ctx, &count, tx.Rebind(
			"SELECT COUNT(*) FROM messages WHERE user_id = ? AND message_type = ? AND timestamp > ?"),
			userID, category, since.UnixMilli(),
		)
		if err != nil {
			return false, fmt.Errorf("count messages: %w", err)
		}
		if count >= limit {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO messages (user_id, message_type, timestamp) VALUES (?, ?, ?)"),
		userID, category, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// PruneMessagesBefore deletes message events older than before
func (s *Storage) PruneMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM messages WHERE timestamp < ?"), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// --- Transactions ---

// RedeemTransaction records a verified payment and raises the user's level
// in one transaction. Returns ErrAlreadyRedeemed if the hash was used before.
func (s *Storage) RedeemTransaction(ctx context.Context, userID int64, level int, txnHash string) error {
	tx, err := s.db.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO transactions (txn_hash, user_id, level, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (txn_hash) DO NOTHING`),
		txnHash, userID, level, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAlreadyRedeemed
	}

	result, err = tx.ExecContext(ctx, tx.Rebind("UPDATE users SET access_level = ? WHERE id = ?"), level, userID)
	if err != nil {
		return fmt.Errorf("update user level: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TransactionByHash returns a redeemed transaction
func (s *Storage) TransactionByHash(ctx context.Context, txnHash string) (*Transaction, error) {
	var row struct {
		Hash      string `db:"txn_hash"`
		UserID    int64  `db:"user_id"`
		Level     int    `db:"level"`
		CreatedAt int64  `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		"SELECT txn_hash, user_id, level, created_at FROM transactions WHERE txn_hash = ?"),
		txnHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return &Transaction{
		Hash:      row.Hash,
		UserID:    row.UserID,
		Level:     row.Level,
		CreatedAt: time.Unix(row.CreatedAt, 0),
	}, nil
}
