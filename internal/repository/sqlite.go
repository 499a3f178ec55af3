package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/xiaot623/chatd/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			llm_provider TEXT NOT NULL,
			model_name TEXT NOT NULL,
			temperature REAL NOT NULL DEFAULT 0.7,
			max_tokens INTEGER NOT NULL DEFAULT 1000,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (chat_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS provider_configs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			api_key_encrypted TEXT,
			model_name TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			config_data TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			UNIQUE (user_id, provider)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (chat_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_chat ON events(chat_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first release (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("conversations", "system_prompt", "ALTER TABLE conversations ADD COLUMN system_prompt TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, llm_provider, model_name, temperature, max_tokens, system_prompt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.Provider, conv.Model, conv.Temperature, conv.MaxTokens,
		nullString(conv.SystemPrompt), conv.CreatedAt.UTC())
	return translateErr(err)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var systemPrompt sql.NullString
	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, llm_provider, model_name, temperature, max_tokens, system_prompt, created_at, updated_at
		 FROM conversations WHERE id = ?`,
		conversationID).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Provider, &conv.Model,
		&conv.Temperature, &conv.MaxTokens, &systemPrompt, &conv.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if systemPrompt.Valid {
		conv.SystemPrompt = systemPrompt.String
	}
	if updatedAt.Valid {
		conv.UpdatedAt = &updatedAt.Time
	}
	return &conv, nil
}

// ListConversations lists a user's conversations, most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, skip, limit int) ([]domain.ConversationSummary, error) {
	query := `SELECT c.id, c.title, c.llm_provider, c.model_name, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM conversations c WHERE c.user_id = ?
		ORDER BY COALESCE(c.updated_at, c.created_at) DESC, c.rowid DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, skip)
	} else if skip > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []domain.ConversationSummary{}
	for rows.Next() {
		var sum domain.ConversationSummary
		var updatedAt sql.NullTime
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Provider, &sum.Model, &sum.CreatedAt, &updatedAt, &sum.MessageCount); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			sum.UpdatedAt = &updatedAt.Time
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// UpdateConversation writes the mutable fields of a conversation and bumps updated_at.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, temperature = ?, max_tokens = ?, system_prompt = ?, updated_at = ? WHERE id = ?`,
		conv.Title, conv.Temperature, conv.MaxTokens, nullString(conv.SystemPrompt), now, conv.ID)
	if err != nil {
		return err
	}
	conv.UpdatedAt = &now
	return nil
}

// DeleteConversation deletes a conversation with its messages and events.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	return err
}

// CreateMessage appends a message and marks the conversation as updated.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := message.CreatedAt.UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.ConversationID, message.Role, message.Content, nullStringBytes(message.Metadata), createdAt); err != nil {
		return translateErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, createdAt, message.ConversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMessages retrieves the transcript of a conversation in creation order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, metadata, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

const providerConfigColumns = `id, user_id, provider, api_key_encrypted, model_name, is_default, config_data, created_at, updated_at`

// CreateProviderConfig creates a provider configuration.
// A second configuration for the same user and provider fails with domain.ErrConflict.
func (s *SQLiteStore) CreateProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_configs (id, user_id, provider, api_key_encrypted, model_name, is_default, config_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.UserID, cfg.Provider, nullString(cfg.EncryptedKey), cfg.Model, cfg.IsDefault,
		nullStringBytes(cfg.Settings), cfg.CreatedAt.UTC())
	return translateErr(err)
}

// GetProviderConfig retrieves a provider configuration by ID.
func (s *SQLiteStore) GetProviderConfig(ctx context.Context, configID string) (*domain.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerConfigColumns+` FROM provider_configs WHERE id = ?`, configID)
	return scanProviderConfig(row)
}

// GetProviderConfigForProvider retrieves a user's configuration for one provider.
func (s *SQLiteStore) GetProviderConfigForProvider(ctx context.Context, userID, provider string) (*domain.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerConfigColumns+` FROM provider_configs WHERE user_id = ? AND provider = ?`, userID, provider)
	return scanProviderConfig(row)
}

// ListProviderConfigs lists a user's provider configurations.
func (s *SQLiteStore) ListProviderConfigs(ctx context.Context, userID string) ([]domain.ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerConfigColumns+` FROM provider_configs WHERE user_id = ? ORDER BY created_at ASC, rowid ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []domain.ProviderConfig{}
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// UpdateProviderConfig writes the mutable fields of a provider configuration.
func (s *SQLiteStore) UpdateProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_configs SET api_key_encrypted = ?, model_name = ?, is_default = ?, config_data = ?, updated_at = ? WHERE id = ?`,
		nullString(cfg.EncryptedKey), cfg.Model, cfg.IsDefault, nullStringBytes(cfg.Settings), now, cfg.ID)
	if err != nil {
		return err
	}
	cfg.UpdatedAt = &now
	return nil
}

// DeleteProviderConfig deletes a provider configuration.
func (s *SQLiteStore) DeleteProviderConfig(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM provider_configs WHERE id = ?`, configID)
	return err
}

// ClearDefaultProviderConfigs unsets the default flag on every configuration of
// the user except exceptID.
func (s *SQLiteStore) ClearDefaultProviderConfigs(ctx context.Context, userID, exceptID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE provider_configs SET is_default = 0 WHERE user_id = ? AND id != ? AND is_default = 1`,
		userID, exceptID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProviderConfig(row rowScanner) (*domain.ProviderConfig, error) {
	var cfg domain.ProviderConfig
	var key, settings sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Provider, &key, &cfg.Model, &cfg.IsDefault, &settings, &cfg.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if key.Valid {
		cfg.EncryptedKey = key.String
	}
	if settings.Valid {
		cfg.Settings = json.RawMessage(settings.String)
	}
	if updatedAt.Valid {
		cfg.UpdatedAt = &updatedAt.Time
	}
	return &cfg, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, chat_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ConversationID, event.TurnID, event.Ts, event.Type, nullStringBytes(event.Payload))
	return err
}

// GetEvents retrieves events for a conversation.
func (s *SQLiteStore) GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, chat_id, turn_id, ts, type, payload FROM events WHERE chat_id = ?`
	args := []interface{}{conversationID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.ConversationID, &event.TurnID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// translateErr maps constraint violations onto the domain taxonomy.
func translateErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return domain.WrapError(domain.KindConflict, err, "already exists")
		case sqlite3.ErrConstraintForeignKey:
			return domain.WrapError(domain.KindNotFound, err, "referenced row not found")
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
