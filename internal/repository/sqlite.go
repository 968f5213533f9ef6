package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/omniagentpay/payguard/internal/domain"
)

// SQLiteStore implements Store using SQLite. Timestamps are stored as
// INTEGER unix milliseconds, amounts as decimal TEXT.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guards (
			guard_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			kind TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS intents (
			intent_id TEXT PRIMARY KEY,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			recipient TEXT NOT NULL DEFAULT '',
			recipient_address TEXT NOT NULL DEFAULT '',
			wallet_id TEXT NOT NULL,
			chain TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			steps TEXT NOT NULL,
			guard_results TEXT NOT NULL DEFAULT '[]',
			spend_snapshot TEXT,
			route TEXT,
			tx_hash TEXT NOT NULL DEFAULT '',
			fee TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_status_updated ON intents(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_wallet ON intents(wallet_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_agent ON intents(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (intent_id) REFERENCES intents(intent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_intent ON events(intent_id, ts)`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			wallet_id TEXT NOT NULL DEFAULT '',
			tools TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			tx_id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL UNIQUE,
			wallet_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			recipient TEXT NOT NULL DEFAULT '',
			recipient_address TEXT NOT NULL DEFAULT '',
			chain TEXT NOT NULL DEFAULT '',
			tx_hash TEXT NOT NULL DEFAULT '',
			fee TEXT NOT NULL DEFAULT '0',
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_wallet_ts ON transactions(wallet_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return errors.Wrapf(err, "migration failed\n%s", m)
		}
	}

	// Columns added after the first schema (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("intents", "tool", "ALTER TABLE intents ADD COLUMN tool TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := s.ensureColumn("intents", "approved_by", "ALTER TABLE intents ADD COLUMN approved_by TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_intents_tool ON intents(tool)`); err != nil {
		return err
	}
	if err := s.ensureColumn("intents", "execution_started_at", "ALTER TABLE intents ADD COLUMN execution_started_at INTEGER"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_intents_status_started ON intents(status, execution_started_at)`); err != nil {
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

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// decodeJSON unmarshals with UseNumber so numeric guard config keeps its
// exact decimal text.
func decodeJSON(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *SQLiteStore) query(ctx context.Context, qb sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}
	return s.db.QueryContext(ctx, query, args...)
}

// CreateGuard creates a new guard rule.
func (s *SQLiteStore) CreateGuard(ctx context.Context, rule *domain.GuardRule) error {
	config, err := json.Marshal(configOrEmpty(rule.Config))
	if err != nil {
		return errors.Wrap(err, "failed to encode guard config")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guards (guard_id, name, enabled, kind, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Enabled, rule.Kind, string(config), toMillis(rule.CreatedAt), toMillis(rule.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Wrapf(domain.ErrConflict, "guard %s already exists", rule.ID)
	}
	return err
}

// GetGuard retrieves a guard rule by ID.
func (s *SQLiteStore) GetGuard(ctx context.Context, guardID string) (*domain.GuardRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT guard_id, name, enabled, kind, config, created_at, updated_at FROM guards WHERE guard_id = ?`, guardID)
	rule, err := scanGuard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListGuards lists all guard rules in creation order. This order is the
// evaluation order.
func (s *SQLiteStore) ListGuards(ctx context.Context) ([]domain.GuardRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guard_id, name, enabled, kind, config, created_at, updated_at FROM guards ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.GuardRule
	for rows.Next() {
		rule, err := scanGuard(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// UpdateGuard replaces a guard rule's name, enabled flag, kind and config.
func (s *SQLiteStore) UpdateGuard(ctx context.Context, rule *domain.GuardRule) error {
	config, err := json.Marshal(configOrEmpty(rule.Config))
	if err != nil {
		return errors.Wrap(err, "failed to encode guard config")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE guards SET name = ?, enabled = ?, kind = ?, config = ?, updated_at = ? WHERE guard_id = ?`,
		rule.Name, rule.Enabled, rule.Kind, string(config), toMillis(rule.UpdatedAt), rule.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(domain.ErrGuardNotFound, "guard %s", rule.ID)
	}
	return nil
}

// DeleteGuard removes a guard rule.
func (s *SQLiteStore) DeleteGuard(ctx context.Context, guardID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guards WHERE guard_id = ?`, guardID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(domain.ErrGuardNotFound, "guard %s", guardID)
	}
	return nil
}

func scanGuard(row rowScanner) (*domain.GuardRule, error) {
	var rule domain.GuardRule
	var config string
	var createdAt, updatedAt int64
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Enabled, &rule.Kind, &config, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rule.Config = domain.RuleConfig{}
	if config != "" {
		if err := decodeJSON(config, &rule.Config); err != nil {
			return nil, errors.Wrapf(err, "failed to decode config of guard %s", rule.ID)
		}
	}
	rule.CreatedAt = fromMillis(createdAt)
	rule.UpdatedAt = fromMillis(updatedAt)
	return &rule, nil
}

func configOrEmpty(cfg domain.RuleConfig) domain.RuleConfig {
	if cfg == nil {
		return domain.RuleConfig{}
	}
	return cfg
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	var payload sql.NullString
	if event.Payload != nil {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, intent_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.IntentID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves the timeline of an intent, oldest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	qb := sq.Select("event_id", "intent_id", "ts", "type", "payload").
		From("events").
		Where(sq.Eq{"intent_id": filter.IntentID}).
		OrderBy("ts ASC", "rowid ASC")
	if filter.AfterTs > 0 {
		qb = qb.Where(sq.Gt{"ts": filter.AfterTs})
	}
	if len(filter.Types) > 0 {
		qb = qb.Where(sq.Eq{"type": filter.Types})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	rows, err := s.query(ctx, qb)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.IntentID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// RegisterAgent registers or updates an agent.
func (s *SQLiteStore) RegisterAgent(ctx context.Context, agent *domain.Agent) error {
	tools, err := json.Marshal(agent.Tools)
	if err != nil {
		return errors.Wrap(err, "failed to encode agent tools")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (agent_id, name, wallet_id, tools, created_at) VALUES (?, ?, ?, ?, ?)`,
		agent.AgentID, agent.Name, agent.WalletID, string(tools), toMillis(agent.CreatedAt))
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, wallet_id, tools, created_at FROM agents WHERE agent_id = ?`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, wallet_id, tools, created_at FROM agents ORDER BY created_at, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var tools sql.NullString
	var createdAt int64
	if err := row.Scan(&agent.AgentID, &agent.Name, &agent.WalletID, &tools, &createdAt); err != nil {
		return nil, err
	}
	if tools.Valid && tools.String != "" && tools.String != "null" {
		if err := json.Unmarshal([]byte(tools.String), &agent.Tools); err != nil {
			return nil, errors.Wrapf(err, "failed to decode tools of agent %s", agent.AgentID)
		}
	}
	agent.CreatedAt = fromMillis(createdAt)
	return &agent, nil
}
