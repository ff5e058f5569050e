package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/umputun/tg-rspamd/app/storage/engine"
)

// ActionLog keeps moderation decisions in the actions table
type ActionLog struct {
	*engine.SQL
	lock engine.RWLocker
}

// ActionEntry is a single moderation decision
type ActionEntry struct {
	ID          int64     `db:"id" json:"id"`
	GID         string    `db:"gid" json:"-"`
	ChatID      int64     `db:"chat_id" json:"chat_id"`
	MsgID       int       `db:"msg_id" json:"msg_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	UserName    string    `db:"user_name" json:"user_name"`
	Action      string    `db:"action" json:"action"`
	Score       float64   `db:"score" json:"score"`
	SymbolsJSON string    `db:"symbols" json:"-"`
	Symbols     []string  `db:"-" json:"symbols"`
	Text        string    `db:"text" json:"text"`
	Timestamp   time.Time `db:"ts" json:"ts"`
}

var actionsSchema = engine.Schema{
	Table: "actions",
	Sqlite: `CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gid TEXT NOT NULL DEFAULT '',
		chat_id INTEGER,
		msg_id INTEGER,
		user_id INTEGER,
		user_name TEXT,
		action TEXT,
		score REAL,
		symbols TEXT,
		text TEXT,
		ts DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	Postgres: `CREATE TABLE IF NOT EXISTS actions (
		id SERIAL PRIMARY KEY,
		gid TEXT NOT NULL DEFAULT '',
		chat_id BIGINT,
		msg_id INTEGER,
		user_id BIGINT,
		user_name TEXT,
		action TEXT,
		score DOUBLE PRECISION,
		symbols TEXT,
		text TEXT,
		ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	Indexes: []string{
		"CREATE INDEX IF NOT EXISTS idx_actions_gid_ts ON actions(gid, ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_actions_chat ON actions(chat_id)",
	},
}

// NewActionLog creates the table if needed and returns ActionLog
func NewActionLog(ctx context.Context, db *engine.SQL) (*ActionLog, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	res := &ActionLog{SQL: db, lock: db.MakeLock()}
	if err := engine.InitTable(ctx, db, engine.TableConfig{Schema: actionsSchema}); err != nil {
		return nil, fmt.Errorf("failed to init actions table: %w", err)
	}
	return res, nil
}

// Add writes a decision, the timestamp is set to now when empty
func (a *ActionLog) Add(ctx context.Context, entry ActionEntry) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Symbols == nil {
		entry.Symbols = []string{}
	}
	symbols, err := json.Marshal(entry.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}

	query := a.Adopt(`INSERT INTO actions (gid, chat_id, msg_id, user_id, user_name, action, score, symbols, text, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = a.ExecContext(ctx, query, a.GID(), entry.ChatID, entry.MsgID, entry.UserID, entry.UserName,
		entry.Action, entry.Score, string(symbols), entry.Text, entry.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert action for user %d: %w", entry.UserID, err)
	}
	log.Printf("[DEBUG] action %s logged for user %d in chat %d", entry.Action, entry.UserID, entry.ChatID)
	return nil
}

// Recent returns up to limit latest decisions, newest first
func (a *ActionLog) Recent(ctx context.Context, limit int) ([]ActionEntry, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var entries []ActionEntry
	query := a.Adopt(`SELECT id, gid, chat_id, msg_id, user_id, user_name, action, score, symbols, text, ts
		FROM actions WHERE gid = ? ORDER BY ts DESC, id DESC LIMIT ?`)
	if err := a.SelectContext(ctx, &entries, query, a.GID(), limit); err != nil {
		return nil, fmt.Errorf("failed to get recent actions: %w", err)
	}
	for i := range entries {
		if err := json.Unmarshal([]byte(entries[i].SymbolsJSON), &entries[i].Symbols); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symbols of action %d: %w", entries[i].ID, err)
		}
		entries[i].Timestamp = entries[i].Timestamp.Local()
	}
	return entries, nil
}

// CountsSince returns number of decisions per action made since the given time
func (a *ActionLog) CountsSince(ctx context.Context, since time.Time) (map[string]int, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	rows := []struct {
		Action string `db:"action"`
		Count  int    `db:"cnt"`
	}{}
	query := a.Adopt(`SELECT action, COUNT(*) AS cnt FROM actions WHERE gid = ? AND ts >= ? GROUP BY action`)
	if err := a.SelectContext(ctx, &rows, query, a.GID(), since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}
	res := make(map[string]int, len(rows))
	for _, r := range rows {
		res[r.Action] = r.Count
	}
	return res, nil
}
