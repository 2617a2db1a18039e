package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore writes entries to pricing_settings_audit.
type PGStore struct {
	DB DB
}

const insertEntrySQL = `INSERT INTO pricing_settings_audit
       (id, action, resource, resource_id, method, path, status, ip, user_agent, request_id, metadata, created_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)`

const listEntriesSQL = `SELECT id::text, action, resource, resource_id, method, path, status, ip, user_agent,
       request_id, metadata, created_at
FROM pricing_settings_audit
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

// Insert stores e.
func (s PGStore) Insert(ctx context.Context, e Entry) error {
	if s.DB == nil {
		return errors.New("audit store not configured")
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}
	_, err := s.DB.Exec(ctx, insertEntrySQL,
		e.ID.String(), e.Action, e.Resource, e.ResourceID, e.Method, e.Path, e.Status,
		e.IP, e.UserAgent, e.RequestID, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s PGStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if s.DB == nil {
		return nil, errors.New("audit store not configured")
	}
	rows, err := s.DB.Query(ctx, listEntriesSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e        Entry
			id       string
			metadata []byte
		)
		if err := row.Scan(&id, &e.Action, &e.Resource, &e.ResourceID, &e.Method, &e.Path, &e.Status,
			&e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return Entry{}, err
		}
		e.ID = parsed
		e.Metadata = metadata
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}

// MemoryStore keeps the most recent entries in process.
type MemoryStore struct {
	// Capacity bounds the number of retained entries; zero means 1000.
	Capacity int

	mu      sync.Mutex
	entries []Entry
}

// Insert appends e, dropping the oldest entry once Capacity is reached.
func (m *MemoryStore) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	capacity := m.Capacity
	if capacity <= 0 {
		capacity = 1000
	}
	m.entries = append(m.entries, e)
	if over := len(m.entries) - capacity; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// List returns entries newest first.
func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
