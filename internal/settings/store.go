package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Store persists the single tax settings record.
type Store interface {
	Get(ctx context.Context) (TaxSettings, error)
	Save(ctx context.Context, s TaxSettings) (TaxSettings, error)
}

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps settings in the pricing_settings table.
type PGStore struct {
	DB DB
}

const selectSettingsSQL = `SELECT iva_percent::text, iva_applies, ice_percent::text, ice_applies,
       default_margin::text, revision::text, updated_at
FROM pricing_settings
WHERE id = 1`

const upsertSettingsSQL = `INSERT INTO pricing_settings
       (id, iva_percent, iva_applies, ice_percent, ice_applies, default_margin, revision, updated_at)
VALUES (1, $1::numeric, $2, $3::numeric, $4, $5::numeric, $6::uuid, $7)
ON CONFLICT (id) DO UPDATE SET
       iva_percent = EXCLUDED.iva_percent,
       iva_applies = EXCLUDED.iva_applies,
       ice_percent = EXCLUDED.ice_percent,
       ice_applies = EXCLUDED.ice_applies,
       default_margin = EXCLUDED.default_margin,
       revision = EXCLUDED.revision,
       updated_at = EXCLUDED.updated_at
RETURNING iva_percent::text, ice_percent::text, default_margin::text, updated_at`

// Get loads the settings row.
func (s PGStore) Get(ctx context.Context) (TaxSettings, error) {
	if s.DB == nil {
		return TaxSettings{}, errors.New("settings store not configured")
	}
	var (
		ivaPct, icePct, margin, revision string
		out                              TaxSettings
	)
	err := s.DB.QueryRow(ctx, selectSettingsSQL).Scan(
		&ivaPct, &out.IVA.Applies, &icePct, &out.ICE.Applies, &margin, &revision, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxSettings{}, ErrNotFound
		}
		return TaxSettings{}, fmt.Errorf("select settings: %w", err)
	}
	if out.IVA.Percentage, err = decimal.NewFromString(ivaPct); err != nil {
		return TaxSettings{}, fmt.Errorf("parse iva_percent: %w", err)
	}
	if out.ICE.Percentage, err = decimal.NewFromString(icePct); err != nil {
		return TaxSettings{}, fmt.Errorf("parse ice_percent: %w", err)
	}
	if out.DefaultMargin, err = decimal.NewFromString(margin); err != nil {
		return TaxSettings{}, fmt.Errorf("parse default_margin: %w", err)
	}
	if out.Revision, err = uuid.Parse(revision); err != nil {
		return TaxSettings{}, fmt.Errorf("parse revision: %w", err)
	}
	return out, nil
}

// Save upserts the settings row and returns what was stored, with the percentages as
// the columns hold them.
func (s PGStore) Save(ctx context.Context, in TaxSettings) (TaxSettings, error) {
	if s.DB == nil {
		return TaxSettings{}, errors.New("settings store not configured")
	}
	var (
		ivaPct, icePct, margin string
		updatedAt              time.Time
	)
	err := s.DB.QueryRow(ctx, upsertSettingsSQL,
		in.IVA.Percentage.String(), in.IVA.Applies,
		in.ICE.Percentage.String(), in.ICE.Applies,
		in.DefaultMargin.String(), in.Revision.String(), in.UpdatedAt,
	).Scan(&ivaPct, &icePct, &margin, &updatedAt)
	if err != nil {
		return TaxSettings{}, fmt.Errorf("upsert settings: %w", err)
	}
	if in.IVA.Percentage, err = decimal.NewFromString(ivaPct); err != nil {
		return TaxSettings{}, fmt.Errorf("parse iva_percent: %w", err)
	}
	if in.ICE.Percentage, err = decimal.NewFromString(icePct); err != nil {
		return TaxSettings{}, fmt.Errorf("parse ice_percent: %w", err)
	}
	if in.DefaultMargin, err = decimal.NewFromString(margin); err != nil {
		return TaxSettings{}, fmt.Errorf("parse default_margin: %w", err)
	}
	in.UpdatedAt = updatedAt
	return in, nil
}

// MemoryStore keeps settings in process. It backs deployments without a database and tests.
type MemoryStore struct {
	mu  sync.RWMutex
	cur *TaxSettings
}

// Get returns the stored settings or ErrNotFound.
func (m *MemoryStore) Get(context.Context) (TaxSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return TaxSettings{}, ErrNotFound
	}
	return *m.cur, nil
}

// Save replaces the stored settings.
func (m *MemoryStore) Save(_ context.Context, s TaxSettings) (TaxSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.cur = &cp
	return s, nil
}
