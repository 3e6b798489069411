// Package store is the §6 relational persistence facade, backed by
// modernc.org/sqlite (a CGo-free driver, preferred here so the engine
// builds without a C toolchain). Grounded loosely on the source repo's
// JSON-file Store, replacing its cache-file model and non-deterministic
// sample-data generator with real DDL and prepared statements.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Store wraps a sqlite connection with the engine's domain-specific
// read/write methods. A single *Store instance is shared across the
// supervisor's components; Open limits the pool to one connection, which
// serialises concurrent writers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dsn and
// applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite allows one writer; serialise here rather than fight SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// --- books ---

func (s *Store) GetBook(ctx context.Context, bookID string) (types.Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, type, capital_allocated, current_exposure, max_exposure, max_drawdown_limit, status, updated_at FROM books WHERE id = ?`, bookID)
	var b types.Book
	var capital, exposure, maxExp, maxDD string
	if err := row.Scan(&b.ID, &b.Name, &b.Type, &capital, &exposure, &maxExp, &maxDD, &b.Status, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return types.Book{}, fmt.Errorf("book %s: %w", bookID, sql.ErrNoRows)
		}
		return types.Book{}, err
	}
	b.CapitalAllocated = mustDecimal(capital)
	b.CurrentExposure = mustDecimal(exposure)
	b.MaxExposure = mustDecimal(maxExp)
	b.MaxDrawdownLimit = mustDecimal(maxDD)
	return b, nil
}

func (s *Store) SaveBook(ctx context.Context, b types.Book) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, name, type, capital_allocated, current_exposure, max_exposure, max_drawdown_limit, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, capital_allocated=excluded.capital_allocated,
			current_exposure=excluded.current_exposure, max_exposure=excluded.max_exposure,
			max_drawdown_limit=excluded.max_drawdown_limit, status=excluded.status, updated_at=excluded.updated_at`,
		b.ID, b.Name, b.Type, b.CapitalAllocated.String(), b.CurrentExposure.String(), b.MaxExposure.String(),
		b.MaxDrawdownLimit.String(), b.Status, b.UpdatedAt)
	return err
}

func (s *Store) HasOpenPosition(ctx context.Context, bookID, instrument string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE book_id = ? AND instrument = ? AND is_open = 1`, bookID, instrument).Scan(&n)
	return n > 0, err
}

// --- kill switches ---

func (s *Store) GlobalKillSwitch(ctx context.Context) (bool, error) {
	return s.killSwitch(ctx, "global")
}

func (s *Store) BookKillSwitch(ctx context.Context, bookID string) (bool, error) {
	return s.killSwitch(ctx, bookID)
}

func (s *Store) killSwitch(ctx context.Context, scope string) (bool, error) {
	var active int
	err := s.db.QueryRowContext(ctx, `SELECT active FROM kill_switches WHERE scope = ?`, scope).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active == 1, nil
}

func (s *Store) SetKillSwitch(ctx context.Context, scope string, active bool, reason string) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kill_switches (scope, active, reason, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET active=excluded.active, reason=excluded.reason, updated_at=excluded.updated_at`,
		scope, activeInt, reason, time.Now())
	return err
}

// --- orders ---

func (s *Store) SaveOrder(ctx context.Context, o types.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, book_id, strategy_id, venue_id, venue_order_id, instrument, side, size, order_type,
			price, status, filled_size, filled_price, slippage, latency_ms, leg_id, intent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, filled_size=excluded.filled_size,
			filled_price=excluded.filled_price, slippage=excluded.slippage, latency_ms=excluded.latency_ms,
			updated_at=excluded.updated_at`,
		o.ID, o.BookID, o.StrategyID, o.VenueID, o.VenueOrderID, o.Instrument, o.Side, o.Size.String(), o.OrderType,
		decimalStringOrNil(o.Price), o.Status, o.FilledSize.String(), decimalStringOrNil(o.FilledPrice),
		decimalStringOrNil(o.Slippage), o.LatencyMs, o.LegID, o.IntentID, o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *Store) InternalOrders(ctx context.Context, venueID string, since time.Time) ([]types.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, strategy_id, venue_id, venue_order_id, instrument, side, size, order_type, status,
			filled_size, filled_price, created_at, updated_at
		FROM orders WHERE venue_id = ? AND created_at >= ?`, venueID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		var o types.Order
		var size, filledSize string
		var filledPrice sql.NullString
		if err := rows.Scan(&o.ID, &o.BookID, &o.StrategyID, &o.VenueID, &o.VenueOrderID, &o.Instrument, &o.Side,
			&size, &o.OrderType, &o.Status, &filledSize, &filledPrice, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Size = mustDecimal(size)
		o.FilledSize = mustDecimal(filledSize)
		if filledPrice.Valid {
			o.FilledPrice = mustDecimal(filledPrice.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) InternalPositions(ctx context.Context, venueID string) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, venue_id, instrument, side, size, entry_price, mark_price, is_open, opened_at, updated_at
		FROM positions WHERE venue_id = ? AND is_open = 1`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var size, entry, mark string
		var isOpen int
		if err := rows.Scan(&p.ID, &p.BookID, &p.VenueID, &p.Instrument, &p.Side, &size, &entry, &mark, &isOpen, &p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Size = mustDecimal(size)
		p.EntryPrice = mustDecimal(entry)
		p.MarkPrice = mustDecimal(mark)
		p.IsOpen = isOpen == 1
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- multi-leg intents and strategy positions ---

func (s *Store) SaveMultiLegIntent(ctx context.Context, intentID string, plan types.ExecutionPlan) error {
	blob, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO multi_leg_intents (intent_id, plan_json, created_at) VALUES (?, ?, ?)`,
		intentID, string(blob), time.Now())
	return err
}

func (s *Store) UpsertStrategyPosition(ctx context.Context, pos types.StrategyPosition) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_positions (id, tenant_id, strategy_id, instrument_id, spot_position, deriv_position, hedged_ratio, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET spot_position=excluded.spot_position, deriv_position=excluded.deriv_position,
			hedged_ratio=excluded.hedged_ratio, updated_at=excluded.updated_at`,
		pos.ID, pos.TenantID, pos.StrategyID, pos.InstrumentID, pos.SpotPosition.String(), pos.DerivPosition.String(),
		pos.HedgedRatio.String(), pos.UpdatedAt)
	return err
}

// StrategyPositions returns every tracked basis strategy position for
// strategyID, used by the reconciliation tick's hedge-ratio check.
func (s *Store) StrategyPositions(ctx context.Context, strategyID string) ([]types.StrategyPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, strategy_id, instrument_id, spot_position, deriv_position, hedged_ratio, updated_at
		FROM strategy_positions WHERE strategy_id = ?`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.StrategyPosition
	for rows.Next() {
		var p types.StrategyPosition
		var spot, deriv, hedged string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.StrategyID, &p.InstrumentID, &spot, &deriv, &hedged, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.SpotPosition = mustDecimal(spot)
		p.DerivPosition = mustDecimal(deriv)
		p.HedgedRatio = mustDecimal(hedged)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- audit / alerts ---

func (s *Store) Audit(ctx context.Context, record types.AuditRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	before, _ := json.Marshal(record.BeforeState)
	after, _ := json.Marshal(record.AfterState)
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, resource_type, resource_id, book_id, severity, before_json, after_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Action, record.ResourceType, record.ResourceID, record.BookID, record.Severity,
		string(before), string(after), record.Timestamp)
}

func (s *Store) RaiseAlert(ctx context.Context, alert types.Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	meta, _ := json.Marshal(alert.Metadata)
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, title, message, severity, source, metadata_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Title, alert.Message, alert.Severity, alert.Source, string(meta), alert.CreatedAt)
}

func (s *Store) MismatchCount(ctx context.Context) (int, error) {
	var n int
	since := time.Now().Add(-1 * time.Hour)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE action LIKE 'recon_%' AND timestamp >= ?`, since).Scan(&n)
	return n, err
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalStringOrNil(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
