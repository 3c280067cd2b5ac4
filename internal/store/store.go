package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
)

// Store persists one scenario's metric series, alerts and the content hash of
// the parameters that produced them. Decimals are stored as VARCHAR so a
// recompute can be compared bit for bit.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewStore opens (or creates) the store database at path. An empty path opens
// an in-memory database, which tests use.
func NewStore(path string, logger *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}

	if err := store.createTables(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS metrics (
			symbol VARCHAR NOT NULL,
			date DATE NOT NULL,
			p VARCHAR, m VARCHAR, x VARCHAR,
			m1 VARCHAR, x1 VARCHAR,
			t VARCHAR, q VARCHAR, s VARCHAR,
			k1 VARCHAR, k2 VARCHAR, k3 VARCHAR, k4 VARCHAR,
			k1f VARCHAR, k2f_pre VARCHAR, k2f VARCHAR, diff VARCHAR,
			v_pre VARCHAR, v_line VARCHAR,
			v VARCHAR, slope_p VARCHAR,
			nb_pos_p INTEGER, sum_pos_p VARCHAR, ratio_p VARCHAR, amp_h VARCHAR,
			computed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			symbol VARCHAR NOT NULL,
			date DATE NOT NULL,
			code VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (symbol, date, code)
		)`,
		`CREATE TABLE IF NOT EXISTS scenario_state (
			name VARCHAR PRIMARY KEY,
			hash VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create store tables: %w", err)
		}
	}

	return nil
}

// SaveMetrics inserts a metric batch inside one transaction. Existing rows
// for the same (symbol, date) must have been deleted beforehand.
func (s *Store) SaveMetrics(metrics []types.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range metrics {
		insert := s.sq.Insert("metrics").Columns(
			"symbol", "date",
			"p", "m", "x", "m1", "x1",
			"t", "q", "s",
			"k1", "k2", "k3", "k4",
			"k1f", "k2f_pre", "k2f", "diff",
			"v_pre", "v_line",
			"v", "slope_p",
			"nb_pos_p", "sum_pos_p", "ratio_p", "amp_h",
			"computed_at",
		).Values(
			m.Symbol, m.Date,
			decimalString(m.P), decimalString(m.M), decimalString(m.X), decimalString(m.M1), decimalString(m.X1),
			decimalString(m.T), decimalString(m.Q), decimalString(m.S),
			decimalString(m.K1), decimalString(m.K2), decimalString(m.K3), decimalString(m.K4),
			decimalString(m.K1f), decimalString(m.K2fPre), decimalString(m.K2f), decimalString(m.Diff),
			decimalString(m.VPre), decimalString(m.VLine),
			decimalString(m.V), decimalString(m.SlopeP),
			intValue(m.NbPosP), decimalString(m.SumPosP), decimalString(m.RatioP), decimalString(m.AmpH),
			m.ComputedAt,
		)

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build metric insert: %w", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert metric for %s on %s: %w",
				m.Symbol, types.FormatDate(m.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metric batch: %w", err)
	}

	s.logger.Debug("saved metric batch", zap.Int("count", len(metrics)))

	return nil
}

// SaveAlerts inserts an alert batch inside one transaction.
func (s *Store) SaveAlerts(alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range alerts {
		query, args, err := s.sq.Insert("alerts").
			Columns("symbol", "date", "code", "created_at").
			Values(a.Symbol, a.Date, string(a.Code), a.CreatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build alert insert: %w", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert alert %s for %s on %s: %w",
				a.Code, a.Symbol, types.FormatDate(a.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert batch: %w", err)
	}

	return nil
}

// DeleteFrom removes a symbol's metrics and alerts at or after since, so an
// incremental recompute can replace them. A stale alert on a replayed day
// disappears even when the new pass emits nothing for it.
func (s *Store) DeleteFrom(symbol string, since time.Time) error {
	for _, table := range []string{"metrics", "alerts"} {
		query, args, err := s.sq.Delete(table).
			Where(squirrel.Eq{"symbol": symbol}).
			Where(squirrel.GtOrEq{"date": since}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build delete for %s: %w", table, err)
		}

		if _, err := s.db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	return nil
}

// DeleteAll clears every metric and alert. Used before a full recompute.
func (s *Store) DeleteAll() error {
	for _, table := range []string{"metrics", "alerts"} {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return nil
}

// LastComputedDate returns the newest metric date stored for a symbol.
func (s *Store) LastComputedDate(symbol string) (optional.Option[time.Time], error) {
	query, args, err := s.sq.Select("MAX(date)").
		From("metrics").
		Where(squirrel.Eq{"symbol": symbol}).
		ToSql()
	if err != nil {
		return optional.None[time.Time](), err
	}

	var last sql.NullTime
	if err := s.db.QueryRow(query, args...).Scan(&last); err != nil {
		return optional.None[time.Time](), fmt.Errorf("failed to query last computed date: %w", err)
	}

	if !last.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(types.DateKey(last.Time)), nil
}

// ScenarioHash returns the stored content hash for a scenario name.
func (s *Store) ScenarioHash(name string) (optional.Option[string], error) {
	query, args, err := s.sq.Select("hash").
		From("scenario_state").
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return optional.None[string](), err
	}

	var hash string

	err = s.db.QueryRow(query, args...).Scan(&hash)
	if err == sql.ErrNoRows {
		return optional.None[string](), nil
	}

	if err != nil {
		return optional.None[string](), fmt.Errorf("failed to query scenario hash: %w", err)
	}

	return optional.Some(hash), nil
}

// SetScenarioHash stores the content hash for a scenario name.
func (s *Store) SetScenarioHash(name, hash string) error {
	query, args, err := s.sq.Delete("scenario_state").
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to clear scenario state: %w", err)
	}

	query, args, err = s.sq.Insert("scenario_state").
		Columns("name", "hash", "updated_at").
		Values(name, hash, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to store scenario hash: %w", err)
	}

	return nil
}

// GetAlerts returns a symbol's alerts ordered by date then code.
func (s *Store) GetAlerts(symbol string) ([]types.Alert, error) {
	query, args, err := s.sq.Select("symbol", "date", "code", "created_at").
		From("alerts").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("date ASC", "code ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert

	for rows.Next() {
		var (
			alert types.Alert
			code  string
		)

		if err := rows.Scan(&alert.Symbol, &alert.Date, &code, &alert.CreatedAt); err != nil {
			return nil, err
		}

		alert.Code = types.AlertCode(code)
		alert.Date = types.DateKey(alert.Date)
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// GetMetricDates returns the stored metric dates for a symbol, ascending.
func (s *Store) GetMetricDates(symbol string) ([]time.Time, error) {
	query, args, err := s.sq.Select("date").
		From("metrics").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time

	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}

		dates = append(dates, types.DateKey(date))
	}

	return dates, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decimalString(v optional.Option[decimal.Decimal]) interface{} {
	if v.IsNone() {
		return nil
	}

	return v.Unwrap().String()
}

func intValue(v optional.Option[int]) interface{} {
	if v.IsNone() {
		return nil
	}

	return v.Unwrap()
}
