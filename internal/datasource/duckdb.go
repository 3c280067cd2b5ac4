package datasource

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
)

// DuckDBBarSource reads daily bars from CSV or Parquet files through a DuckDB
// view. Prices are transported as strings and parsed into decimals so no
// float conversion touches the values.
type DuckDBBarSource struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDuckDBBarSource creates a bar source backed by the DuckDB database at
// path. An empty path opens an in-memory database.
func NewDuckDBBarSource(path string, logger *logger.Logger) (BarSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	return &DuckDBBarSource{
		db:     db,
		logger: logger,
	}, nil
}

// Initialize implements BarSource. The file must carry the columns
// symbol, date, open, high, low, close, volume.
func (d *DuckDBBarSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB bar source", zap.String("path", path))

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS daily_bars;`); err != nil {
		return fmt.Errorf("failed to drop existing view: %w", err)
	}

	// Squirrel doesn't support CREATE VIEW, use raw SQL.
	reader := "read_csv_auto"
	if strings.HasSuffix(path, ".parquet") {
		reader = "read_parquet"
	}

	query := fmt.Sprintf(`
		CREATE VIEW daily_bars AS
		SELECT symbol,
			CAST(date AS DATE) AS date,
			CAST(open AS VARCHAR) AS open,
			CAST(high AS VARCHAR) AS high,
			CAST(low AS VARCHAR) AS low,
			CAST(close AS VARCHAR) AS close,
			CAST(volume AS BIGINT) AS volume
		FROM %s('%s');
	`, reader, path)

	if _, err := d.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create daily_bars view: %w", err)
	}

	return nil
}

// Count implements BarSource.
func (d *DuckDBBarSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	query := "SELECT COUNT(*) FROM daily_bars"
	conditions, params := dateConditions(start, end, 0)

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := d.db.QueryRow(query, params...).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// ReadAll implements BarSource.
func (d *DuckDBBarSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		query := `
			SELECT symbol, date, open, high, low, close, volume
			FROM daily_bars
		`

		conditions, params := dateConditions(start, end, 0)
		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}

		query += " ORDER BY symbol ASC, date ASC"

		rows, err := d.db.Query(query, params...)
		if err != nil {
			yield(types.Bar{}, err)

			return
		}
		defer rows.Close()

		for rows.Next() {
			bar, err := scanBar(rows)
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, err)
		}
	}
}

// GetRange implements BarSource.
func (d *DuckDBBarSource) GetRange(symbol string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = $1
	`

	params := []interface{}{symbol}

	conditions, dateParams := dateConditions(start, end, 1)
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
		params = append(params, dateParams...)
	}

	query += " ORDER BY date ASC"

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, rows.Err()
}

// Symbols implements BarSource.
func (d *DuckDBBarSource) Symbols() ([]string, error) {
	rows, err := d.db.Query(`SELECT DISTINCT symbol FROM daily_bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}

		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// Close implements BarSource.
func (d *DuckDBBarSource) Close() error {
	return d.db.Close()
}

func dateConditions(start optional.Option[time.Time], end optional.Option[time.Time], offset int) ([]string, []interface{}) {
	var (
		conditions []string
		params     []interface{}
	)

	if start.IsSome() {
		offset++
		conditions = append(conditions, fmt.Sprintf("date >= $%d", offset))
		params = append(params, start.Unwrap())
	}

	if end.IsSome() {
		offset++
		conditions = append(conditions, fmt.Sprintf("date <= $%d", offset))
		params = append(params, end.Unwrap())
	}

	return conditions, params
}

func scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		symbol                 string
		date                   time.Time
		open, high, low, close sql.NullString
		volume                 sql.NullInt64
	)

	if err := rows.Scan(&symbol, &date, &open, &high, &low, &close, &volume); err != nil {
		return types.Bar{}, err
	}

	bar := types.Bar{
		Symbol: symbol,
		Date:   types.DateKey(date),
		Volume: volume.Int64,
	}

	var err error

	if bar.Open, err = parsePrice(open); err != nil {
		return types.Bar{}, err
	}

	if bar.High, err = parsePrice(high); err != nil {
		return types.Bar{}, err
	}

	if bar.Low, err = parsePrice(low); err != nil {
		return types.Bar{}, err
	}

	if bar.Close, err = parsePrice(close); err != nil {
		return types.Bar{}, err
	}

	return bar, nil
}

func parsePrice(v sql.NullString) (optional.Option[decimal.Decimal], error) {
	if !v.Valid || v.String == "" {
		return optional.None[decimal.Decimal](), nil
	}

	price, err := decimal.NewFromString(v.String)
	if err != nil {
		return optional.None[decimal.Decimal](), fmt.Errorf("invalid price value %q: %w", v.String, err)
	}

	return optional.Some(price), nil
}
