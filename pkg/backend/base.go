package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// BaseSQLClient provides common database/sql functionality for clients.
// Embed this struct in concrete client implementations to get standard
// Close, Ping, and Execute implementations.
type BaseSQLClient struct {
	DB     *sql.DB
	Cfg    core.BackendConfig
	Logger *slog.Logger
}

// ApplyPool copies the connection pool settings from cfg onto db.
func ApplyPool(db *sql.DB, cfg core.BackendConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// Close closes the database connection.
func (b *BaseSQLClient) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Ping verifies the connection is alive.
func (b *BaseSQLClient) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if err := b.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Execute runs q and converts the rows into a columnar response.
func (b *BaseSQLClient) Execute(ctx context.Context, q core.Query) (*core.Response, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	rows, err := b.DB.QueryContext(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	resp, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if b.Logger != nil {
		b.Logger.Debug("query executed", "ref_id", q.RefID, "rows", resp.Rows(), "fields", len(resp.Fields))
	}
	return resp, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLClient) IsConnected() bool {
	return b.DB != nil
}

// ScanRows drains rows into a columnar response. Column types come from
// the driver's database type names; columns the driver leaves untyped are
// inferred from their first non-null value.
func ScanRows(rows *sql.Rows) (*core.Response, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	raw := make([][]any, len(columnTypes))
	dest := make([]any, len(columnTypes))
	for rows.Next() {
		cells := make([]any, len(columnTypes))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range cells {
			raw[i] = append(raw[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	resp := &core.Response{Fields: make([]core.Field, len(columnTypes))}
	for i, ct := range columnTypes {
		ft, ok := FieldTypeFor(ct.DatabaseTypeName())
		if !ok {
			ft = InferFieldType(raw[i])
		}
		values := make([]any, len(raw[i]))
		for j, v := range raw[i] {
			values[j] = ConvertValue(v, ft)
		}
		resp.Fields[i] = core.Field{
			FieldSchema: core.FieldSchema{Name: ct.Name(), Type: ft},
			Values:      values,
		}
	}
	return resp, nil
}
