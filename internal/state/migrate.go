package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// newMigrator builds a goose provider over the embedded journal schema.
// Providers carry their own state, so journals opened side by side do not
// share goose globals.
func newMigrator(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal migrations: %w", err)
	}
	return p, nil
}

// Migrate applies pending journal migrations.
func (j *Journal) Migrate(ctx context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not opened")
	}
	p, err := newMigrator(j.db)
	if err != nil {
		return err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate session journal: %w", err)
	}
	for _, r := range results {
		j.logger.Debug("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MigrationVersion returns the journal's schema version.
func (j *Journal) MigrationVersion(ctx context.Context) (int64, error) {
	if j.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	p, err := newMigrator(j.db)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
