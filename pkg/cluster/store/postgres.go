package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used by golang-migrate
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/filegrid/filegrid/pkg/cluster/store/migrations"
)

// NewPostgres opens a postgres-backed cluster store, running golang-migrate
// migrations before handing the connection to gorm for queries.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	if err := runMigrations(ctx, dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("cluster store: open connection: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("cluster store: ping: %w", err)
	}

	driver, err := pgmigrate.WithInstance(sqlDB, &pgmigrate.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "filegrid_cluster",
	})
	if err != nil {
		return fmt.Errorf("cluster store: postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("cluster store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("cluster store: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("cluster store: migration failed: %w", err)
	}
	return nil
}
