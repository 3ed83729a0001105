package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/semla/internal/store"
	"github.com/shrimpsizemoose/semla/internal/store/postgres"
	"github.com/shrimpsizemoose/semla/internal/store/sqlite"
)

func DBConfigFromDSN(dsn, migrationsDir string) store.DBConfig {
	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}
	return store.DBConfig{DSN: dsn, Type: dbType, MigrationsDir: migrationsDir}
}

func NewStore(cfg store.DBConfig) (store.Store, error) {
	// typed nil pointers must not leak into the interface on error
	switch cfg.Type {
	case store.DBTypePostgres:
		s, err := postgres.NewPostgresStore(cfg.DSN, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case store.DBTypeSQLite:
		s, err := sqlite.NewSQLiteStore(cfg.DSN, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", cfg.DSN)
	}
}
