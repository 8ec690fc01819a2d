// Package repository picks the storage adapter for a database URL.
package repository

import (
	"strings"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

// Open returns a PostgreSQL repository for postgres:// URLs and a SQLite /
// libSQL repository for everything else.
func Open(databaseURL string) (ports.ItemRepository, error) {
	if IsPostgres(databaseURL) {
		repo, err := postgres.NewPostgresRepository(databaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	repo, err := sqlite.NewSQLiteRepository(databaseURL)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func IsPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}
