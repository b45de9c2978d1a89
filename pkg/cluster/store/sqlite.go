package store

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewSQLite opens (creating if necessary) an embedded sqlite database at
// path and auto-migrates the cluster schema. Embedded storage has no
// separate migration tooling worth the overhead, unlike the postgres
// driver below.
func NewSQLite(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ssNodeRow{}, &fileRouteRow{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}
