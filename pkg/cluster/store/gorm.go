package store

import (
	"gorm.io/gorm"

	"github.com/filegrid/filegrid/pkg/cluster"
)

// gormStore implements Store over any *gorm.DB whose schema has already
// been migrated (AutoMigrate for sqlite, golang-migrate for postgres;
// see NewPostgres).
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) LoadNodes() ([]cluster.SSNode, error) {
	var rows []ssNodeRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]cluster.SSNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToNode(r))
	}
	return out, nil
}

func (s *gormStore) LoadRoutes() ([]cluster.FileRoute, error) {
	var rows []fileRouteRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]cluster.FileRoute, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRoute(r))
	}
	return out, nil
}

func (s *gormStore) SaveNode(n cluster.SSNode) error {
	row := nodeToRow(n)
	return s.db.Save(&row).Error
}

func (s *gormStore) SaveRoute(r cluster.FileRoute) error {
	row := routeToRow(r)
	return s.db.Save(&row).Error
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
