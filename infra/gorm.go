package infra

import (
	"github.com/HavvokLab/solax-cloud/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultDatabasePath = "solax_cloud.db"

// NewGormDB opens the sqlite credential store and migrates its tables.
func NewGormDB(paths ...string) (*gorm.DB, error) {
	var path string = DefaultDatabasePath
	if len(paths) > 0 && paths[0] != "" {
		path = paths[0]
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.SolaxCredential{}); err != nil {
		return nil, err
	}

	return db, nil
}
