package db

import (
	"fmt"
	"strings"

	"sourcetrace/models"
	"sourcetrace/utils"
)

// Client is the verdict store contract. Both backends persist completed
// analyses and serve the recent-history endpoint.
type Client interface {
	Close() error
	StoreAnalysis(analysis *models.Analysis) error
	RecentAnalyses(limit int) ([]models.Analysis, error)
	TotalAnalyses() (int, error)
}

// NewDBClient selects a backend from the DB_TYPE / DB_URI environment.
// SQLite is the default; Mongo serves deployments that already run one.
func NewDBClient() (Client, error) {
	dbType := strings.ToLower(utils.GetEnv("DB_TYPE", "sqlite"))

	switch dbType {
	case "sqlite", "sqlite3":
		dsn := utils.GetEnv("DB_URI", "storage/sourcetrace.db")
		return NewSQLiteClient(dsn)
	case "mongo", "mongodb":
		uri := utils.GetEnv("DB_URI", "mongodb://localhost:27017")
		dbName := utils.GetEnv("DB_NAME", "sourcetrace")
		return NewMongoClient(uri, dbName)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE value '%s' (expected sqlite or mongo)", dbType)
	}
}
