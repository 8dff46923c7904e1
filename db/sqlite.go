package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"sourcetrace/models"
	"sourcetrace/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	err = createTables(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createAnalysesTable := `
    CREATE TABLE IF NOT EXISTS analyses (
        id TEXT PRIMARY KEY,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        source TEXT,
        confidence INTEGER NOT NULL DEFAULT 0,
        recommendation TEXT NOT NULL,
        degraded INTEGER NOT NULL DEFAULT 0,
        verdict TEXT NOT NULL,
        signals TEXT,
        latency_ms REAL NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
    CREATE INDEX IF NOT EXISTS idx_analyses_recommendation ON analyses(recommendation);
    `

	_, err := db.Exec(createAnalysesTable)
	if err != nil {
		return fmt.Errorf("error creating analyses table: %s", err)
	}

	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

func (db *SQLiteClient) StoreAnalysis(analysis *models.Analysis) error {
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}

	_, err := db.db.Exec(`
        INSERT INTO analyses (id, timestamp, source, confidence, recommendation, degraded, verdict, signals, latency_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID,
		analysis.Timestamp,
		analysis.Source,
		analysis.Confidence,
		analysis.Recommendation,
		boolToInt(analysis.Degraded),
		string(analysis.Verdict),
		string(analysis.Signals),
		analysis.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("error storing analysis: %s", err)
	}

	return nil
}

func (db *SQLiteClient) RecentAnalyses(limit int) ([]models.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.db.Query(`
        SELECT id, timestamp, source, confidence, recommendation, degraded, verdict, signals, latency_ms
        FROM analyses ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %s", err)
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var a models.Analysis
		var degraded int
		var verdict, signals string
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Source, &a.Confidence, &a.Recommendation, &degraded, &verdict, &signals, &a.LatencyMs); err != nil {
			return nil, fmt.Errorf("error scanning row: %s", err)
		}
		a.Degraded = degraded != 0
		a.Verdict = []byte(verdict)
		if signals != "" {
			a.Signals = []byte(signals)
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %s", err)
	}

	return analyses, nil
}

func (db *SQLiteClient) TotalAnalyses() (int, error) {
	var count int
	err := db.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting analyses: %s", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
