package analyses

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sourcetrace/models"
	"sourcetrace/utils"
)

var (
	analysesFile = "analyses.json"
	mu           sync.RWMutex
)

// loadAnalysesInternal loads all stored analyses from the JSON file (without lock)
func loadAnalysesInternal() ([]models.Analysis, error) {
	filePath := filepath.Join("storage", analysesFile)

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// Return empty slice if file doesn't exist
		return []models.Analysis{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading analyses file: %v", err)
	}

	if len(data) == 0 {
		return []models.Analysis{}, nil
	}

	var analyses []models.Analysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		return nil, fmt.Errorf("error unmarshaling analyses: %v", err)
	}

	return analyses, nil
}

// LoadAnalyses loads all stored analyses from the JSON file
func LoadAnalyses() ([]models.Analysis, error) {
	mu.RLock()
	defer mu.RUnlock()
	return loadAnalysesInternal()
}

// SaveAnalysis appends a completed analysis to the JSON file
func SaveAnalysis(analysis *models.Analysis) error {
	mu.Lock()
	defer mu.Unlock()

	// Load existing analyses (without lock since we already have write lock)
	analyses, err := loadAnalysesInternal()
	if err != nil {
		return err
	}

	// Set ID and timestamp if not set
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}

	// Append new analysis
	analyses = append(analyses, *analysis)

	// Ensure directory exists
	filePath := filepath.Join("storage", analysesFile)
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	// Write back to file
	data, err := json.MarshalIndent(analyses, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling analyses: %v", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing analyses file: %v", err)
	}

	return nil
}
