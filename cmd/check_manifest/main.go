package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"sourcetrace/c2pa"
	"sourcetrace/models"
)

// Resolve a content-credential manifest tree from disk and print its summary.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: check_manifest <manifest.json>")
	}

	path := os.Args[1]
	fmt.Printf("=== Checking content credentials: %s ===\n\n", filepath.Base(path))

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read manifest file: %v", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		log.Fatalf("Failed to parse manifest file: %v", err)
	}

	summary := c2pa.Resolve(tree)

	switch summary.Status {
	case models.CredentialAbsent:
		fmt.Printf("No credentials: %s\n", summary.Reason)
	case models.CredentialUnresolvable:
		fmt.Printf("Unresolvable manifest: %s\n", summary.Reason)
	case models.CredentialError:
		fmt.Printf("Decode error: %s\n", summary.Reason)
	case models.CredentialPresent:
		fmt.Printf("Credentials present (valid=%v)\n", summary.Valid)
		if summary.ClaimGenerator != "" {
			fmt.Printf("  Claim generator: %s\n", summary.ClaimGenerator)
		}
		if summary.CreatorTool != "" {
			fmt.Printf("  Creator tool:    %s\n", summary.CreatorTool)
		}
		if summary.SignerIssuer != "" {
			fmt.Printf("  Signer:          %s (%s)\n", summary.SignerIssuer, summary.SignerTime)
		}
		if len(summary.AssertionLabels) > 0 {
			fmt.Printf("  Assertions:      %v\n", summary.AssertionLabels)
		}
		for _, ing := range summary.Ingredients {
			fmt.Printf("  Ingredient:      %s (%s)\n", ing.Title, ing.Relationship)
		}
		if !summary.Valid {
			fmt.Printf("  Validation issue: %s\n", summary.ValidationIssue)
		}
	}
}
