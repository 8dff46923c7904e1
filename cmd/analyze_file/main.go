package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"sourcetrace/c2pa"
	"sourcetrace/exif"
	"sourcetrace/models"
	"sourcetrace/synth"
)

// signalsFile is the on-disk shape this tool consumes: the pre-parsed
// signal trees for one image, as the decoding sidecar would emit them.
type signalsFile struct {
	Tags     exif.TagSet    `json:"exif_tags"`
	Manifest map[string]any `json:"c2pa_manifest"`
	Search   any            `json:"reverse_search"`
}

// Run the fusion pipeline over a signals JSON file and print the verdict.
func main() {
	_ = godotenv.Load()

	path := flag.String("signals", "", "Path to a signals JSON file (exif_tags, c2pa_manifest, reverse_search)")
	flag.Parse()

	if *path == "" {
		log.Fatal("Usage: analyze_file -signals <signals.json>")
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("Failed to read signals file: %v", err)
	}

	var input signalsFile
	if err := json.Unmarshal(data, &input); err != nil {
		log.Fatalf("Failed to parse signals file: %v", err)
	}

	ctx := context.Background()
	cfg := synth.ConfigFromEnv()

	var reasoner synth.ReasoningClient
	if ok, reason := synth.CheckAPIKey(cfg.APIKey); ok {
		client, err := synth.NewGeminiClient(ctx, cfg)
		if err != nil {
			log.Printf("reasoning client unavailable, verdict will be degraded: %v", err)
		} else {
			reasoner = client
		}
	} else {
		log.Printf("%s - verdict will be degraded", reason)
	}
	engine := synth.NewEngine(cfg, reasoner)

	signals := models.FusedSignals{
		Credential: c2pa.Resolve(input.Manifest),
		Metadata:   exif.Decode(input.Tags),
		Search:     input.Search,
	}

	verdict := engine.Analyze(ctx, signals)

	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal verdict: %v", err)
	}
	fmt.Println(string(out))
}
