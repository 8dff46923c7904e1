package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"sourcetrace/analyses"
	"sourcetrace/c2pa"
	"sourcetrace/db"
	"sourcetrace/exif"
	"sourcetrace/extract"
	"sourcetrace/models"
	"sourcetrace/search"
	"sourcetrace/synth"
	"sourcetrace/utils"
)

// analysisInput bundles whatever the caller supplied for one analysis:
// a local file to run through the decoding sidecar, a public URL for the
// reverse search, or pre-parsed signal trees from callers that already
// ran extraction themselves.
type analysisInput struct {
	ImagePath string
	ImageURL  string
	Tags      exif.TagSet
	Manifest  map[string]any
	HasInline bool
}

// analysisPipeline wires the four steps of a provenance analysis: extract,
// decode, search, fuse. It is request-scoped and safe for concurrent use.
type analysisPipeline struct {
	engine    *synth.Engine
	extractor *extract.Client
	searcher  *search.Client
	dbClient  db.Client
}

// run executes the pipeline and returns the verdict plus the signals it was
// fused from. progress, when non-nil, receives one callback per step for
// realtime consumers.
func (p *analysisPipeline) run(ctx context.Context, input analysisInput, progress func(step int, msg string)) (models.Verdict, models.FusedSignals) {
	logger := utils.GetLogger()
	step := func(n int, msg string) {
		if progress != nil {
			progress(n, msg)
		}
	}

	// Step 1: obtain the parsed signal trees.
	step(1, "Extracting embedded metadata")
	tags := input.Tags
	manifest := input.Manifest
	var manifestErr error

	if !input.HasInline && input.ImagePath != "" && p.extractor != nil {
		extracted, err := p.extractor.ExtractFile(input.ImagePath)
		if err != nil {
			// The pipeline still completes on an unreachable sidecar; the
			// stripped-signal case is itself a meaningful input to fusion.
			logger.WarnContext(ctx, "extraction sidecar unavailable, proceeding without embedded signals",
				slog.Any("error", xerrors.New(err)))
		} else {
			tags = extracted.Tags
			manifest = extracted.ManifestTree
			if extracted.ManifestError != "" {
				manifestErr = errors.New(extracted.ManifestError)
			}
		}
	}

	metadata := exif.Decode(tags)

	// Step 2: flatten the content-credential manifest.
	step(2, "Checking content credentials")
	var credential models.CredentialSummary
	if manifestErr != nil {
		credential = c2pa.SummarizeDecodeError(manifestErr)
	} else {
		credential = c2pa.Resolve(manifest)
	}
	if credential.Status == models.CredentialError {
		logger.ErrorContext(ctx, "content credential decode failed",
			slog.String("reason", credential.Reason))
	}

	// Step 3: reverse image search (URL inputs only).
	step(3, "Performing reverse image search")
	var searchResult search.Result
	if input.ImageURL != "" && p.searcher != nil {
		searchResult = p.searcher.SearchImage(input.ImageURL)
	} else {
		searchResult = search.UnavailableResult("Reverse search not available for file uploads (URL required)")
	}

	// Step 4: fuse.
	step(4, "Synthesizing analysis")
	signals := models.FusedSignals{
		Credential: credential,
		Metadata:   metadata,
		Search:     searchResult,
	}
	verdict := p.engine.Analyze(ctx, signals)

	return verdict, signals
}

// persist stores a completed analysis. Storage failures are logged, never
// surfaced to the caller: the verdict was already produced.
func (p *analysisPipeline) persist(ctx context.Context, source string, verdict models.Verdict, signals models.FusedSignals, latency time.Duration) {
	logger := utils.GetLogger()

	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal verdict for storage", slog.Any("error", xerrors.New(err)))
		return
	}
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		signalsJSON = nil
	}

	record := &models.Analysis{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Source:         source,
		Confidence:     verdict.Confidence,
		Recommendation: verdict.Recommendation,
		Degraded:       verdict.Degraded,
		Verdict:        verdictJSON,
		Signals:        signalsJSON,
		LatencyMs:      float64(latency.Milliseconds()),
	}

	if p.dbClient != nil {
		if err := p.dbClient.StoreAnalysis(record); err != nil {
			logger.ErrorContext(ctx, "failed to store analysis", slog.Any("error", xerrors.New(err)))
		}
		return
	}

	if err := analyses.SaveAnalysis(record); err != nil {
		logger.ErrorContext(ctx, "failed to save analysis to file store", slog.Any("error", xerrors.New(err)))
	}
}
