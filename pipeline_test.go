package main

import (
	"context"
	"testing"
	"time"

	"sourcetrace/analyses"
	"sourcetrace/models"
	"sourcetrace/search"
	"sourcetrace/synth"
)

func TestPipelineRunWithoutCollaborators(t *testing.T) {
	pipeline := degradedPipeline()

	var steps []int
	verdict, signals := pipeline.run(context.Background(), analysisInput{}, func(step int, msg string) {
		steps = append(steps, step)
		if msg == "" {
			t.Errorf("step %d has no message", step)
		}
	})

	if len(steps) != 4 || steps[0] != 1 || steps[3] != 4 {
		t.Errorf("progress steps: %v", steps)
	}
	if signals.Credential.Status != models.CredentialAbsent {
		t.Errorf("credential without a manifest must be absent: %+v", signals.Credential)
	}
	if signals.Metadata.HasMetadata {
		t.Errorf("no input must mean no metadata")
	}
	result, ok := signals.Search.(search.Result)
	if !ok || result.Found {
		t.Errorf("search signal: %+v", signals.Search)
	}
	if !verdict.Degraded || verdict.Confidence != 50 {
		t.Errorf("verdict: %+v", verdict)
	}
}

func TestPipelineRunInlineSignals(t *testing.T) {
	pipeline := degradedPipeline()

	_, signals := pipeline.run(context.Background(), analysisInput{
		HasInline: true,
		Manifest: map[string]any{
			"active_manifest": map[string]any{"claim_generator": "TestGen"},
		},
	}, nil)

	if signals.Credential.Status != models.CredentialPresent {
		t.Errorf("inline manifest must resolve: %+v", signals.Credential)
	}
}

func TestPipelinePersistFallsBackToFileStore(t *testing.T) {
	t.Chdir(t.TempDir())

	pipeline := degradedPipeline()
	verdict := models.Verdict{
		Confidence:     85,
		Recommendation: models.RecommendProceedToRights,
	}
	pipeline.persist(context.Background(), "https://cdn.example.com/photo.jpg", verdict, models.FusedSignals{}, 750*time.Millisecond)

	stored, err := analyses.LoadAnalyses()
	if err != nil {
		t.Fatalf("LoadAnalyses: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored analysis, got %d", len(stored))
	}
	got := stored[0]
	if got.Confidence != 85 || got.Recommendation != models.RecommendProceedToRights {
		t.Errorf("record: %+v", got)
	}
	if got.LatencyMs != 750 {
		t.Errorf("latency: %v", got.LatencyMs)
	}
	if got.ID == "" {
		t.Errorf("record must carry an ID")
	}
}

func TestPipelinePersistUsesDBWhenPresent(t *testing.T) {
	store := &stubStore{}
	pipeline := degradedPipeline()
	pipeline.dbClient = store

	pipeline.persist(context.Background(), "upload:photo.jpg", synth.NewEngine(synth.Config{}, nil).Analyze(context.Background(), models.FusedSignals{}), models.FusedSignals{}, time.Second)

	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
	if !store.records[0].Degraded || store.records[0].Source != "upload:photo.jpg" {
		t.Errorf("record: %+v", store.records[0])
	}
}
