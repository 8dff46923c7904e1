package synth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"sourcetrace/models"
)

const testAPIKey = "test-key-0123456789abcdef"

// fakeClient returns a canned response or error and records the requests it
// received.
type fakeClient struct {
	response string
	err      error
	requests []PromptRequest
}

func (f *fakeClient) Generate(ctx context.Context, req PromptRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// slowClient blocks until its context is cancelled.
type slowClient struct{}

func (slowClient) Generate(ctx context.Context, req PromptRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testEngine(client ReasoningClient) *Engine {
	return NewEngine(Config{APIKey: testAPIKey, Timeout: time.Second}, client)
}

func sampleSignals() models.FusedSignals {
	lat := -33.8688
	return models.FusedSignals{
		Credential: models.CredentialSummary{
			Status: models.CredentialPresent,
			Valid:  true,
		},
		Metadata: models.MetadataFields{
			HasMetadata: true,
			GPSLatitude: &lat,
		},
		Search: map[string]any{"found": false},
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{
		"confidence": 85,
		"summary": "Strong provenance.",
		"red_flags": [],
		"recommendation": "proceed_to_rights",
		"reasoning": "Credentials valid and EXIF consistent.",
		"probable_owner": {
			"username": "maya_s",
			"platform": "Instagram",
			"confidence": 70,
			"contact_method": "Direct message"
		}
	}`}

	got := testEngine(client).Analyze(context.Background(), sampleSignals())

	if got.Degraded {
		t.Fatalf("verdict must not be degraded: %+v", got)
	}
	if got.Confidence != 85 || got.Recommendation != models.RecommendProceedToRights {
		t.Errorf("confidence=%d recommendation=%q", got.Confidence, got.Recommendation)
	}
	if got.Summary != "Strong provenance." {
		t.Errorf("summary: %q", got.Summary)
	}
	if got.RedFlags == nil || len(got.RedFlags) != 0 {
		t.Errorf("red flags must be an empty list, got %v", got.RedFlags)
	}
	if got.ProbableOwner.Username != "maya_s" || got.ProbableOwner.Confidence != 70 {
		t.Errorf("probable owner: %+v", got.ProbableOwner)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected one service call, got %d", len(client.requests))
	}
	req := client.requests[0]
	if req.Temperature != 0.3 || req.MaxTokens != 1024 {
		t.Errorf("request params: temp=%v max=%d", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.User, "-33.8688") {
		t.Errorf("user prompt must embed the serialized signals:\n%s", req.User)
	}
}

func TestAnalyzeFencedResponse(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: "```json\n{\"confidence\": 60, \"summary\": \"ok\", \"recommendation\": \"manual_review\"}\n```"}
	got := testEngine(client).Analyze(context.Background(), sampleSignals())

	if got.Degraded || got.Confidence != 60 {
		t.Fatalf("fenced JSON must still parse: %+v", got)
	}
}

func TestAnalyzeDeterministicForSameInput(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{"confidence": 72, "summary": "ok", "recommendation": "manual_review"}`}
	engine := testEngine(client)

	first := engine.Analyze(context.Background(), sampleSignals())
	second := engine.Analyze(context.Background(), sampleSignals())

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated calls with identical input must agree:\n%+v\n%+v", first, second)
	}
	if len(client.requests) != 2 || client.requests[0].User != client.requests[1].User {
		t.Fatalf("identical signals must serialize to identical prompts")
	}
}

func TestAnalyzeFallbackShape(t *testing.T) {
	t.Parallel()

	// Every degraded path shares the fixed safe policy; exercise a few and
	// check both the policy and the distinguishing reason.
	cases := []struct {
		name       string
		response   string
		err        error
		wantReason string
	}{
		{
			name:       "malformed json",
			response:   "I think this content is probably authentic.",
			wantReason: "malformed response",
		},
		{
			name:       "missing field",
			response:   `{"confidence": 80, "summary": "ok"}`,
			wantReason: "missing required field: recommendation",
		},
		{
			name:       "confidence out of range",
			response:   `{"confidence": 150, "summary": "ok", "recommendation": "manual_review"}`,
			wantReason: "confidence must be integer 0-100, got: 150",
		},
		{
			name:       "confidence not numeric",
			response:   `{"confidence": "high", "summary": "ok", "recommendation": "manual_review"}`,
			wantReason: "confidence must be integer 0-100, got: high",
		},
		{
			name:       "unknown recommendation",
			response:   `{"confidence": 80, "summary": "ok", "recommendation": "maybe"}`,
			wantReason: `invalid recommendation "maybe"`,
		},
		{
			name:       "service error",
			err:        errors.New("connection refused"),
			wantReason: "reasoning service error: connection refused",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &fakeClient{response: tc.response, err: tc.err}
			got := testEngine(client).Analyze(context.Background(), sampleSignals())

			if !got.Degraded {
				t.Fatalf("expected degraded verdict, got %+v", got)
			}
			if got.Confidence != 50 || got.Recommendation != models.RecommendManualReview {
				t.Errorf("degraded policy violated: confidence=%d recommendation=%q", got.Confidence, got.Recommendation)
			}
			if got.DegradationReason != tc.wantReason {
				t.Errorf("reason: %q, want %q", got.DegradationReason, tc.wantReason)
			}
			if len(got.RedFlags) != 1 || !strings.Contains(got.RedFlags[0], tc.wantReason) {
				t.Errorf("red flags must carry the reason: %v", got.RedFlags)
			}
			if got.ProbableOwner.Username != "Unknown" {
				t.Errorf("degraded owner must be Unknown: %+v", got.ProbableOwner)
			}
		})
	}
}

func TestAnalyzeMissingAPIKeySkipsServiceCall(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{"confidence": 80, "summary": "ok", "recommendation": "manual_review"}`}
	engine := NewEngine(Config{APIKey: ""}, client)

	got := engine.Analyze(context.Background(), sampleSignals())

	if !got.Degraded || got.DegradationReason != "GEMINI_API_KEY not found in environment variables" {
		t.Fatalf("missing key must degrade before calling the service: %+v", got)
	}
	if len(client.requests) != 0 {
		t.Errorf("service must not be called without a usable key")
	}
}

func TestAnalyzePlaceholderAPIKey(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Config{APIKey: "your_gemini_api_key_here"}, &fakeClient{})
	got := engine.Analyze(context.Background(), sampleSignals())

	if !got.Degraded || got.DegradationReason != "GEMINI_API_KEY is still set to placeholder value" {
		t.Fatalf("placeholder key must degrade: %+v", got)
	}
}

func TestAnalyzeNilClient(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Config{APIKey: testAPIKey}, nil)
	got := engine.Analyze(context.Background(), sampleSignals())

	if !got.Degraded || got.DegradationReason != "reasoning client not configured" {
		t.Fatalf("nil client must degrade: %+v", got)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Config{APIKey: testAPIKey, Timeout: 20 * time.Millisecond}, slowClient{})
	got := engine.Analyze(context.Background(), sampleSignals())

	if !got.Degraded || got.DegradationReason != "reasoning service request timed out" {
		t.Fatalf("timeout must degrade with the timeout reason: %+v", got)
	}
}

func TestAnalyzeNonSerializableSignalsPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("non-serializable signal bundle must panic")
		}
	}()

	signals := sampleSignals()
	signals.Search = map[string]any{"bad": make(chan int)}
	testEngine(&fakeClient{}).Analyze(context.Background(), signals)
}

func TestCheckAPIKey(t *testing.T) {
	t.Parallel()

	if ok, _ := CheckAPIKey(testAPIKey); !ok {
		t.Errorf("valid-looking key rejected")
	}
	if ok, reason := CheckAPIKey("short"); ok || reason != "GEMINI_API_KEY appears invalid (too short)" {
		t.Errorf("short key: ok=%v reason=%q", ok, reason)
	}
}

func TestClassifyServiceErrorSubstrings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  string
		want string
	}{
		{"RESOURCE_EXHAUSTED: quota exceeded", "reasoning service rate limit exceeded - try again later"},
		{"request failed: UNAUTHENTICATED", "reasoning service authentication failed - check API key"},
		{"context deadline exceeded while dialing", "reasoning service request timed out"},
		{"some opaque failure", "reasoning service error: some opaque failure"},
	}
	for _, tc := range cases {
		if got := classifyServiceError(errors.New(tc.err)); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.err, got, tc.want)
		}
	}
}
