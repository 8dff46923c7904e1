package synth

import (
	"context"
	"encoding/json"
	"fmt"

	"sourcetrace/models"
)

// analysisSystemPrompt carries the fixed scoring rubric transmitted with
// every analysis request: confidence bands, red-flag categories and the
// recommendation enum the response must use.
const analysisSystemPrompt = `You are a media verification expert analyzing user-generated content provenance.

Provide your analysis in this exact JSON format. Respond ONLY with valid JSON, no other text:
{
  "confidence": <0-100 integer>,
  "summary": "<2-3 sentence plain English explanation>",
  "red_flags": [<list of specific concerns, if any - can be empty array>],
  "recommendation": "<proceed_to_rights|manual_review|high_risk>",
  "reasoning": "<explanation of confidence score>",
  "probable_owner": {
    "username": "<if identifiable from signals, otherwise 'Unknown'>",
    "platform": "<if identifiable, otherwise 'Unknown'>",
    "confidence": <0-100 integer>,
    "contact_method": "<recommended contact approach>"
  }
}

Scoring guidance:
- 80-100: High confidence (content credentials present OR strong EXIF + no conflicts)
- 60-79: Medium confidence (good EXIF, some uncertainties)
- 40-59: Low confidence (missing data OR minor conflicts)
- 0-39: Very low confidence (significant red flags OR manipulated)

Red flags to check for:
- EXIF timestamp doesn't match claimed event timing
- Location data conflicts with known event location
- Evidence of editing software use after claimed capture
- Multiple earlier versions found suggesting repost
- No metadata at all (stripped, suggesting attempt to hide origin)
- Reverse search shows earlier instances (likely repost)

Recommendation:
- proceed_to_rights: High confidence, ready for licensing workflow
- manual_review: Medium confidence, human verification recommended
- high_risk: Low confidence, likely fake or manipulated`

var validRecommendations = map[string]bool{
	models.RecommendProceedToRights: true,
	models.RecommendManualReview:    true,
	models.RecommendHighRisk:        true,
}

var analysisSchema = responseSchema{
	required: []string{"confidence", "summary", "recommendation"},
	checks: []fieldCheck{
		func(data map[string]any) string {
			c, ok := numberField(data, "confidence")
			if !ok || c < 0 || c > 100 {
				return fmt.Sprintf("confidence must be integer 0-100, got: %v", data["confidence"])
			}
			return ""
		},
		func(data map[string]any) string {
			rec := stringField(data, "recommendation")
			if !validRecommendations[rec] {
				return fmt.Sprintf("invalid recommendation %q", rec)
			}
			return ""
		},
	},
}

// Engine fuses provenance signals into verdicts and drafts outreach
// messages. It is stateless between calls and safe for concurrent use; each
// invocation makes at most one outbound call to the reasoning service.
type Engine struct {
	cfg    Config
	client ReasoningClient
}

func NewEngine(cfg Config, client ReasoningClient) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = reasoningTimeout
	}
	return &Engine{cfg: cfg, client: client}
}

// Analyze fuses the three provenance signals into a confidence verdict.
// It never returns an error: every failure of the reasoning service or its
// output produces a degraded verdict with a fixed safe policy (confidence
// 50, manual review) and a reason describing what went wrong.
func (e *Engine) Analyze(ctx context.Context, signals models.FusedSignals) models.Verdict {
	if e.client == nil {
		return fallbackVerdict("reasoning client not configured")
	}
	if ok, reason := CheckAPIKey(e.cfg.APIKey); !ok {
		return fallbackVerdict(reason)
	}

	userPrompt := buildAnalysisPrompt(signals)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.client.Generate(callCtx, PromptRequest{
		System:      analysisSystemPrompt,
		User:        userPrompt,
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return fallbackVerdict(classifyServiceError(err))
	}

	data, reason := decodeResponse(raw, analysisSchema)
	if reason != "" {
		return fallbackVerdict(reason)
	}

	confidence, _ := numberField(data, "confidence")
	verdict := models.Verdict{
		Confidence:     int(confidence),
		Summary:        stringField(data, "summary"),
		RedFlags:       []string{},
		Recommendation: stringField(data, "recommendation"),
		Reasoning:      stringField(data, "reasoning"),
		ProbableOwner: models.ProbableOwner{
			Username:      "Unknown",
			Platform:      "Unknown",
			ContactMethod: "Manual investigation required",
		},
	}
	if flags := stringList(data, "red_flags"); flags != nil {
		verdict.RedFlags = flags
	}
	if owner, ok := data["probable_owner"].(map[string]any); ok {
		verdict.ProbableOwner.Username = stringField(owner, "username")
		verdict.ProbableOwner.Platform = stringField(owner, "platform")
		verdict.ProbableOwner.ContactMethod = stringField(owner, "contact_method")
		if c, ok := numberField(owner, "confidence"); ok && c >= 0 && c <= 100 {
			verdict.ProbableOwner.Confidence = int(c)
		}
	}
	return verdict
}

// buildAnalysisPrompt serializes the signal bundle into the user message.
// A non-serializable search signal is a caller contract violation and
// panics; there is no safe fallback for it.
func buildAnalysisPrompt(signals models.FusedSignals) string {
	credential := mustMarshal(signals.Credential)
	metadata := mustMarshal(signals.Metadata)
	search := mustMarshal(signals.Search)

	return fmt.Sprintf(`Analyze these provenance signals:

Content Credentials: %s
EXIF Metadata: %s
Reverse Image Search: %s

Provide your analysis as JSON.`, credential, metadata, search)
}

func mustMarshal(v any) string {
	if v == nil {
		return "{}"
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("signal bundle is not serializable: %v", err))
	}
	return string(out)
}

// fallbackVerdict is the fixed degraded policy: confidence pinned at 50,
// manual review, unknown owner. Downstream consumers treat every degraded
// verdict uniformly as "needs manual review".
func fallbackVerdict(reason string) models.Verdict {
	return models.Verdict{
		Confidence:     50,
		Summary:        "Unable to perform automated analysis. Manual review required.",
		RedFlags:       []string{"reasoning service unavailable: " + reason},
		Recommendation: models.RecommendManualReview,
		Reasoning:      "Automated synthesis failed: " + reason,
		ProbableOwner: models.ProbableOwner{
			Username:      "Unknown",
			Platform:      "Unknown",
			Confidence:    0,
			ContactMethod: "Manual investigation required",
		},
		Degraded:          true,
		DegradationReason: reason,
	}
}
