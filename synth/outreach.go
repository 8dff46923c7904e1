package synth

import (
	"context"
	"fmt"

	"sourcetrace/models"
)

const outreachSystemPrompt = `Generate a professional outreach message for UGC licensing.

You will receive owner information and licensing parameters. Generate:
1. A friendly but professional outreach message (150 words max)
2. A brief license summary explaining terms in plain language
3. Next steps for the journalist

Format as JSON:
{
  "outreach_message": "<message text>",
  "license_summary": "<plain language summary>",
  "next_steps": ["<step 1>", "<step 2>", "<step 3>"]
}

Tone: Professional, respectful, clear about intent and compensation.
The message should:
- Address the creator respectfully
- Clearly state intent to license content
- Mention the use case
- Reference compensation
- Request written confirmation
- Be friendly but professional`

var outreachSchema = responseSchema{
	required: []string{"outreach_message", "license_summary", "next_steps"},
	checks: []fieldCheck{
		func(data map[string]any) string {
			if _, ok := data["next_steps"].([]any); !ok {
				return "next_steps must be a list"
			}
			if len(stringList(data, "next_steps")) == 0 {
				return "next_steps must not be empty"
			}
			return ""
		},
	},
}

// DraftOutreach generates a rights-clearance outreach draft for the given
// owner and license parameters. Control flow mirrors Analyze: one bounded
// reasoning-service call, then validate or fall back to a deterministic
// templated draft. Never returns an error.
func (e *Engine) DraftOutreach(ctx context.Context, owner models.OwnerInfo, lic models.LicenseParams) models.OutreachDraft {
	if e.client == nil {
		return fallbackDraft(owner, lic, "reasoning client not configured")
	}
	if ok, reason := CheckAPIKey(e.cfg.APIKey); !ok {
		return fallbackDraft(owner, lic, reason)
	}

	userPrompt := fmt.Sprintf(`Owner: %s on %s
Use case: %s
Scope: %s
Territory: %s
Compensation: %s

Generate the outreach message and license summary.`,
		owner.Username, owner.Platform,
		lic.UseCase, lic.Scope, lic.Territory, lic.Compensation)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.client.Generate(callCtx, PromptRequest{
		System:      outreachSystemPrompt,
		User:        userPrompt,
		Temperature: 0.5,
		MaxTokens:   800,
	})
	if err != nil {
		return fallbackDraft(owner, lic, classifyServiceError(err))
	}

	data, reason := decodeResponse(raw, outreachSchema)
	if reason != "" {
		return fallbackDraft(owner, lic, reason)
	}

	return models.OutreachDraft{
		Message:        stringField(data, "outreach_message"),
		LicenseSummary: stringField(data, "license_summary"),
		NextSteps:      stringList(data, "next_steps"),
	}
}

// fallbackDraft synthesizes a templated outreach draft embedding the owner
// identity and license parameters verbatim. The next-steps list is fixed
// and never empty.
func fallbackDraft(owner models.OwnerInfo, lic models.LicenseParams, reason string) models.OutreachDraft {
	username := owner.Username
	if username == "" {
		username = "content creator"
	}
	platform := owner.Platform
	if platform == "" {
		platform = "their platform"
	}

	return models.OutreachDraft{
		Message: fmt.Sprintf(
			"Hi %s, We'd like to license your content for %s. Compensation: %s. Please contact us to discuss licensing terms.",
			username, lic.UseCase, lic.Compensation),
		LicenseSummary: fmt.Sprintf(
			"Standard licensing terms for %s. Territory: %s. Scope: %s.",
			lic.UseCase, lic.Territory, lic.Scope),
		NextSteps: []string{
			fmt.Sprintf("Contact %s via %s", username, platform),
			"Negotiate licensing terms and compensation",
			"Obtain written permission before use",
		},
		Degraded:          true,
		DegradationReason: reason,
	}
}
