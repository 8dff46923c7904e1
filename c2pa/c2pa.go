package c2pa

import (
	"strings"

	"sourcetrace/models"
)

// Assertion labels that carry creator identity data. Two schema variants are
// in circulation; the first one found in document order wins.
var identityLabels = map[string]bool{
	"cawg.identity": true,
	"c2pa.identity": true,
}

// Assertion labels that carry the manifest's action log.
var actionLabels = map[string]bool{
	"c2pa.actions":    true,
	"c2pa.actions.v2": true,
}

const absentMessage = "no credential found"

// Resolve flattens a parsed content-credential manifest tree into a
// CredentialSummary. The tree's active_manifest field may be an inline
// object or a string key into the sibling manifests mapping; both forms are
// supported. A string key that is missing from the mapping is reported as
// CredentialUnresolvable, which is a distinct failure mode from the manifest
// simply being absent.
func Resolve(tree map[string]any) models.CredentialSummary {
	if len(tree) == 0 {
		return models.CredentialSummary{Status: models.CredentialAbsent, Reason: absentMessage}
	}

	raw, ok := tree["active_manifest"]
	if !ok || raw == nil {
		return models.CredentialSummary{Status: models.CredentialAbsent, Reason: absentMessage}
	}

	var active map[string]any
	switch v := raw.(type) {
	case string:
		manifests, _ := tree["manifests"].(map[string]any)
		target, found := manifests[v]
		if !found {
			return models.CredentialSummary{
				Status: models.CredentialUnresolvable,
				Reason: "dangling manifest reference: " + v,
			}
		}
		active, ok = target.(map[string]any)
		if !ok {
			return models.CredentialSummary{
				Status: models.CredentialUnresolvable,
				Reason: "manifest reference resolved to a non-object",
			}
		}
	case map[string]any:
		active = v
	default:
		return models.CredentialSummary{
			Status: models.CredentialUnresolvable,
			Reason: "active manifest is neither an object nor a reference",
		}
	}

	result := models.CredentialSummary{
		Status: models.CredentialPresent,
		Valid:  true,
	}

	if v, ok := active["claim_generator"].(string); ok {
		result.ClaimGenerator = v
	}
	if v, ok := active["title"].(string); ok {
		result.Title = v
	}

	assertions, _ := active["assertions"].([]any)
	labels := []string{}
	for _, a := range assertions {
		assertion, ok := a.(map[string]any)
		if !ok {
			continue
		}
		label, _ := assertion["label"].(string)
		labels = append(labels, label)

		if identityLabels[label] && result.Identity == nil {
			if data, ok := assertion["data"].(map[string]any); ok && len(data) > 0 {
				result.Identity = data
			}
		}

		if actionLabels[label] && result.CreatorTool == "" {
			result.CreatorTool = findCreatorTool(assertion)
		}
	}
	result.AssertionLabels = labels

	if sig, ok := active["signature_info"].(map[string]any); ok {
		if issuer, ok := sig["issuer"].(string); ok {
			result.SignerIssuer = issuer
		} else {
			result.SignerIssuer = "Unknown"
		}
		if t, ok := sig["time"].(string); ok {
			result.SignerTime = t
		}
	}

	if raw, ok := active["ingredients"].([]any); ok {
		for _, entry := range raw {
			ing, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			item := models.Ingredient{Title: "Unknown", Relationship: "Unknown"}
			if title, ok := ing["title"].(string); ok {
				item.Title = title
			}
			if rel, ok := ing["relationship"].(string); ok {
				item.Relationship = rel
			}
			result.Ingredients = append(result.Ingredients, item)
		}
	}

	if vs, ok := tree["validation_status"].(map[string]any); ok {
		if code, ok := vs["status_code"].(string); ok && code != "passed" {
			result.Valid = false
			if msg, ok := vs["status_message"].(string); ok && msg != "" {
				result.ValidationIssue = msg
			} else {
				result.ValidationIssue = "unknown issue"
			}
		}
	}

	return result
}

// findCreatorTool returns the softwareAgent of the first c2pa.created action
// in an actions assertion, or "" when none qualifies.
func findCreatorTool(assertion map[string]any) string {
	data, ok := assertion["data"].(map[string]any)
	if !ok {
		return ""
	}
	actions, ok := data["actions"].([]any)
	if !ok {
		return ""
	}
	for _, a := range actions {
		action, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := action["action"].(string); name != "c2pa.created" {
			continue
		}
		if agent, _ := action["softwareAgent"].(string); agent != "" {
			return agent
		}
	}
	return ""
}

// SummarizeDecodeError classifies a failure of the underlying manifest
// decode. "No credential embedded" is the overwhelmingly common case and
// maps to CredentialAbsent; only genuine decode failures (bad format,
// corrupt container) surface as CredentialError.
func SummarizeDecodeError(err error) models.CredentialSummary {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "manifest") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "jumbf") {
		return models.CredentialSummary{Status: models.CredentialAbsent, Reason: absentMessage}
	}
	return models.CredentialSummary{Status: models.CredentialError, Reason: err.Error()}
}
