package models

import (
	"encoding/json"
	"time"
)

// MetadataFields holds the canonical decoded capture metadata for one image.
// Pointer fields are nil when the corresponding tag was absent or undecodable.
type MetadataFields struct {
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
	Timestamp    *string  `json:"timestamp,omitempty"`
	GPSLatitude  *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude *float64 `json:"gps_longitude,omitempty"`
	LatitudeRef  string   `json:"gps_latitude_ref,omitempty"`
	LongitudeRef string   `json:"gps_longitude_ref,omitempty"`
	Software     *string  `json:"software,omitempty"`
	Orientation  *int     `json:"orientation,omitempty"`
	Flash        *bool    `json:"flash,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	FNumber      *float64 `json:"f_number,omitempty"`
	ExposureTime *string  `json:"exposure_time,omitempty"`
	HasMetadata  bool     `json:"has_metadata"`
}

// CredentialStatus discriminates the four outcomes of a content-credential check.
type CredentialStatus string

const (
	CredentialAbsent       CredentialStatus = "absent"
	CredentialPresent      CredentialStatus = "present"
	CredentialUnresolvable CredentialStatus = "unresolvable"
	CredentialError        CredentialStatus = "error"
)

// Ingredient records one entry of a manifest's edit ancestry.
type Ingredient struct {
	Title        string `json:"title"`
	Relationship string `json:"relationship"`
}

// CredentialSummary is the flattened result of resolving a content-credential
// manifest tree. Status selects the variant; the remaining fields are only
// meaningful when Status is CredentialPresent.
type CredentialSummary struct {
	Status          CredentialStatus `json:"status"`
	Reason          string           `json:"reason,omitempty"`
	Valid           bool             `json:"valid,omitempty"`
	ClaimGenerator  string           `json:"claim_generator,omitempty"`
	Title           string           `json:"title,omitempty"`
	AssertionLabels []string         `json:"assertions,omitempty"`
	SignerIssuer    string           `json:"signer_issuer,omitempty"`
	SignerTime      string           `json:"signer_time,omitempty"`
	CreatorTool     string           `json:"creator,omitempty"`
	Identity        map[string]any   `json:"identity,omitempty"`
	Ingredients     []Ingredient     `json:"ingredients,omitempty"`
	ValidationIssue string           `json:"validation_issue,omitempty"`
}

// FusedSignals is the input envelope to the decision engine: one observation
// per source. Search is consumed opaquely and serialized verbatim.
type FusedSignals struct {
	Credential CredentialSummary `json:"c2pa"`
	Metadata   MetadataFields    `json:"exif"`
	Search     any               `json:"reverse_search"`
}

// Recommendation values the decision engine may return.
const (
	RecommendProceedToRights = "proceed_to_rights"
	RecommendManualReview    = "manual_review"
	RecommendHighRisk        = "high_risk"
)

// ProbableOwner is the engine's best guess at who owns the content.
type ProbableOwner struct {
	Username      string `json:"username"`
	Platform      string `json:"platform"`
	Confidence    int    `json:"confidence"`
	ContactMethod string `json:"contact_method"`
}

// Verdict is the provenance confidence decision for one analysis request.
// Degraded is true when the verdict was synthesized locally because the
// reasoning service was unusable or returned an invalid structure; a
// degraded verdict always carries Confidence 50 and RecommendManualReview.
type Verdict struct {
	Confidence        int           `json:"confidence"`
	Summary           string        `json:"summary"`
	RedFlags          []string      `json:"red_flags"`
	Recommendation    string        `json:"recommendation"`
	Reasoning         string        `json:"reasoning"`
	ProbableOwner     ProbableOwner `json:"probable_owner"`
	Degraded          bool          `json:"degraded"`
	DegradationReason string        `json:"degradation_reason,omitempty"`
}

// OwnerInfo identifies the probable content owner for outreach drafting.
type OwnerInfo struct {
	Username string `json:"username"`
	Platform string `json:"platform"`
}

// LicenseParams carries the four licensing parameters of an outreach request.
type LicenseParams struct {
	UseCase      string `json:"use_case"`
	Scope        string `json:"scope"`
	Territory    string `json:"territory"`
	Compensation string `json:"compensation"`
}

// OutreachDraft is the drafting engine's output.
type OutreachDraft struct {
	Message           string   `json:"outreach_message"`
	LicenseSummary    string   `json:"license_summary"`
	NextSteps         []string `json:"next_steps"`
	Degraded          bool     `json:"degraded"`
	DegradationReason string   `json:"degradation_reason,omitempty"`
}

// Analysis represents a stored provenance verdict with the signals it was fused from
type Analysis struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Source         string          `json:"source,omitempty"`
	Confidence     int             `json:"confidence"`
	Recommendation string          `json:"recommendation"`
	Degraded       bool            `json:"degraded"`
	Verdict        json.RawMessage `json:"verdict"` // Store as JSON
	Signals        json.RawMessage `json:"signals,omitempty"`
	LatencyMs      float64         `json:"latencyMs"`
}
