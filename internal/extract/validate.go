package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

var (
	validEventTypes = map[string]struct{}{
		"security": {}, "political": {}, "economic": {},
		"humanitarian": {}, "infrastructure": {}, "legal": {},
	}
	validScopes = map[string]struct{}{
		"local": {}, "state": {}, "national": {}, "cross_border": {},
	}
	validVerifications = map[string]struct{}{
		"confirmed": {}, "reported": {}, "unverified": {},
	}
)

// Extraction is the validated, normalized model output for one cluster.
type Extraction struct {
	Summary            string
	Country            string
	Regions            []string
	EventType          string
	EventSubtype       string
	Severity           int
	Scope              string
	VerificationStatus string
	Confidence         float64
	Actors             []string
	Rationale          string
}

// ParsePayload strips an optional ```json fence and decodes the object.
func ParsePayload(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return payload, nil
}

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getStringList(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// Validate applies the schema rules to a parsed payload.
//
// Hard errors reject the extraction outright. Soft errors only quarantine
// when paired with low confidence; otherwise the extraction is accepted and
// the soft flags dropped. Normalization (severity rounding, scope and
// verification defaults) happens here too, so a nil hard list means the
// returned Extraction is ready to persist.
func Validate(payload map[string]any) (*Extraction, []string, []string) {
	var hard, soft []string
	ex := &Extraction{}

	ex.Summary, _ = getString(payload, "summary")
	ex.Rationale, _ = getString(payload, "rationale")
	ex.EventSubtype, _ = getString(payload, "eventSubtype")
	ex.EventSubtype = strings.ToLower(strings.TrimSpace(ex.EventSubtype))

	country, ok := getString(payload, "country")
	if !ok || strings.TrimSpace(country) == "" {
		hard = append(hard, "missing country")
	}
	ex.Country = strings.TrimSpace(country)

	eventType, _ := getString(payload, "eventType")
	if _, valid := validEventTypes[eventType]; !valid {
		hard = append(hard, fmt.Sprintf("invalid eventType: %q", eventType))
	}
	ex.EventType = eventType

	if v, ok := payload["severity"]; !ok || v == nil {
		hard = append(hard, "missing severity")
	} else if n, isNum := v.(float64); !isNum {
		hard = append(hard, "severity is not a number")
	} else {
		rounded := int(math.Round(n))
		if rounded < 1 || rounded > 5 {
			hard = append(hard, fmt.Sprintf("severity out of range: %v", n))
		}
		// Clamp as well; harmless when in range.
		if rounded < 1 {
			rounded = 1
		}
		if rounded > 5 {
			rounded = 5
		}
		ex.Severity = rounded
	}

	// scope: invalid value rejects; absent defaults to local.
	if v, present := payload["scope"]; present && v != nil {
		scope, isStr := v.(string)
		if _, valid := validScopes[scope]; !isStr || !valid {
			hard = append(hard, fmt.Sprintf("invalid scope: %v", v))
		}
		ex.Scope = scope
	} else {
		ex.Scope = "local"
	}

	// verificationStatus: same contract as scope, default reported.
	if v, present := payload["verificationStatus"]; present && v != nil {
		verif, isStr := v.(string)
		if _, valid := validVerifications[verif]; !isStr || !valid {
			hard = append(hard, fmt.Sprintf("invalid verificationStatus: %v", v))
		}
		ex.VerificationStatus = verif
	} else {
		ex.VerificationStatus = "reported"
	}

	// confidence: out-of-range rejects; absent defaults to 0.5.
	ex.Confidence = 0.5
	if v, present := payload["confidence"]; present && v != nil {
		if n, isNum := v.(float64); !isNum {
			hard = append(hard, "confidence is not a number")
		} else if n < 0 || n > 1 {
			hard = append(hard, fmt.Sprintf("confidence out of range: %v", n))
		} else {
			ex.Confidence = n
		}
	}

	ex.Regions = getStringList(payload, "regions")
	if len(ex.Regions) == 0 {
		soft = append(soft, "missing regions")
	}
	if ex.Confidence < 0.3 {
		soft = append(soft, fmt.Sprintf("low confidence: %.2f", ex.Confidence))
	}

	ex.Actors = getStringList(payload, "actors")
	return ex, hard, soft
}

// ShouldQuarantine applies the soft-error rule: soft flags only sideline
// the extraction when confidence is also below 0.3.
func ShouldQuarantine(ex *Extraction, soft []string) bool {
	return len(soft) > 0 && ex.Confidence < 0.3
}
