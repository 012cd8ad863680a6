package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]any {
	return map[string]any{
		"summary":            "RSF shelling killed dozens in El Fasher.",
		"country":            "Sudan",
		"regions":            []any{"North Darfur"},
		"eventType":          "security",
		"eventSubtype":       "shelling",
		"severity":           float64(4),
		"scope":              "state",
		"verificationStatus": "reported",
		"confidence":         0.8,
		"actors":             []any{"RSF", "SAF"},
		"rationale":          "Two independent outlets report the same toll.",
	}
}

func TestParsePayloadStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"country\": \"Sudan\"}\n```"
	payload, err := ParsePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sudan", payload["country"])

	_, err = ParsePayload("the model rambled instead of answering")
	assert.Error(t, err)
}

func TestValidateAcceptsCleanPayload(t *testing.T) {
	ex, hard, soft := Validate(validPayload())
	assert.Empty(t, hard)
	assert.Empty(t, soft)
	assert.Equal(t, "Sudan", ex.Country)
	assert.Equal(t, 4, ex.Severity)
	assert.Equal(t, "shelling", ex.EventSubtype)
}

func TestValidateMissingCountryIsOnlyReason(t *testing.T) {
	payload := validPayload()
	delete(payload, "country")
	delete(payload, "confidence")

	ex, hard, soft := Validate(payload)
	assert.Equal(t, []string{"missing country"}, hard)
	assert.Empty(t, soft)
	assert.Equal(t, 0.5, ex.Confidence)
}

func TestValidateSeverity(t *testing.T) {
	payload := validPayload()
	payload["severity"] = 4.6
	ex, hard, _ := Validate(payload)
	assert.Empty(t, hard)
	assert.Equal(t, 5, ex.Severity)

	payload["severity"] = float64(0)
	_, hard, _ = Validate(payload)
	require.Len(t, hard, 1)
	assert.Contains(t, hard[0], "severity out of range")

	payload["severity"] = "high"
	_, hard, _ = Validate(payload)
	require.Len(t, hard, 1)
	assert.Contains(t, hard[0], "not a number")

	delete(payload, "severity")
	_, hard, _ = Validate(payload)
	assert.Contains(t, hard, "missing severity")
}

func TestValidateInvalidEventType(t *testing.T) {
	payload := validPayload()
	payload["eventType"] = "sports"
	_, hard, _ := Validate(payload)
	require.Len(t, hard, 1)
	assert.Contains(t, hard[0], "invalid eventType")
}

func TestValidateScopeAndVerificationDefaults(t *testing.T) {
	payload := validPayload()
	delete(payload, "scope")
	delete(payload, "verificationStatus")

	ex, hard, _ := Validate(payload)
	assert.Empty(t, hard)
	assert.Equal(t, "local", ex.Scope)
	assert.Equal(t, "reported", ex.VerificationStatus)

	// Present but invalid is a rejection, not a default.
	payload["scope"] = "galactic"
	_, hard, _ = Validate(payload)
	require.Len(t, hard, 1)
	assert.Contains(t, hard[0], "invalid scope")
}

func TestValidateConfidenceRange(t *testing.T) {
	payload := validPayload()
	payload["confidence"] = 1.4
	_, hard, _ := Validate(payload)
	require.Len(t, hard, 1)
	assert.Contains(t, hard[0], "confidence out of range")
}

func TestSoftErrorsOnlyQuarantineWithLowConfidence(t *testing.T) {
	payload := validPayload()
	payload["regions"] = []any{}

	ex, hard, soft := Validate(payload)
	assert.Empty(t, hard)
	assert.Equal(t, []string{"missing regions"}, soft)
	assert.False(t, ShouldQuarantine(ex, soft), "high confidence keeps the event")

	payload["confidence"] = 0.2
	ex, hard, soft = Validate(payload)
	assert.Empty(t, hard)
	assert.Len(t, soft, 2)
	assert.True(t, ShouldQuarantine(ex, soft))
}
