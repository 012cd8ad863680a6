package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeActorAliases(t *testing.T) {
	assert.Equal(t, "Rapid Support Forces", NormalizeActor("RSF"))
	assert.Equal(t, "Rapid Support Forces", NormalizeActor("rapid support forces"))
	assert.Equal(t, "Sudanese Armed Forces", NormalizeActor("SAF"))
	assert.Equal(t, "SPLM-IO", NormalizeActor("splm/a-io"))
	assert.Equal(t, "UNHCR", NormalizeActor("UN Refugee Agency"))
}

func TestNormalizeActorPassthrough(t *testing.T) {
	assert.Equal(t, "Murle youth", NormalizeActor("Murle youth"))
	assert.Equal(t, "", NormalizeActor("  "))
}

func TestNormalizeActorIdempotent(t *testing.T) {
	inputs := []string{"RSF", "saf", "GoSS", "unmiss", "WFP", "African Union", "Murle youth"}
	for _, in := range inputs {
		once := NormalizeActor(in)
		assert.Equal(t, once, NormalizeActor(once), "normalizing %q twice must be stable", in)
	}
}

func TestNormalizeActorsDedup(t *testing.T) {
	out := NormalizeActors([]string{"RSF", "Rapid Support Forces", "rsf", "SAF"})
	assert.Equal(t, []string{"Rapid Support Forces", "Sudanese Armed Forces"}, out)
}

func TestDeriveSourceTier(t *testing.T) {
	assert.Equal(t, "tier1", DeriveSourceTier([]string{"Eye Radio", "BBC Africa"}))
	assert.Equal(t, "tier2", DeriveSourceTier([]string{"Sudan Tribune"}))
	assert.Equal(t, "tier3", DeriveSourceTier([]string{"Google News Sudan"}))
}
