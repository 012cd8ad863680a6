package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelevantStrongTitle(t *testing.T) {
	assert.True(t, Relevant("South Sudan peace talks resume in Addis", ""))
	assert.True(t, Relevant("UNMISS condemns attack on peacekeepers", ""))
	assert.True(t, Relevant("RSF shelling intensifies around the capital", ""))
	assert.True(t, Relevant("Hemedti signals openness to ceasefire", ""))
}

func TestRelevantSudanTitleNeedsSupportingBody(t *testing.T) {
	title := "Sudan aid convoy blocked for third week"

	assert.False(t, Relevant(title, "Officials gave no timeline for the convoy."))
	assert.True(t, Relevant(title,
		"Fighting near Khartoum has cut the road through Omdurman, aid workers said."))
}

func TestRelevantSupportingBodyThresholds(t *testing.T) {
	// South Sudan needs two supporting keywords in the body.
	assert.False(t, Relevant("Clashes displace thousands",
		"Violence flared in Jonglei state over the weekend."))
	assert.True(t, Relevant("Clashes displace thousands",
		"Violence in Jonglei forced families to flee toward Bor."))

	// Sudan-only coverage needs three.
	assert.False(t, Relevant("Army claims gains",
		"Shelling was reported in Nyala and El Fasher."))
	assert.True(t, Relevant("Army claims gains",
		"Shelling was reported in Nyala and El Fasher as Darfur fighting spread."))
}

func TestRelevantShortKeywordWordBoundary(t *testing.T) {
	// "saf" and "rsf" must not fire inside unrelated words.
	assert.False(t, Relevant("Safari tourism rebounds in Kenya",
		"Visitors returned to safari lodges in record numbers, a transfer of wealth to the coast."))
	assert.True(t, Relevant("Army statement",
		"The SAF accused the RSF of shelling residential areas in Omdurman."))
}

func TestRelevantRejectsOffTopic(t *testing.T) {
	assert.False(t, Relevant("Kenya election results announced", "Turnout was high in Nairobi."))
	assert.False(t, Relevant("", ""))
}
