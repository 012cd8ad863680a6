package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionsOverlap(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want bool
	}{
		{"equal", []string{"Khartoum"}, []string{"khartoum"}, true},
		{"child and parent", []string{"El Fasher"}, []string{"North Darfur"}, true},
		{"child and grandparent", []string{"El Fasher"}, []string{"Darfur"}, true},
		{"shared ancestor", []string{"El Fasher"}, []string{"Nyala"}, true},
		{"unrelated states", []string{"Juba"}, []string{"Malakal"}, false},
		{"cross country", []string{"North Darfur"}, []string{"Jonglei"}, false},
		{"empty overlaps anything", nil, []string{"Khartoum"}, true},
		{"both empty", nil, nil, true},
		{"unknown equal", []string{"Kapoeta"}, []string{"kapoeta"}, true},
		{"unknown distinct", []string{"Kapoeta"}, []string{"Nimule"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RegionsOverlap(tc.a, tc.b))
			assert.Equal(t, tc.want, RegionsOverlap(tc.b, tc.a), "overlap must be symmetric")
		})
	}
}

func TestCollapseRegions(t *testing.T) {
	// Child with its direct parent collapses to "Parent (Child)".
	assert.Equal(t, []string{"North Darfur (El Fasher)"},
		CollapseRegions([]string{"El Fasher", "North Darfur"}))

	// Broader ancestors of a present child disappear entirely.
	assert.Equal(t, []string{"El Fasher"},
		CollapseRegions([]string{"El Fasher", "Darfur"}))

	// Unrelated regions pass through title-cased and deduplicated.
	assert.Equal(t, []string{"Khartoum", "Jonglei"},
		CollapseRegions([]string{"khartoum", "Khartoum", "jonglei"}))

	assert.Empty(t, CollapseRegions([]string{"", "  "}))
}

func TestCleanRationale(t *testing.T) {
	assert.Equal(t, "Two independent outlets report the same toll.",
		CleanRationale("  Two independent outlets report the same toll. "))

	for _, verbose := range []string{
		"The severity reflects the scale of displacement.",
		"This is rated 4 because of mass casualties.",
		"Rated as severe due to the death toll.",
		"Severity 5: national-scale crisis.",
		"An attack on a hospital, which is a grave violation.",
	} {
		assert.Empty(t, CleanRationale(verbose), "should strip: %s", verbose)
	}
}
