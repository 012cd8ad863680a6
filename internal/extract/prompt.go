package extract

import (
	"fmt"
	"strings"

	"github.com/okello/hornwatch/internal/cluster"
)

// PromptVersion is stamped on every event and quarantine record so old
// extractions can be filtered out of aggregations after prompt changes.
const PromptVersion = "v3"

const systemPrompt = `You are a conflict-event analyst covering South Sudan and Sudan.
Given one news story (possibly reported by several outlets), produce a single JSON object
describing the event. Respond with JSON only: no markdown, no code fences, no prose.

The object must have exactly these fields:
  summary            one factual sentence, max 40 words
  country            "South Sudan" or "Sudan" (or another country if the event is cross-border)
  regions            list of standard admin-area names where the event happened
  eventType          one of: security, political, economic, humanitarian, infrastructure, legal
  eventSubtype       short lowercase slug, e.g. "airstrike", "cabinet reshuffle", "cholera outbreak"
  severity           integer 1-5:
                       1 routine development, no direct harm
                       2 notable incident, limited local impact
                       3 serious incident, casualties or major disruption
                       4 severe incident, mass casualties or state-level disruption
                       5 critical incident, national-scale crisis or mass atrocity
  scope              one of: local, state, national, cross_border
  verificationStatus one of: confirmed (multiple independent outlets or official confirmation),
                     reported (single credible outlet), unverified (social media or unclear sourcing)
  confidence         number 0.0-1.0, your confidence in this structured reading
  actors             list of organizations or forces involved, as named in the coverage
  rationale          one short sentence on evidence quality, not a restatement of severity

South Sudan admin regions: Central Equatoria, Eastern Equatoria, Western Equatoria,
Jonglei, Unity, Upper Nile, Lakes, Warrap, Northern Bahr el Ghazal, Western Bahr el Ghazal, Abyei.
Sudan admin regions: Khartoum, North Darfur, South Darfur, East Darfur, West Darfur,
Central Darfur, North Kordofan, South Kordofan, West Kordofan, Blue Nile, White Nile,
Gezira, Sennar, Kassala, Gedaref, Red Sea, River Nile, Northern.
Use city names only in addition to their admin region when the coverage is city-specific.`

// BuildUserPrompt renders one cluster as the extraction input.
func BuildUserPrompt(c *cluster.Cluster) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Story covered by %d source(s).\n\n", c.SourceCount)
	for i, a := range c.Articles {
		fmt.Fprintf(&b, "Article %d [%s, %s]\nTitle: %s\n", i+1, a.Source, a.PublishedAt.Format("2006-01-02"), a.Title)
		if a.Description != "" {
			fmt.Fprintf(&b, "Excerpt: %s\n", a.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Produce the JSON event object for this story.")
	return b.String()
}
