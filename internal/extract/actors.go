package extract

import "strings"

// actorAliases canonicalizes the names the model returns for the usual
// parties. Keys are lowercase; every canonical value is also present as its
// own key so normalization is idempotent.
var actorAliases = map[string]string{
	"goss":                      "Government of South Sudan",
	"government of south sudan": "Government of South Sudan",
	"south sudan government":    "Government of South Sudan",
	"splm/a-io":                 "SPLM-IO",
	"splm-io":                   "SPLM-IO",
	"spla-io":                   "SPLM-IO",
	"splm in opposition":        "SPLM-IO",
	"un refugee agency":         "UNHCR",
	"unhcr":                     "UNHCR",
	"rsf":                       "Rapid Support Forces",
	"rapid support forces":      "Rapid Support Forces",
	"saf":                       "Sudanese Armed Forces",
	"sudanese armed forces":     "Sudanese Armed Forces",
	"sudan armed forces":        "Sudanese Armed Forces",
	"unmiss":                    "UNMISS",
	"un mission in south sudan": "UNMISS",
	"wfp":                       "WFP",
	"world food programme":      "WFP",
	"ocha":                      "OCHA",
	"igad":                      "IGAD",
	"african union":             "African Union",
	"msf":                       "MSF",
	"doctors without borders":   "MSF",
	"unicef":                    "UNICEF",

	"sspdf":                               "SSPDF",
	"south sudan people's defence forces": "SSPDF",
}

// NormalizeActor maps one raw actor through the alias table. Unknown actors
// pass through trimmed but otherwise untouched.
func NormalizeActor(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if canonical, ok := actorAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// NormalizeActors maps every actor and deduplicates case-insensitively,
// preserving first occurrence.
func NormalizeActors(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, a := range raw {
		n := NormalizeActor(a)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// sourceTiers maps known source names to their tier. tier1: international
// wires and official outlets; tier2: established regional/local;
// everything else (community, aggregator) is tier3.
var sourceTiers = map[string]string{
	"UN News Africa":        "tier1",
	"ReliefWeb South Sudan": "tier1",
	"ReliefWeb Sudan":       "tier1",
	"Al Jazeera Africa":     "tier1",
	"BBC Africa":            "tier1",
	"Reuters":               "tier1",
	"Associated Press":      "tier1",
	"Sudan Tribune":         "tier2",
	"Radio Tamazuj":         "tier2",
	"Eye Radio":             "tier2",
	"Radio Dabanga":         "tier2",
	"The East African":      "tier2",
}

// DeriveSourceTier takes the highest tier present among a cluster's sources.
func DeriveSourceTier(sources []string) string {
	best := "tier3"
	for _, s := range sources {
		switch sourceTiers[s] {
		case "tier1":
			return "tier1"
		case "tier2":
			best = "tier2"
		}
	}
	return best
}
