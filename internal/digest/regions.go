package digest

import "strings"

// containment maps a child region to its ancestors, direct parent first.
// Keys and values are lowercase. Unknown regions have no ancestors and only
// overlap on equality.
var containment = map[string][]string{
	// Sudan
	"el fasher":      {"north darfur", "darfur"},
	"nyala":          {"south darfur", "darfur"},
	"el geneina":     {"west darfur", "darfur"},
	"zalingei":       {"central darfur", "darfur"},
	"ed daein":       {"east darfur", "darfur"},
	"north darfur":   {"darfur"},
	"south darfur":   {"darfur"},
	"east darfur":    {"darfur"},
	"west darfur":    {"darfur"},
	"central darfur": {"darfur"},
	"el obeid":       {"north kordofan", "kordofan"},
	"kadugli":        {"south kordofan", "kordofan"},
	"north kordofan": {"kordofan"},
	"south kordofan": {"kordofan"},
	"west kordofan":  {"kordofan"},
	"wad madani":     {"gezira"},
	"port sudan":     {"red sea"},
	"omdurman":       {"khartoum"},
	"khartoum north": {"khartoum"},

	// South Sudan
	"juba":    {"central equatoria"},
	"yei":     {"central equatoria"},
	"torit":   {"eastern equatoria"},
	"yambio":  {"western equatoria"},
	"malakal": {"upper nile"},
	"renk":    {"upper nile"},
	"bentiu":  {"unity"},
	"bor":     {"jonglei"},
	"pibor":   {"jonglei"},
	"wau":     {"western bahr el ghazal"},
	"aweil":   {"northern bahr el ghazal"},
	"rumbek":  {"lakes"},
	"kuajok":  {"warrap"},
}

func ancestors(region string) []string {
	return containment[strings.ToLower(strings.TrimSpace(region))]
}

func sameRegion(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func inList(needle string, list []string) bool {
	for _, item := range list {
		if strings.EqualFold(needle, item) {
			return true
		}
	}
	return false
}

// RegionsOverlap is the fuzzy overlap over the containment hierarchy: two
// lists overlap when any pair is equal, one contains the other, or they
// share an ancestor. Empty lists overlap with anything. Symmetric and
// reflexive by construction.
func RegionsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, ra := range a {
		ancA := ancestors(ra)
		for _, rb := range b {
			if sameRegion(ra, rb) {
				return true
			}
			ancB := ancestors(rb)
			if inList(strings.ToLower(strings.TrimSpace(rb)), ancA) {
				return true
			}
			if inList(strings.ToLower(strings.TrimSpace(ra)), ancB) {
				return true
			}
			for _, x := range ancA {
				if inList(x, ancB) {
					return true
				}
			}
		}
	}
	return false
}

// displayName title-cases a region for rendering.
func displayName(region string) string {
	words := strings.Fields(strings.TrimSpace(region))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}

// CollapseRegions prepares a region list for display: a child together with
// its direct parent renders as "Parent (Child)" with the standalone parent
// dropped, and any broader ancestor of a present child is dropped entirely.
func CollapseRegions(regions []string) []string {
	seen := make(map[string]struct{}, len(regions))
	var distinct []string
	for _, r := range regions {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		distinct = append(distinct, strings.TrimSpace(r))
	}

	present := func(name string) bool {
		_, ok := seen[strings.ToLower(name)]
		return ok
	}
	isAncestorOfAny := func(name string) bool {
		lower := strings.ToLower(name)
		for _, other := range distinct {
			if strings.EqualFold(other, name) {
				continue
			}
			if inList(lower, ancestors(other)) {
				return true
			}
		}
		return false
	}

	var out []string
	for _, r := range distinct {
		if isAncestorOfAny(r) {
			continue
		}
		if anc := ancestors(r); len(anc) > 0 && present(anc[0]) {
			out = append(out, displayName(anc[0])+" ("+displayName(r)+")")
			continue
		}
		out = append(out, displayName(r))
	}
	return out
}
