package scoring

import (
	"sort"
	"strings"

	"github.com/okian/scout/internal/domain/model"
)

// disciplineKeywords maps a discipline tag to the words that suggest it.
// Keywords are matched as whole folded words or phrases.
var disciplineKeywords = map[string][]string{
	"weaving":    {"weaver", "weavers", "weaving", "banig", "loom"},
	"music":      {"band", "dj", "singer", "songwriter", "music", "musician", "producer", "rapper", "ep", "album"},
	"visual":     {"art", "artist", "exhibit", "exhibition", "gallery", "painter", "painting", "photographer", "photography", "illustrator", "muralist", "sculptor"},
	"activist":   {"decolonize", "decolonization", "activist", "advocate", "organizer", "organiser", "mutual aid"},
	"craft":      {"craft", "crafts", "handmade", "jewelry", "jewellery", "pottery", "ceramics", "carver", "carving", "artisan"},
	"culinary":   {"chef", "cook", "culinary", "baker", "kitchen", "dinner", "food truck", "pop up dinner"},
	"performing": {"dancer", "dance", "choreographer", "theatre", "theater", "actor", "actress", "performer", "spoken word"},
}

// themeKeywords maps a theme tag to the words that suggest it.
var themeKeywords = map[string][]string{
	"decolonization":        {"decolonize", "decolonization", "self determination"},
	"weaving":               {"weaving", "banig"},
	"sinahi":                {"sinahi"},
	"community_wellness":    {"mutual aid", "community health", "wellness", "community care"},
	"food_security":         {"food security", "food sovereignty", "farming", "farmers"},
	"sustainability":        {"climate justice", "climate", "sustainability", "sustainable", "conservation"},
	"cultural_preservation": {"cultural preservation", "heritage", "language revitalization", "chamoru", "chamorro", "tradition"},
}

// DetectDisciplines returns the discipline tags suggested by text, sorted.
func DetectDisciplines(text string) []string {
	return detect(disciplineKeywords, text)
}

// DetectThemes returns the theme tags suggested by text, sorted.
func DetectThemes(text string) []string {
	return detect(themeKeywords, text)
}

// Tag adds the disciplines and themes detected in the descriptive fields of
// a to its tag lists. Tags a source already set are kept.
func Tag(a model.Attributes) model.Attributes {
	text := strings.Join(append([]string{a.Name, a.Affiliation, a.Bio}, a.Discipline...), " ")
	out := a.Clone()
	out.Discipline = addTags(out.Discipline, DetectDisciplines(text))
	out.Themes = addTags(out.Themes, DetectThemes(text))
	return out
}

func detect(keywords map[string][]string, text string) []string {
	folded := " " + Fold(text) + " "
	var tags []string
	for tag, words := range keywords {
		for _, w := range words {
			if strings.Contains(folded, " "+w+" ") {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

func addTags(have, found []string) []string {
	seen := make(map[string]struct{}, len(have))
	for _, t := range have {
		seen[strings.ToLower(t)] = struct{}{}
	}
	out := have
	for _, t := range found {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
