package scoring

import (
	"github.com/okian/scout/internal/domain/model"
)

// Blocking key prefixes.
const (
	KeyName            = "n:"
	KeyNameAffiliation = "na:"
	KeyIdentifier      = "id:"
)

// BlockingKeys derives the coarse keys that restrict comparison to a
// bounded candidate set: the last name token, the last name token with the
// affiliation, and every hard identifier. Keys are sorted and unique.
func BlockingKeys(a model.Attributes) []string {
	var keys []string
	if toks := Tokens(a.Name); len(toks) > 0 {
		last := toks[len(toks)-1]
		keys = append(keys, KeyName+last)
		if aff := Fold(a.Affiliation); aff != "" {
			keys = append(keys, KeyNameAffiliation+last+"|"+aff)
		}
	}
	for _, id := range a.Identifiers() {
		keys = append(keys, KeyIdentifier+id)
	}
	return keys
}
