package classifier

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

type keywordTable struct {
	Cuisines []cuisineKeywords `yaml:"cuisines"`
}

type cuisineKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

func loadKeywordTable() (*keywordTable, error) {
	var t keywordTable
	if err := yaml.Unmarshal(keywordsYAML, &t); err != nil {
		return nil, eris.Wrap(err, "classifier: parse keyword table")
	}
	if len(t.Cuisines) == 0 {
		return nil, eris.New("classifier: keyword table is empty")
	}
	return &t, nil
}

// deduce scores each cuisine by the total length of its keywords found in
// the lowercased name. Longer keywords weigh more, so "nasi lemak" beats an
// incidental "cafe" substring. Empty result means no keyword matched.
func (t *keywordTable) deduce(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)

	best := ""
	bestScore := 0
	for _, c := range t.Cuisines {
		score := 0
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				score += len(kw)
			}
		}
		// Strict greater keeps the earlier cuisine on ties.
		if score > bestScore {
			best = c.Name
			bestScore = score
		}
	}
	return best
}
