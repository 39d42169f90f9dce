package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileRule is one entry of a rule seed file.
type fileRule struct {
	PostID  string `yaml:"post_id"`
	Keyword string `yaml:"keyword"`
	Reply   string `yaml:"reply"`
}

type ruleFile struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadFile seeds the store with rules from a YAML file. Entries are added in
// file order so first-match-wins ordering follows the file. Returns the
// number of rules added.
func LoadFile(path, accountID string, store Store) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parsing rules file: %w", err)
	}

	added := 0
	for i, fr := range f.Rules {
		if _, err := store.Add(accountID, fr.PostID, fr.Keyword, fr.Reply); err != nil {
			return added, fmt.Errorf("rules file entry %d: %w", i, err)
		}
		added++
	}
	return added, nil
}
