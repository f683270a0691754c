package filterstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"killrelay/pkg/models"
)

type seedFile struct {
	FilterSets []models.FilterSet `yaml:"filter_sets"`
}

// LoadSeed reads filter sets from a YAML document of the form
//
//	filter_sets:
//	  - id: jita-watch
//	    guild_id: 1
//	    target_ids: [10]
//	    include_npc: false
//	    filters:
//	      - system:30000142
func LoadSeed(path string) ([]models.FilterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]models.FilterSet, error) {
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, set := range doc.FilterSets {
		if set.ID == "" {
			return nil, fmt.Errorf("seed filter set %d has no id", i)
		}
	}
	return doc.FilterSets, nil
}
