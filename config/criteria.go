package config

import (
	"fmt"
	"log"
	"os"

	"innovation-review-api/models"

	"gopkg.in/yaml.v3"
)

type criteriaFile struct {
	Criteria models.CriteriaCatalog `yaml:"criteria"`
}

// LoadCriteria reads the scoring schema from a YAML file such as:
//
//	criteria:
//	  - id: novelty
//	    label: Novelty
//	    min: 0
//	    max: 10
//
// An empty path selects the built-in catalog.
func LoadCriteria(path string) (models.CriteriaCatalog, error) {
	if path == "" {
		return models.DefaultCriteria(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Criteria file %s not found, using built-in criteria", path)
			return models.DefaultCriteria(), nil
		}
		return nil, fmt.Errorf("read criteria file: %w", err)
	}

	var parsed criteriaFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse criteria file: %w", err)
	}
	if err := parsed.Criteria.Validate(); err != nil {
		return nil, fmt.Errorf("invalid criteria file: %w", err)
	}
	return parsed.Criteria, nil
}
