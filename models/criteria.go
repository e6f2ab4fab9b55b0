package models

import (
	"fmt"
	"math"
	"sort"
)

// Criterion is one scored dimension of an evaluation.
type Criterion struct {
	ID    string  `yaml:"id" json:"id"`
	Label string  `yaml:"label" json:"label"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

// CriteriaCatalog is the fixed scoring schema every review must follow.
type CriteriaCatalog []Criterion

func DefaultCriteria() CriteriaCatalog {
	return CriteriaCatalog{
		{ID: "novelty", Label: "Novelty", Min: 0, Max: 10},
		{ID: "feasibility", Label: "Feasibility", Min: 0, Max: 10},
		{ID: "impact", Label: "Impact", Min: 0, Max: 10},
		{ID: "presentation", Label: "Presentation", Min: 0, Max: 10},
	}
}

func (c CriteriaCatalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, cr := range c {
		ids = append(ids, cr.ID)
	}
	return ids
}

// ValidateScores returns field errors keyed by criterion id. Every criterion must be scored,
// no unknown criterion is accepted, and each value must lie within the criterion bounds.
func (c CriteriaCatalog) ValidateScores(scores map[string]float64) map[string]string {
	problems := map[string]string{}
	known := make(map[string]Criterion, len(c))
	for _, cr := range c {
		known[cr.ID] = cr
		v, ok := scores[cr.ID]
		switch {
		case !ok:
			problems[cr.ID] = "score is required"
		case math.IsNaN(v) || math.IsInf(v, 0):
			problems[cr.ID] = "score must be a finite number"
		case v < cr.Min || v > cr.Max:
			problems[cr.ID] = fmt.Sprintf("score must be between %g and %g", cr.Min, cr.Max)
		}
	}

	unknown := make([]string, 0)
	for id := range scores {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		problems[id] = "unknown criterion"
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

// Validate checks the catalog itself.
func (c CriteriaCatalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("criteria catalog is empty")
	}
	seen := map[string]bool{}
	for _, cr := range c {
		if cr.ID == "" {
			return fmt.Errorf("criterion without id")
		}
		if seen[cr.ID] {
			return fmt.Errorf("duplicate criterion %q", cr.ID)
		}
		seen[cr.ID] = true
		if cr.Max <= cr.Min {
			return fmt.Errorf("criterion %q has max <= min", cr.ID)
		}
	}
	return nil
}
