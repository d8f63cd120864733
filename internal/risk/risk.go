// Package risk maps a numeric dropout-risk score onto a discrete category.
// It is the single threshold table in the codebase; the predictor, the
// scoring service and any alert-level mapping all call into here.
package risk

import "fmt"

// Category is a discrete risk level shown to counsellors.
type Category string

const (
	Low    Category = "Low"
	Medium Category = "Medium"
	High   Category = "High"
)

// Thresholds holds the two cutoffs of the category table. Scores are in
// [0,100]. The comparison convention is strict less-than: a score exactly
// at a cutoff belongs to the higher category.
type Thresholds struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// Default is the canonical table: 0-30 Low, 30-60 Medium, 60-100 High.
var Default = Thresholds{Low: 30, High: 60}

// Validate rejects tables that are out of order or outside [0,100].
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 100 || t.Low >= t.High {
		return fmt.Errorf("invalid risk thresholds: low=%.2f high=%.2f", t.Low, t.High)
	}
	return nil
}

// Categorize converts a risk score into a category. Pure function, no
// state: re-running on the same score always yields the same category.
func Categorize(score float64, t Thresholds) Category {
	switch {
	case score < t.Low:
		return Low
	case score < t.High:
		return Medium
	default:
		return High
	}
}
