// Package features defines the canonical feature contract shared by the
// trainer, the predictor and the explainers. Every component that builds a
// feature row or interprets model output goes through this package; a vector
// that violates the contract is rejected before any model is invoked.
package features

import (
	"fmt"
	"strings"
)

// Canonical feature names, in the exact order the models are trained on.
// The order must never drift between training and inference.
const (
	PreviousQualification = "previous_qualification"
	AgeAtEnrollment       = "age_at_enrollment"
	ScholarshipHolder     = "scholarship_holder"
	Debtor                = "debtor"
	TuitionFeesUpToDate   = "tuition_fees_up_to_date"
	FirstSemGrade         = "curricular_units_1st_sem_grade"
	SecondSemGrade        = "curricular_units_2nd_sem_grade"
	GDP                   = "gdp"
)

// TargetColumn is the label column in the training dataset.
// Convention: 1 = dropout, 0 = graduate/enrolled.
const TargetColumn = "target"

// DropoutLabel is the raw target value that maps to class 1.
const DropoutLabel = "Dropout"

// Names returns the ordered canonical feature list. Callers get a fresh
// slice; the contract itself is immutable.
func Names() []string {
	return []string{
		PreviousQualification,
		AgeAtEnrollment,
		ScholarshipHolder,
		Debtor,
		TuitionFeesUpToDate,
		FirstSemGrade,
		SecondSemGrade,
		GDP,
	}
}

// Count is the number of canonical features.
const Count = 8

// Vector is a named feature map as received from the web layer. Boolean
// features are expected as 0/1 before they reach this package.
type Vector map[string]float64

// MissingFeatureError identifies which canonical feature was absent.
type MissingFeatureError struct {
	Name string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required feature %q", e.Name)
}

// Row converts a Vector into the ordered slice the models consume.
// Every canonical feature must be present; extra keys are ignored.
func Row(v Vector) ([]float64, error) {
	row := make([]float64, 0, Count)
	for _, name := range Names() {
		value, ok := v[name]
		if !ok {
			return nil, &MissingFeatureError{Name: name}
		}
		row = append(row, value)
	}
	return row, nil
}

// Validate checks the vector against the contract without building a row.
func Validate(v Vector) error {
	for _, name := range Names() {
		if _, ok := v[name]; !ok {
			return &MissingFeatureError{Name: name}
		}
	}
	return nil
}

// DimensionError reports a row whose length violates the contract.
func DimensionError(got int) error {
	return fmt.Errorf("feature row has %d values, want %d", got, Count)
}

// DisplayName converts a canonical feature name into the human-readable
// form shown to counsellors ("tuition_fees_up_to_date" -> "Tuition Fees Up
// To Date").
func DisplayName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		switch {
		case p == "":
		case p == "gdp":
			parts[i] = "GDP"
		case p == "1st" || p == "2nd":
			// ordinal suffixes stay lowercase
		default:
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// Index returns the position of a canonical feature in the ordered row,
// or -1 if the name is not part of the contract.
func Index(name string) int {
	for i, n := range Names() {
		if n == name {
			return i
		}
	}
	return -1
}
