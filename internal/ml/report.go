package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ComparisonReport maps candidate name to its training outcome. It is
// written next to the artifacts as model_comparison.json.
type ComparisonReport map[string]CandidateStatus

func writeReport(r ComparisonReport, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("ml: encode comparison report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadReport reads a previously written comparison report.
func LoadReport(path string) (ComparisonReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r ComparisonReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ml: corrupt comparison report %s: %w", path, err)
	}
	return r, nil
}
