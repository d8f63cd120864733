package dataset

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"edurisk/internal/features"
)

// DefaultBackgroundSize bounds the reference sample used by the
// model-agnostic explainer. Larger samples buy accuracy at the cost of
// per-request latency.
const DefaultBackgroundSize = 50

// SampleBackground draws a deterministic subsample of training rows for
// the explainer's background distribution.
func SampleBackground(rows [][]float64, size int, seed int64) [][]float64 {
	if size <= 0 {
		size = DefaultBackgroundSize
	}
	if len(rows) <= size {
		out := make([][]float64, len(rows))
		copy(out, rows)
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(rows))

	out := make([][]float64, 0, size)
	for _, idx := range perm[:size] {
		out = append(out, rows[idx])
	}
	return out
}

// WriteBackground persists the reference sample as a CSV with the
// canonical header, written atomically (temp file + rename) so a
// concurrently running predictor never observes a partial file.
func WriteBackground(path string, rows [][]float64) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(features.Names()); err != nil {
		f.Close()
		return fmt.Errorf("dataset: write header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("dataset: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// ReadBackground loads a previously written reference sample. The header
// must match the feature contract column for column.
func ReadBackground(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open background %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read background: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset: background %s is empty", path)
	}

	for i, name := range features.Names() {
		if i >= len(records[0]) || records[0][i] != name {
			return nil, fmt.Errorf("dataset: background header drifted from feature contract at column %d", i)
		}
	}

	rows := make([][]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != features.Count {
			return nil, fmt.Errorf("dataset: background row has %d columns, want %d", len(record), features.Count)
		}
		row := make([]float64, features.Count)
		for i, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: background cell %q: %w", cell, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BackgroundPath is the conventional location of the reference sample
// inside a model registry directory.
func BackgroundPath(modelDir string) string {
	return filepath.Join(modelDir, "background.csv")
}
