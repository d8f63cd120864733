// Package dataset loads and prepares the labeled dropout dataset for
// training. It normalizes raw column names, binarizes the target and
// produces a stratified, reproducible train/test split.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"edurisk/internal/features"
)

// DefaultSeed fixes the split so training runs are reproducible.
const DefaultSeed = 42

// DefaultTestFraction is the held-out share of the dataset.
const DefaultTestFraction = 0.2

var (
	// ErrTargetMissing is returned when no target column survives
	// normalization.
	ErrTargetMissing = errors.New("dataset: target column not found")

	// ErrStratification is returned when a class has fewer than two
	// members, making a stratified split impossible.
	ErrStratification = errors.New("dataset: class with fewer than 2 members, cannot stratify")
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeColumn cleans a raw CSV header into the canonical
// lowercase-underscore form ("Curricular units 1st sem (grade)" ->
// "curricular_units_1st_sem_grade").
func NormalizeColumn(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	return nonAlnum.ReplaceAllString(s, "")
}

// Split holds the prepared train/test partitions. Feature rows follow the
// canonical column order of the feature contract.
type Split struct {
	TrainX [][]float64
	TestX  [][]float64
	TrainY []int
	TestY  []int
}

// Load reads the CSV at path, normalizes column names, binarizes the
// target (DropoutLabel -> 1, everything else -> 0) and returns feature
// rows in contract order plus labels. Missing numeric cells are imputed
// with the column mean. Read-only; no shared state is touched.
func Load(path string) ([][]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("dataset: %s has no data rows", path)
	}

	header := make([]string, len(records[0]))
	for i, raw := range records[0] {
		header[i] = NormalizeColumn(raw)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}

	targetIdx, ok := colIdx[features.TargetColumn]
	if !ok {
		return nil, nil, ErrTargetMissing
	}

	featureIdx := make([]int, 0, features.Count)
	for _, name := range features.Names() {
		idx, ok := colIdx[name]
		if !ok {
			return nil, nil, fmt.Errorf("dataset: feature column %q not found after normalization", name)
		}
		featureIdx = append(featureIdx, idx)
	}

	rows := make([][]float64, 0, len(records)-1)
	labels := make([]int, 0, len(records)-1)
	missing := make([][]int, 0) // (row, col) pairs to impute
	skipped := 0

	for rowNum, record := range records[1:] {
		if len(record) <= targetIdx {
			skipped++ // row too short to carry a label
			continue
		}

		row := make([]float64, features.Count)
		for j, idx := range featureIdx {
			if idx >= len(record) || strings.TrimSpace(record[idx]) == "" {
				missing = append(missing, []int{len(rows), j})
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("dataset: row %d column %q: %w", rowNum+2, features.Names()[j], err)
			}
			row[j] = v
		}

		label := 0
		if strings.TrimSpace(record[targetIdx]) == features.DropoutLabel {
			label = 1
		}

		rows = append(rows, row)
		labels = append(labels, label)
	}

	imputeMeans(rows, missing)

	log.Info().
		Str("path", path).
		Int("rows", len(rows)).
		Int("skipped_rows", skipped).
		Int("imputed_cells", len(missing)).
		Msg("dataset loaded")

	return rows, labels, nil
}

// imputeMeans fills the recorded missing cells with per-column means
// computed over the present values.
func imputeMeans(rows [][]float64, missing [][]int) {
	if len(missing) == 0 || len(rows) == 0 {
		return
	}

	missingSet := make(map[[2]int]bool, len(missing))
	for _, m := range missing {
		missingSet[[2]int{m[0], m[1]}] = true
	}

	for j := 0; j < features.Count; j++ {
		sum, n := 0.0, 0
		for i := range rows {
			if !missingSet[[2]int{i, j}] {
				sum += rows[i][j]
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for i := range rows {
			if missingSet[[2]int{i, j}] {
				rows[i][j] = mean
			}
		}
	}
}

// StratifiedSplit partitions rows/labels into train and test sets keeping
// the class proportions of the full dataset. The seed fixes the shuffle so
// repeated runs produce identical splits.
func StratifiedSplit(rows [][]float64, labels []int, testFraction float64, seed int64) (*Split, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("dataset: %d rows but %d labels", len(rows), len(labels))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("dataset: test fraction %.2f out of (0,1)", testFraction)
	}

	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	for class, idxs := range byClass {
		if len(idxs) < 2 {
			return nil, fmt.Errorf("%w (class %d has %d)", ErrStratification, class, len(idxs))
		}
	}

	rng := rand.New(rand.NewSource(seed))
	split := &Split{}

	// Deterministic class order: 0 then 1.
	for _, class := range []int{0, 1} {
		idxs, ok := byClass[class]
		if !ok {
			continue
		}
		rng.Shuffle(len(idxs), func(i, j int) { idxs[i], idxs[j] = idxs[j], idxs[i] })

		nTest := int(float64(len(idxs)) * testFraction)
		if nTest < 1 {
			nTest = 1
		}
		for k, idx := range idxs {
			if k < nTest {
				split.TestX = append(split.TestX, rows[idx])
				split.TestY = append(split.TestY, labels[idx])
			} else {
				split.TrainX = append(split.TrainX, rows[idx])
				split.TrainY = append(split.TrainY, labels[idx])
			}
		}
	}

	return split, nil
}

// LoadAndSplit is the full pipeline: load, clean, binarize, split.
func LoadAndSplit(path string, testFraction float64, seed int64) (*Split, error) {
	rows, labels, err := Load(path)
	if err != nil {
		return nil, err
	}

	split, err := StratifiedSplit(rows, labels, testFraction, seed)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("train", len(split.TrainX)).
		Int("test", len(split.TestX)).
		Msg("dataset split")

	return split, nil
}
