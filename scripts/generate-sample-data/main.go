// Command generate_sample_data writes a synthetic student dataset for
// local development and demos. The generated population has a plausible
// correlation structure: low semester grades, unpaid tuition and debt
// raise the dropout rate. Column headers use the raw institutional form
// so the loader's normalization is exercised end to end.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	var (
		outPath  = flag.String("out", "data/students.csv", "Output CSV path")
		students = flag.Int("students", 2000, "Number of students to generate")
		seed     = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating sample dataset...\n")
	fmt.Printf("  Students: %d\n", *students)
	fmt.Printf("  Output:   %s\n", *outPath)

	if err := generate(*outPath, *students, *seed); err != nil {
		log.Fatalf("Failed to generate dataset: %v", err)
	}

	fmt.Printf("Done: wrote %d students to %s\n", *students, *outPath)
}

func generate(path string, n int, seed int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Raw institutional headers, before normalization.
	header := []string{
		"Previous qualification",
		"Age at enrollment",
		"Scholarship holder",
		"Debtor",
		"Tuition fees up to date",
		"Curricular units 1st sem (grade)",
		"Curricular units 2nd sem (grade)",
		"GDP",
		"Target",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	dropouts := 0

	for i := 0; i < n; i++ {
		prevQual := float64(1 + rng.Intn(17))
		age := 17 + rng.ExpFloat64()*6
		if age > 60 {
			age = 60
		}
		scholarship := bernoulli(rng, 0.25)
		debtor := bernoulli(rng, 0.11)
		tuitionPaid := bernoulli(rng, 0.88)

		// Grades on the 0-20 scale, correlated between semesters.
		grade1 := clamp(rng.NormFloat64()*3+11.5, 0, 20)
		grade2 := clamp(grade1+rng.NormFloat64()*2, 0, 20)
		gdp := rng.NormFloat64() * 2.3

		// Dropout propensity driven by the risk factors.
		logit := -1.8
		logit += (10 - grade1) * 0.18
		logit += (10 - grade2) * 0.22
		logit += debtor * 0.9
		logit += (1 - tuitionPaid) * 1.4
		logit -= scholarship * 0.6
		logit += (age - 20) * 0.03

		target := "Graduate"
		if rng.Float64() < sigmoid(logit) {
			target = "Dropout"
			dropouts++
		}

		record := []string{
			formatFloat(prevQual),
			formatFloat(float64(int(age))),
			formatFloat(scholarship),
			formatFloat(debtor),
			formatFloat(tuitionPaid),
			formatFloat(round2(grade1)),
			formatFloat(round2(grade2)),
			formatFloat(round2(gdp)),
			target,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	fmt.Printf("  Dropout rate: %.1f%%\n", 100*float64(dropouts)/float64(n))
	return nil
}

func bernoulli(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
