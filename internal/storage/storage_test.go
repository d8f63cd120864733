package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurisk/internal/features"
	"edurisk/internal/risk"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(studentID string, score float64, ts time.Time) Record {
	return Record{
		StudentID:          studentID,
		Timestamp:          ts,
		Features:           features.Vector{features.GDP: 1.0},
		RiskScore:          score,
		RiskCategory:       risk.Categorize(score, risk.Default),
		DropoutProbability: score / 100,
		Confidence:         0.9,
		ModelName:          "random_forest",
	}
}

func TestPutAssignsIdentity(t *testing.T) {
	s := openStore(t)

	stored, err := s.Put(sampleRecord("s-1", 45, time.Time{}))
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
}

func TestPutRejectsMissingStudent(t *testing.T) {
	s := openStore(t)
	_, err := s.Put(Record{RiskScore: 10})
	assert.Error(t, err)
}

func TestByStudentOrderedOldestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Put(sampleRecord("s-2", float64(10*i), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := s.Put(sampleRecord("other", 99, base))
	require.NoError(t, err)

	records, err := s.ByStudent("s-2")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0.0, records[0].RiskScore)
	assert.Equal(t, 20.0, records[2].RiskScore)
	for _, r := range records {
		assert.Equal(t, "s-2", r.StudentID)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.Put(sampleRecord("s-3", float64(i), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	records, err := s.Recent(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 4.0, records[0].RiskScore)
	assert.Equal(t, 2.0, records[2].RiskScore)

	none, err := s.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordRoundTripKeepsExplanation(t *testing.T) {
	s := openStore(t)

	r := sampleRecord("s-4", 72.5, time.Now().UTC())
	stored, err := s.Put(r)
	require.NoError(t, err)

	records, err := s.ByStudent("s-4")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, stored.ID, records[0].ID)
	assert.Equal(t, risk.High, records[0].RiskCategory)
	assert.Equal(t, 1.0, records[0].Features[features.GDP])
}
