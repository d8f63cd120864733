package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVector() Vector {
	return Vector{
		PreviousQualification: 1,
		AgeAtEnrollment:       19,
		ScholarshipHolder:     0,
		Debtor:                1,
		TuitionFeesUpToDate:   0,
		FirstSemGrade:         8.5,
		SecondSemGrade:        7.8,
		GDP:                   2.7,
	}
}

func TestRowOrder(t *testing.T) {
	t.Parallel()

	row, err := Row(validVector())
	require.NoError(t, err)
	require.Len(t, row, Count)

	// Order must match the canonical list exactly.
	assert.Equal(t, []float64{1, 19, 0, 1, 0, 8.5, 7.8, 2.7}, row)
}

func TestRowMissingFeature(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		v := validVector()
		delete(v, name)

		_, err := Row(v)
		require.Error(t, err, "deleting %s must fail", name)

		var missing *MissingFeatureError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, name, missing.Name)
	}
}

func TestRowIgnoresExtraKeys(t *testing.T) {
	t.Parallel()

	v := validVector()
	v["unemployment_rate"] = 13.9

	row, err := Row(v)
	require.NoError(t, err)
	assert.Len(t, row, Count)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(validVector()))

	v := validVector()
	delete(v, Debtor)
	assert.Error(t, Validate(v))
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Debtor", DisplayName(Debtor))
	assert.Equal(t, "GDP", DisplayName(GDP))
	assert.Equal(t, "Tuition Fees Up To Date", DisplayName(TuitionFeesUpToDate))
	assert.Equal(t, "Curricular Units 1st Sem Grade", DisplayName(FirstSemGrade))
}

func TestIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Index(PreviousQualification))
	assert.Equal(t, 7, Index(GDP))
	assert.Equal(t, -1, Index("not_a_feature"))
}
