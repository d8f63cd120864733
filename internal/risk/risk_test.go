package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  Category
	}{
		{0, Low},
		{12.34, Low},
		{29.99, Low},
		{30.00, Medium}, // exact cutoff belongs to the higher category
		{45, Medium},
		{59.99, Medium},
		{60.00, High},
		{87.5, High},
		{100, High},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.score, Default), "score %.2f", tc.score)
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	t.Parallel()

	first := Categorize(59.999, Default)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Categorize(59.999, Default))
	}
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default.Validate())
	assert.Error(t, Thresholds{Low: 60, High: 30}.Validate())
	assert.Error(t, Thresholds{Low: 30, High: 30}.Validate())
	assert.Error(t, Thresholds{Low: -1, High: 60}.Validate())
	assert.Error(t, Thresholds{Low: 30, High: 101}.Validate())
}
