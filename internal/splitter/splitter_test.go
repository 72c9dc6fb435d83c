package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_LeaveOneRunOut(t *testing.T) {
	runs := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	folds, err := Split(runs, 1)
	require.NoError(t, err)
	require.Len(t, folds, 9)

	seen := map[int]int{}
	for i, fold := range folds {
		assert.Len(t, fold.Test, 1, "fold %d", i)
		assert.Len(t, fold.Train, 8, "fold %d", i)
		for _, r := range fold.Test {
			seen[r]++
		}
		for _, r := range fold.Train {
			assert.NotContains(t, fold.Test, r, "fold %d: train and test overlap", i)
		}
	}
	for _, r := range runs {
		assert.Equal(t, 1, seen[r], "run %d must be held out exactly once", r)
	}

	assert.Equal(t, []int{1}, folds[0].Test)
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9}, folds[0].Train)
	assert.Equal(t, []int{5}, folds[4].Test)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9}, folds[4].Train)
}

func TestSplit_GroupsOfTwoWithRemainder(t *testing.T) {
	runs := []int{1, 2, 3, 4, 5}
	folds, err := Split(runs, 2)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	assert.Equal(t, []int{1, 2}, folds[0].Test)
	assert.Equal(t, []int{3, 4, 5}, folds[0].Train)
	assert.Equal(t, []int{3, 4}, folds[1].Test)
	assert.Equal(t, []int{1, 2, 5}, folds[1].Train)
	assert.Equal(t, []int{5}, folds[2].Test, "trailing fold keeps the remainder")
	assert.Equal(t, []int{1, 2, 3, 4}, folds[2].Train)
}

func TestSplit_Validation(t *testing.T) {
	_, err := Split([]int{1, 2, 3}, 0)
	assert.Error(t, err)

	_, err = Split([]int{1}, 1)
	assert.Error(t, err)

	_, err = Split([]int{1, 2, 3}, 3)
	assert.Error(t, err)
}
