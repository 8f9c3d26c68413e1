package retention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOffsets(t *testing.T) {
	offsets, err := ParseOffsets("1,7,30")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7, 30}, offsets)

	// Whitespace and empty segments are tolerated
	offsets, err = ParseOffsets(" 1, 7 ,30,")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7, 30}, offsets)

	_, err = ParseOffsets("1,seven,30")
	assert.Error(t, err)

	_, err = ParseOffsets("")
	assert.Error(t, err)
}

func TestValidateOffsets(t *testing.T) {
	assert.NoError(t, ValidateOffsets([]int{1}))
	assert.NoError(t, ValidateOffsets([]int{1, 7, 30}))

	// Empty
	assert.Error(t, ValidateOffsets(nil))

	// Zero and negative offsets
	assert.Error(t, ValidateOffsets([]int{0, 7}))
	assert.Error(t, ValidateOffsets([]int{-1, 7}))

	// Not strictly increasing
	assert.Error(t, ValidateOffsets([]int{7, 1}))
	assert.Error(t, ValidateOffsets([]int{1, 7, 7}))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "day_1_retention", ColumnName(1))
	assert.Equal(t, "day_30_retention", ColumnName(30))
}

func TestOffsetsFlagValue(t *testing.T) {
	var o Offsets
	require.NoError(t, o.Set("1,7,30"))
	assert.Equal(t, Offsets([]int{1, 7, 30}), o)
	assert.Equal(t, "1,7,30", o.String())
	assert.Equal(t, "offsets", o.Type())

	// Invalid input leaves the value untouched
	assert.Error(t, o.Set("30,7"))
	assert.Equal(t, "1,7,30", o.String())
}
