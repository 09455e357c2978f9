package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/apperror"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
	off    light = "off"
)

func newLights() *Table[light] {
	return NewTable("traffic light", map[light][]light{
		red:    {green, off},
		green:  {yellow, off},
		yellow: {red, off},
	})
}

func TestTable_Edges(t *testing.T) {
	tbl := newLights()

	assert.True(t, tbl.Can(red, green))
	assert.False(t, tbl.Can(red, yellow))
	assert.False(t, tbl.Can(off, red))
	assert.True(t, tbl.IsTerminal(off))
	assert.False(t, tbl.IsTerminal(red))
	assert.True(t, tbl.Valid(off))
	assert.False(t, tbl.Valid(light("blue")))
	assert.Equal(t, []light{off, yellow}, tbl.Targets(green))
}

func TestTable_CheckReturnsTransitionError(t *testing.T) {
	tbl := newLights()

	require.NoError(t, tbl.Check(yellow, red))

	err := tbl.Check(red, yellow)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)
	assert.Equal(t, "red", appErr.Details["from"])
	assert.Equal(t, "yellow", appErr.Details["to"])
}
