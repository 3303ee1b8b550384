package telegram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcal/internal/models"
)

func resources(n int) []models.Resource {
	out := make([]models.Resource, n)
	for i := range out {
		out[i] = models.Resource{ID: fmt.Sprintf("r%d", i+1), Name: fmt.Sprintf("Item %d", i+1), RatePerDayCents: 1250}
	}
	return out
}

func TestResourcePicker(t *testing.T) {
	list := resources(10)

	first := ResourcePicker("Pick a resource", list, 0, "menu")
	assert.Equal(t, 2, first.Pages)
	// 8 resources, nav row, menu row.
	require.Len(t, first.Keyboard.InlineKeyboard, 10)
	assert.Equal(t, "res:r1", *first.Keyboard.InlineKeyboard[0][0].CallbackData)
	nav := first.Keyboard.InlineKeyboard[8]
	require.Len(t, nav, 1)
	assert.Equal(t, "respage:1", *nav[0].CallbackData)
	assert.Contains(t, first.Text, "Page 1 of 2")
	assert.Contains(t, first.Text, "12.50 per day")

	second := ResourcePicker("Pick a resource", list, 1, "")
	require.Len(t, second.Keyboard.InlineKeyboard, 3)
	assert.Equal(t, "9. Item 9", second.Keyboard.InlineKeyboard[0][0].Text)
	assert.Equal(t, "respage:0", *second.Keyboard.InlineKeyboard[2][0].CallbackData)

	clamped := ResourcePicker("x", list, 7, "")
	assert.Equal(t, 1, clamped.Page)

	empty := ResourcePicker("x", nil, 0, "")
	assert.Equal(t, 1, empty.Pages)
	assert.Empty(t, empty.Keyboard.InlineKeyboard)
}

func TestParsePickerCallbacks(t *testing.T) {
	id, ok := ParseResourceCallback("res:drill")
	require.True(t, ok)
	assert.Equal(t, "drill", id)

	_, ok = ParseResourceCallback("res:")
	assert.False(t, ok)

	n, ok := ParsePageCallback("respage:3")
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = ParsePageCallback("respage:-1")
	assert.False(t, ok)
	_, ok = ParsePageCallback("date:2024-03-01")
	assert.False(t, ok)
}
