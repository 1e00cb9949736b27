package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	b := DefaultBounds()
	require.NoError(t, b.Validate())
	assert.Equal(t, 490, b.MaxX())
	assert.Equal(t, 490, b.MaxY())

	assert.ErrorIs(t, Bounds{Width: 10, Height: 500, Size: 10}.Validate(), ErrInvalidBounds)
	assert.ErrorIs(t, Bounds{Width: 500, Height: 500, Size: 0}.Validate(), ErrInvalidBounds)
}

func TestSpriteContains(t *testing.T) {
	b := DefaultBounds()
	assert.True(t, Sprite{X: 0, Y: 0}.Contains(b))
	assert.True(t, Sprite{X: 490, Y: 490}.Contains(b))
	assert.False(t, Sprite{X: -1, Y: 0}.Contains(b))
	assert.False(t, Sprite{X: 0, Y: 491}.Contains(b))
}

func TestColorJSON(t *testing.T) {
	s := Sprite{ID: 7, X: 1, Y: 2, DX: -3, DY: 4, Color: ColorGreen}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"x":1,"y":2,"dx":-3,"dy":4,"color":"green"}`, string(data))

	var got Sprite
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s, got)

	require.Error(t, json.Unmarshal([]byte(`{"color":"purple"}`), &got))
}

func TestColorRGB(t *testing.T) {
	want := map[Color][3]uint8{
		ColorRed:   {255, 0, 0},
		ColorBlue:  {0, 0, 255},
		ColorGreen: {0, 255, 0},
	}
	for _, c := range Palette {
		r, g, b := c.RGB()
		assert.Equal(t, want[c], [3]uint8{r, g, b}, c.String())
	}
	assert.Equal(t, ColorRed, Palette[0])
	assert.False(t, Color(9).Valid())
}
