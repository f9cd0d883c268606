package tiled

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileToScreen(t *testing.T) {
	cases := []struct {
		Tile   TileCoord
		Screen PixelCoord
	}{
		{TileCoord{X: 0, Y: 0}, PixelCoord{X: 0, Y: 0}},
		{TileCoord{X: 1, Y: 0}, PixelCoord{X: 32, Y: 16}},
		{TileCoord{X: 0, Y: 1}, PixelCoord{X: -32, Y: 16}},
		{TileCoord{X: 3, Y: 2}, PixelCoord{X: 32, Y: 80}},
		{TileCoord{X: -2, Y: -2}, PixelCoord{X: 0, Y: -64}},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.Screen, TileToScreen(tt.Tile, 64, 32))
	}
}

func TestScreenToTileInverse(t *testing.T) {
	for x := -5; x <= 5; x++ {
		for y := -5; y <= 5; y++ {
			tile := TileCoord{X: x, Y: y}
			screen := TileToScreen(tile, 64, 32)

			fx, fy := ScreenToTileF(screen, 64, 32)
			assert.InDelta(t, float64(x), fx, 1e-9)
			assert.InDelta(t, float64(y), fy, 1e-9)

			// just inside the diamond, below its top corner
			assert.Equal(t, tile, ScreenToTile(screen.Add(PixelCoord{Y: 1}), 64, 32))
		}
	}
}

func TestScreenToTileEdges(t *testing.T) {
	// the middle of tile (0,0) is half a tile below the top corner
	assert.Equal(t, TileCoord{X: 0, Y: 0}, ScreenToTile(PixelCoord{X: 0, Y: 16}, 64, 32))
	// left of tile (0,0)'s left corner is the right half of (-1,1)
	assert.Equal(t, TileCoord{X: -1, Y: 1}, ScreenToTile(PixelCoord{X: -33, Y: 16}, 64, 32))
	// above the top corner is the tile row before
	assert.Equal(t, TileCoord{X: -1, Y: -1}, ScreenToTile(PixelCoord{X: 0, Y: -1}, 64, 32))
}
