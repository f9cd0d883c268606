package tiled

import (
	"math"
)

// TileToScreen projects a tile onto the screen for an isometric (diamond)
// map. The result is the top corner of the tile's diamond relative to the
// map origin.
//
// This is for drawing & culling tiles. Isometric object positions are
// already pixel positions and never go through here.
func TileToScreen(t TileCoord, tileWidth, tileHeight int) PixelCoord {
	return PixelCoord{
		X: float64((t.X-t.Y)*tileWidth) / 2,
		Y: float64((t.X+t.Y)*tileHeight) / 2,
	}
}

// ScreenToTileF is the inverse of TileToScreen, keeping the fractional part.
func ScreenToTileF(p PixelCoord, tileWidth, tileHeight int) (x, y float64) {
	hw := float64(tileWidth) / 2
	hh := float64(tileHeight) / 2
	return (p.X/hw + p.Y/hh) / 2, (p.Y/hh - p.X/hw) / 2
}

// ScreenToTile returns the tile whose diamond contains `p`.
func ScreenToTile(p PixelCoord, tileWidth, tileHeight int) TileCoord {
	x, y := ScreenToTileF(p, tileWidth, tileHeight)
	return TileCoord{X: int(math.Floor(x)), Y: int(math.Floor(y))}
}
