package tiled

// TileCoord is a position in tile space: integer tile indices.
//
// TileCoord and PixelCoord don't convert into each other. The only bridge is
// the isometric projection in iso.go, which is for tile rendering & culling.
type TileCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns t + o
func (t TileCoord) Add(o TileCoord) TileCoord {
	return TileCoord{X: t.X + o.X, Y: t.Y + o.Y}
}

// PixelCoord is a position (or offset) in pixel space.
type PixelCoord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + o
func (p PixelCoord) Add(o PixelCoord) PixelCoord {
	return PixelCoord{X: p.X + o.X, Y: p.Y + o.Y}
}
