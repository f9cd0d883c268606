package tiled

// Placements is something we can read converted tiles back out of; either
// a LevelDefinition in memory or a LevelStore on disk.
type Placements interface {
	// TilesIn returns placements on z-layer `z` in the inclusive tile
	// rectangle min -> max
	TilesIn(z int, min, max TileCoord) ([]TilePlacement, error)

	// ZLevels returns all z-orders holding at least one tile sorted low -> high
	ZLevels() ([]int, error)
}

var (
	_ Placements = (*LevelDefinition)(nil)
	_ Placements = (*LevelStore)(nil)
)
