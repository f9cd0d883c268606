package tiled

import (
	"fmt"
	"sort"
)

// LevelDefinition is the result of converting a TiledMap: everything a
// renderer, entity spawner or collision system needs to build a level.
//
// A LevelDefinition shares nothing with the map it was built from.
type LevelDefinition struct {
	Orientation Orientation `json:"orientation"`
	RenderOrder RenderOrder `json:"renderorder"`
	TileWidth   int         `json:"tilewidth"`
	TileHeight  int         `json:"tileheight"`

	// FlipY reports whether entity positions were mirrored against
	// MapPixelHeight
	FlipY          bool    `json:"flipy"`
	MapPixelHeight float64 `json:"mappixelheight"`

	TileLayers      []*TileLayerPlacement `json:"tilelayers"`
	Entities        []*EntityPlacement    `json:"entities"`
	ParallaxLayers  []*ParallaxLayer      `json:"parallaxlayers"`
	CollisionLayers []string              `json:"collisionlayers"`
	Properties      *Properties           `json:"properties"`

	// Warnings are problems that didn't stop the conversion.
	Warnings []Warning `json:"warnings"`
}

// TileLayerPlacement is a converted tile layer
type TileLayerPlacement struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	ZOrder     int             `json:"z"`
	Offset     PixelCoord      `json:"offset"`
	Opacity    float64         `json:"opacity"`
	Visible    bool            `json:"visible"`
	Properties *Properties     `json:"properties"`
	Tiles      []TilePlacement `json:"tiles"`
}

// TilePlacement is a single non empty tile.
// World is in tile space; turning it into a screen position (and depth) is
// up to the renderer.
type TilePlacement struct {
	World   TileCoord `json:"world"`
	ZOrder  int       `json:"z"`
	GID     uint32    `json:"gid"`     // without flip flags
	LocalID uint32    `json:"localid"` // tile index within it's tileset
	Tileset int       `json:"tileset"` // index into the map's tilesets

	// Offset is the tileset's drawing offset in pixels
	Offset PixelCoord `json:"offset"`
	Flip   Flip       `json:"flip"`
}

// EntityPlacement describes an object to instantiate.
// Entities with types missing from the placeholder mapping are still
// included (Unmapped is set) so a stand in can be created for them.
type EntityPlacement struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
	Unmapped    bool   `json:"unmapped"`

	Layer     string `json:"layer"`
	ZOrder    int    `json:"z"`
	Collision bool   `json:"collision"`

	// Position is the final pixel position
	Position PixelCoord `json:"position"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Rotation float64    `json:"rotation"`
	Visible  bool       `json:"visible"`
	Shape    Shape      `json:"shape"`

	// Points of polygons / polylines relative to Position
	Points []PixelCoord `json:"points,omitempty"`
	Text   *Text        `json:"text,omitempty"`

	// tile objects only, Tileset is -1 otherwise
	GID     uint32 `json:"gid,omitempty"`
	Tileset int    `json:"tileset"`
	Flip    Flip   `json:"flip"`

	Properties *Properties `json:"properties"`
}

// ParallaxLayer is a converted image layer
type ParallaxLayer struct {
	Name      string     `json:"name"`
	Image     string     `json:"image"`
	ZOrder    int        `json:"z"`
	Offset    PixelCoord `json:"offset"`
	ParallaxX float64    `json:"parallaxx"`
	ParallaxY float64    `json:"parallaxy"`
	RepeatX   bool       `json:"repeatx"`
	RepeatY   bool       `json:"repeaty"`
	Opacity   float64    `json:"opacity"`
	Visible   bool       `json:"visible"`
}

// WarningKind says what a Warning is about
type WarningKind string

const (
	// WarnUnresolvedGID is a tile or object gid that no tileset claims
	WarnUnresolvedGID WarningKind = "unresolved-gid"
)

// Warning is a non fatal conversion problem
type Warning struct {
	Kind  WarningKind `json:"kind"`
	Layer string      `json:"layer"`
	GID   uint32      `json:"gid"`

	// one of
	Tile   *TileCoord `json:"tile,omitempty"`
	Object int        `json:"object,omitempty"`
}

func (w Warning) String() string {
	switch {
	case w.Tile != nil:
		return fmt.Sprintf("%s: layer %q gid %d at tile (%d,%d)", w.Kind, w.Layer, w.GID, w.Tile.X, w.Tile.Y)
	case w.Object != 0:
		return fmt.Sprintf("%s: layer %q gid %d on object %d", w.Kind, w.Layer, w.GID, w.Object)
	}
	return fmt.Sprintf("%s: layer %q gid %d", w.Kind, w.Layer, w.GID)
}

// WarningCount returns the number of warnings of the given kind
func (l *LevelDefinition) WarningCount(kind WarningKind) int {
	n := 0
	for _, w := range l.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// TileLayer returns the first tile layer with the given name (or nil)
func (l *LevelDefinition) TileLayer(name string) *TileLayerPlacement {
	for _, tl := range l.TileLayers {
		if tl.Name == name {
			return tl
		}
	}
	return nil
}

// EntitiesOfType returns all entities with the given type
func (l *LevelDefinition) EntitiesOfType(kind string) []*EntityPlacement {
	found := []*EntityPlacement{}
	for _, e := range l.Entities {
		if e.Type == kind {
			found = append(found, e)
		}
	}
	return found
}

// TilesIn returns placements on z-layer `z` in the inclusive rectangle
// min -> max.
func (l *LevelDefinition) TilesIn(z int, min, max TileCoord) ([]TilePlacement, error) {
	found := []TilePlacement{}
	for _, tl := range l.TileLayers {
		if tl.ZOrder != z {
			continue
		}
		for _, t := range tl.Tiles {
			if t.World.X < min.X || t.World.X > max.X || t.World.Y < min.Y || t.World.Y > max.Y {
				continue
			}
			found = append(found, t)
		}
	}
	return found, nil
}

// ZLevels returns the z-orders of all tile layers with at least one tile
// sorted low -> high.
func (l *LevelDefinition) ZLevels() ([]int, error) {
	levels := []int{}
	for _, tl := range l.TileLayers {
		if len(tl.Tiles) > 0 {
			levels = append(levels, tl.ZOrder)
		}
	}
	sort.Ints(levels)
	return levels, nil
}
