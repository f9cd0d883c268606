/* file converts a loaded TiledMap into a LevelDefinition.

Tiles stay in tile space. Objects are moved into their final pixel
positions:
- orthogonal: raw + layer offset + tileset offset, optionally mirrored in y
- isometric: raw + layer offset + tileset offset. Tiled already writes
  isometric object positions in final pixel coordinates so they are never
  projected, re-origined or flipped.
*/
package tiled

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Converter turns maps into levels. It holds no per conversion state so
// one converter can be used for any number of (concurrent) conversions.
type Converter struct {
	Log zerolog.Logger
}

// NewConverter returns a converter that doesn't log
func NewConverter() *Converter {
	return &Converter{Log: zerolog.Nop()}
}

// Convert converts `m` with a non logging converter
func Convert(m *TiledMap, cfg ConversionConfig) (*LevelDefinition, error) {
	return NewConverter().Convert(m, cfg)
}

// convContext is everything a single conversion needs to know. It's built
// once per Convert call & not changed after.
type convContext struct {
	cfg       ConversionConfig
	infinite  bool
	tilesets  []*Tileset
	firstGIDs []uint32
	mapHeight float64
}

// layerContext is inherited from group layers by their children
type layerContext struct {
	offset  PixelCoord
	opacity float64
	visible bool
}

func (lc layerContext) child(l *Layer) layerContext {
	return layerContext{
		offset:  lc.offset.Add(l.Offset),
		opacity: lc.opacity * l.Opacity,
		visible: lc.visible && l.Visible,
	}
}

func newContext(m *TiledMap, cfg ConversionConfig) *convContext {
	ctx := &convContext{
		cfg:       cfg.resolve(m),
		infinite:  m.Infinite,
		tilesets:  m.Tilesets,
		firstGIDs: make([]uint32, len(m.Tilesets)),
	}
	for i, ts := range m.Tilesets {
		ctx.firstGIDs[i] = ts.FirstGID
	}

	switch {
	case !m.Infinite:
		ctx.mapHeight = float64(m.Height * ctx.cfg.TileHeight)
	case !m.Bounds.Empty:
		ctx.mapHeight = float64((m.Bounds.Max.Y + 1) * ctx.cfg.TileHeight)
	}

	return ctx
}

// Convert builds a level from `m`. Gids that no tileset claims don't fail
// the conversion; they're recorded as warnings on the level.
func (c *Converter) Convert(m *TiledMap, cfg ConversionConfig) (*LevelDefinition, error) {
	if m == nil {
		return nil, fmt.Errorf("no map to convert")
	}

	ctx := newContext(m, cfg)
	if ctx.cfg.TileWidth <= 0 || ctx.cfg.TileHeight <= 0 {
		return nil, &SchemaError{
			Field:  "tile_width/tile_height",
			Value:  fmt.Sprintf("%dx%d", ctx.cfg.TileWidth, ctx.cfg.TileHeight),
			Reason: "must be positive",
		}
	}

	out := &LevelDefinition{
		Orientation:     ctx.cfg.MapOrientation,
		RenderOrder:     ctx.cfg.RenderOrder,
		TileWidth:       ctx.cfg.TileWidth,
		TileHeight:      ctx.cfg.TileHeight,
		FlipY:           ctx.cfg.FlipY && ctx.cfg.MapOrientation != Isometric,
		MapPixelHeight:  ctx.mapHeight,
		TileLayers:      []*TileLayerPlacement{},
		Entities:        []*EntityPlacement{},
		ParallaxLayers:  []*ParallaxLayer{},
		CollisionLayers: []string{},
		Properties:      m.Properties.Copy(),
		Warnings:        []Warning{},
	}

	c.layers(ctx, out, m.Layers, layerContext{opacity: 1, visible: true}, 0)

	if n := len(out.Warnings); n > 0 {
		c.Log.Warn().Str("map", m.Path).Int("warnings", n).Msg("level converted with unresolved gids")
	}
	c.Log.Debug().Str("map", m.Path).Int("tilelayers", len(out.TileLayers)).Int("entities", len(out.Entities)).
		Msg("converted level")

	return out, nil
}

// layers converts `layers` in order, flattening groups. Each non group
// layer takes the next z-order; the next free z-order is returned.
func (c *Converter) layers(ctx *convContext, out *LevelDefinition, layers []*Layer, parent layerContext, z int) int {
	for _, layer := range layers {
		lc := parent.child(layer)

		switch layer.Kind {
		case GroupLayer:
			z = c.layers(ctx, out, layer.Layers, lc, z)
			continue
		case TileLayer:
			out.TileLayers = append(out.TileLayers, c.tileLayer(ctx, out, layer, lc, z))
		case ObjectLayer:
			c.objectLayer(ctx, out, layer, lc, z)
		case ImageLayer:
			out.ParallaxLayers = append(out.ParallaxLayers, &ParallaxLayer{
				Name:      layer.Name,
				Image:     layer.Image,
				ZOrder:    z,
				Offset:    lc.offset,
				ParallaxX: layer.ParallaxX,
				ParallaxY: layer.ParallaxY,
				RepeatX:   layer.RepeatX,
				RepeatY:   layer.RepeatY,
				Opacity:   lc.opacity,
				Visible:   lc.visible,
			})
		}
		z++
	}
	return z
}

// resolve finds the tileset owning a raw tile ID (flags are ignored).
// Returns the tileset index & bare gid, ok is false if no tileset claims it.
func (ctx *convContext) resolve(raw uint32) (int, uint32, bool) {
	gid := StripFlags(raw)
	if gid == 0 {
		return -1, 0, false
	}

	// first tileset starting after gid, the one before it is the candidate
	i := sort.Search(len(ctx.firstGIDs), func(i int) bool { return ctx.firstGIDs[i] > gid }) - 1
	if i < 0 || !ctx.tilesets[i].Contains(gid) {
		return -1, gid, false
	}
	return i, gid, true
}

func (c *Converter) tileLayer(ctx *convContext, out *LevelDefinition, layer *Layer, lc layerContext, z int) *TileLayerPlacement {
	tl := &TileLayerPlacement{
		ID:         layer.ID,
		Name:       layer.Name,
		ZOrder:     z,
		Offset:     lc.offset,
		Opacity:    lc.opacity,
		Visible:    lc.visible,
		Properties: layer.Properties.Copy(),
		Tiles:      []TilePlacement{},
	}

	if ctx.infinite {
		// chunk origins are already in map wide tile space
		for _, chunk := range layer.Chunks {
			c.placeTiles(ctx, out, tl, chunk.Origin, chunk.Width, chunk.Height, chunk.Data)
		}
	} else {
		c.placeTiles(ctx, out, tl, TileCoord{}, layer.Width, layer.Height, layer.Data)
	}

	return tl
}

// placeTiles adds the non empty tiles of a width x height grid starting at
// `origin` in render order.
func (c *Converter) placeTiles(ctx *convContext, out *LevelDefinition, tl *TileLayerPlacement, origin TileCoord, width, height int, data []uint32) {
	eachCell(ctx.cfg.RenderOrder, width, height, func(col, row int) {
		raw := data[row*width+col]
		if StripFlags(raw) == 0 {
			return
		}

		world := origin.Add(TileCoord{X: col, Y: row})

		idx, gid, ok := ctx.resolve(raw)
		if !ok {
			out.Warnings = append(out.Warnings, Warning{Kind: WarnUnresolvedGID, Layer: tl.Name, GID: gid, Tile: &world})
			c.Log.Warn().Str("layer", tl.Name).Uint32("gid", gid).Int("x", world.X).Int("y", world.Y).
				Msg("unresolved tile gid")
			return
		}

		ts := ctx.tilesets[idx]
		tl.Tiles = append(tl.Tiles, TilePlacement{
			World:   world,
			ZOrder:  tl.ZOrder,
			GID:     gid,
			LocalID: gid - ts.FirstGID,
			Tileset: idx,
			Offset:  ts.TileOffset,
			Flip:    Flags(raw),
		})
	})
}

// eachCell calls fn for every cell of a width x height grid in the given
// render order.
func eachCell(order RenderOrder, width, height int, fn func(col, row int)) {
	rowStart, rowEnd, rowStep := 0, height, 1
	if order == RightUp || order == LeftUp {
		rowStart, rowEnd, rowStep = height-1, -1, -1
	}
	colStart, colEnd, colStep := 0, width, 1
	if order == LeftDown || order == LeftUp {
		colStart, colEnd, colStep = width-1, -1, -1
	}

	for row := rowStart; row != rowEnd; row += rowStep {
		for col := colStart; col != colEnd; col += colStep {
			fn(col, row)
		}
	}
}

// objectLayer converts every object of an object layer. Collision
// classification is done once for the whole layer.
func (c *Converter) objectLayer(ctx *convContext, out *LevelDefinition, layer *Layer, lc layerContext, z int) {
	collision := ctx.cfg.isCollisionLayer(layer.Name)
	if collision {
		out.CollisionLayers = append(out.CollisionLayers, layer.Name)
	}

	for _, o := range layer.Objects {
		out.Entities = append(out.Entities, c.entity(ctx, out, layer.Name, o, lc, z, collision))
	}
}

func (c *Converter) entity(ctx *convContext, out *LevelDefinition, layer string, o *Object, lc layerContext, z int, collision bool) *EntityPlacement {
	placeholder, mapped := ctx.cfg.TypeToPlaceholder[o.Type]
	if !mapped {
		c.Log.Debug().Str("layer", layer).Int("object", o.ID).Str("type", o.Type).Msg("no placeholder for object type")
	}

	e := &EntityPlacement{
		ID:          o.ID,
		Name:        o.Name,
		Type:        o.Type,
		Placeholder: placeholder,
		Unmapped:    !mapped,
		Layer:       layer,
		ZOrder:      z,
		Collision:   collision,
		Width:       o.Width,
		Height:      o.Height,
		Rotation:    o.Rotation,
		Visible:     lc.visible && o.Visible,
		Shape:       o.Shape,
		Tileset:     -1,
		Properties:  o.Properties.Copy(),
	}
	if o.Text != nil {
		t := *o.Text
		e.Text = &t
	}

	tilesetOffset := PixelCoord{}
	if o.GID != 0 {
		e.GID = StripFlags(o.GID)
		e.Flip = Flags(o.GID)

		idx, gid, ok := ctx.resolve(o.GID)
		if ok {
			e.Tileset = idx
			tilesetOffset = ctx.tilesets[idx].TileOffset
		} else {
			// placed anyway, without a tileset offset
			out.Warnings = append(out.Warnings, Warning{Kind: WarnUnresolvedGID, Layer: layer, GID: gid, Object: o.ID})
			c.Log.Warn().Str("layer", layer).Uint32("gid", gid).Int("object", o.ID).Msg("unresolved object gid")
		}
	}

	e.Position = ctx.objectPosition(o.Position, lc.offset, tilesetOffset)
	e.Points = ctx.objectPoints(o.Points)

	return e
}

// objectPosition turns a raw object position into its final pixel position.
func (ctx *convContext) objectPosition(raw, layerOffset, tilesetOffset PixelCoord) PixelCoord {
	pos := raw.Add(layerOffset).Add(tilesetOffset)

	if ctx.cfg.MapOrientation == Isometric {
		return pos
	}
	if ctx.cfg.FlipY {
		pos.Y = ctx.mapHeight - pos.Y
	}
	return pos
}

// objectPoints copies points relative to an object's anchor, following the
// same flip rule as the anchor. Mirroring a relative point negates it's y.
func (ctx *convContext) objectPoints(points []PixelCoord) []PixelCoord {
	if points == nil {
		return nil
	}

	flip := ctx.cfg.FlipY && ctx.cfg.MapOrientation != Isometric

	out := make([]PixelCoord, len(points))
	for i, p := range points {
		if flip {
			p.Y = -p.Y
		}
		out[i] = p
	}
	return out
}
