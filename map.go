/* file holds our in memory map & the loader that builds it from a Tiled
JSON map file.
*/
package tiled

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Orientation of a map
type Orientation string

// RenderOrder of a map's tiles. This only concerns the order tiles are
// iterated in, never where anything is placed.
type RenderOrder string

// LayerKind is the type of a layer
type LayerKind string

// Shape of an object
type Shape string

const (
	Orthogonal Orientation = "orthogonal"
	Isometric  Orientation = "isometric"
	Staggered  Orientation = "staggered" // unsupported
	Hexagonal  Orientation = "hexagonal" // unsupported

	RightDown RenderOrder = "right-down"
	RightUp   RenderOrder = "right-up"
	LeftDown  RenderOrder = "left-down"
	LeftUp    RenderOrder = "left-up"

	TileLayer   LayerKind = "tilelayer"
	ObjectLayer LayerKind = "objectgroup"
	ImageLayer  LayerKind = "imagelayer"
	GroupLayer  LayerKind = "group"

	ShapeRectangle Shape = "rectangle"
	ShapeEllipse   Shape = "ellipse"
	ShapePoint     Shape = "point"
	ShapePolygon   Shape = "polygon"
	ShapePolyline  Shape = "polyline"
	ShapeText      Shape = "text"
	ShapeTile      Shape = "tile"
)

// TiledMap is a loaded Tiled map. It is not modified after loading.
type TiledMap struct {
	Path string // file the map was read from, if any

	Width       int // in tiles (finite maps)
	Height      int // in tiles (finite maps)
	TileWidth   int // in pixels
	TileHeight  int // in pixels
	Orientation Orientation
	RenderOrder RenderOrder
	Infinite    bool

	Layers     []*Layer
	Tilesets   []*Tileset // sorted by FirstGID
	Properties *Properties

	// Bounds covers every chunk of every tile layer (infinite maps only)
	Bounds TileBounds
}

// TileBounds is an inclusive rectangle in tile space.
type TileBounds struct {
	Min   TileCoord
	Max   TileCoord
	Empty bool
}

// include grows the bounds to cover the given chunk
func (b TileBounds) include(c *Chunk) TileBounds {
	last := TileCoord{X: c.Origin.X + c.Width - 1, Y: c.Origin.Y + c.Height - 1}
	if b.Empty {
		return TileBounds{Min: c.Origin, Max: last}
	}
	return TileBounds{
		Min: TileCoord{X: minInt(b.Min.X, c.Origin.X), Y: minInt(b.Min.Y, c.Origin.Y)},
		Max: TileCoord{X: maxInt(b.Max.X, last.X), Y: maxInt(b.Max.Y, last.Y)},
	}
}

// Layer is any kind of map layer, see Kind.
type Layer struct {
	ID         int
	Name       string
	Kind       LayerKind
	Width      int // in tiles
	Height     int // in tiles
	Offset     PixelCoord
	Opacity    float64
	Visible    bool
	Properties *Properties

	// tile layers; finite maps use Data, infinite maps use Chunks
	Data   []uint32
	Chunks []*Chunk

	// object layers
	Objects []*Object

	// image layers
	Image     string
	ParallaxX float64
	ParallaxY float64
	RepeatX   bool
	RepeatY   bool

	// group layers
	Layers []*Layer
}

// Chunk is a rectangle of an infinite layer. Origin is in tile space and is
// used as is.
type Chunk struct {
	Origin TileCoord
	Width  int
	Height int
	Data   []uint32
}

// Object is an object from an object layer.
type Object struct {
	ID       int
	Name     string
	Type     string
	GID      uint32 // raw, including flip flags. 0 for non-tile objects
	Position PixelCoord
	Width    float64
	Height   float64
	Rotation float64
	Visible  bool
	Shape    Shape

	// Points of a polygon / polyline, relative to Position
	Points []PixelCoord

	Text       *Text
	Properties *Properties
}

// Text is the payload of a text object
type Text struct {
	Text       string `json:"text"`
	Wrap       bool   `json:"wrap,omitempty"`
	FontFamily string `json:"fontfamily,omitempty"`
	PixelSize  int    `json:"pixelsize,omitempty"`
	Color      string `json:"color,omitempty"`
	HAlign     string `json:"halign,omitempty"`
	VAlign     string `json:"valign,omitempty"`
}

// Dependencies returns the files on disk the map was built from.
func (m *TiledMap) Dependencies() []string {
	deps := []string{}
	if m.Path != "" {
		deps = append(deps, m.Path)
	}
	for _, ts := range m.Tilesets {
		if ts.External {
			deps = append(deps, ts.Path)
		}
	}
	return deps
}

// PixelHeight returns the height of the map in pixels. For infinite maps
// this is measured from y = 0 to the bottom of the lowest chunk.
func (m *TiledMap) PixelHeight() float64 {
	if !m.Infinite {
		return float64(m.Height * m.TileHeight)
	}
	if m.Bounds.Empty {
		return 0
	}
	return float64((m.Bounds.Max.Y + 1) * m.TileHeight)
}

// Loader reads Tiled JSON maps.
type Loader struct {
	// Cache holds external tilesets. Nil means DefaultCache.
	Cache *TilesetCache

	Log zerolog.Logger
}

// NewLoader returns a loader using its own (empty) tileset cache
func NewLoader() *Loader {
	return &Loader{Cache: NewTilesetCache(), Log: zerolog.Nop()}
}

// LoadFromFile reads a map using DefaultCache.
func LoadFromFile(path string) (*TiledMap, error) {
	l := &Loader{Cache: DefaultCache, Log: zerolog.Nop()}
	return l.LoadFile(path)
}

// LoadFile reads the map at `path`. External tilesets are resolved relative
// to the map's directory.
func (l *Loader) LoadFile(path string) (*TiledMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	m, err := l.load(f, path, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.Path = path

	return m, nil
}

// Load reads a map from `r`. `baseDir` is used to find external tilesets,
// the current directory is used if empty.
func (l *Loader) Load(r io.Reader, baseDir string) (*TiledMap, error) {
	return l.load(r, "", baseDir)
}

func (l *Loader) load(r io.Reader, path, baseDir string) (*TiledMap, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}

	jm := &jsonMap{}
	if err := json.Unmarshal(data, jm); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	m, err := l.build(jm, baseDir)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.Path == "" {
			perr.Path = path
		}
		return nil, err
	}

	l.Log.Debug().Str("path", path).Int("layers", len(m.Layers)).Int("tilesets", len(m.Tilesets)).
		Bool("infinite", m.Infinite).Msg("loaded map")
	return m, nil
}

// build validates the raw map & turns it into a TiledMap
func (l *Loader) build(jm *jsonMap, baseDir string) (*TiledMap, error) {
	m := &TiledMap{Infinite: jm.Infinite}

	if jm.Orientation == nil {
		return nil, &ParseError{Field: "orientation", Err: errMissing}
	}
	switch o := Orientation(*jm.Orientation); o {
	case Orthogonal, Isometric:
		m.Orientation = o
	case Staggered, Hexagonal:
		return nil, &SchemaError{Field: "orientation", Value: o, Reason: "unsupported orientation"}
	default:
		return nil, &SchemaError{Field: "orientation", Value: o, Reason: "unknown orientation"}
	}

	switch ro := RenderOrder(jm.RenderOrder); ro {
	case "":
		m.RenderOrder = RightDown
	case RightDown, RightUp, LeftDown, LeftUp:
		m.RenderOrder = ro
	default:
		return nil, &SchemaError{Field: "renderorder", Value: ro, Reason: "unknown render order"}
	}

	var err error
	if m.TileWidth, err = requireDimension("tilewidth", jm.TileWidth); err != nil {
		return nil, err
	}
	if m.TileHeight, err = requireDimension("tileheight", jm.TileHeight); err != nil {
		return nil, err
	}
	if m.Infinite {
		if jm.Width != nil {
			m.Width = *jm.Width
		}
		if jm.Height != nil {
			m.Height = *jm.Height
		}
	} else {
		if m.Width, err = requireDimension("width", jm.Width); err != nil {
			return nil, err
		}
		if m.Height, err = requireDimension("height", jm.Height); err != nil {
			return nil, err
		}
	}

	if jm.Layers == nil {
		return nil, &ParseError{Field: "layers", Err: errMissing}
	}
	if jm.Tilesets == nil {
		return nil, &ParseError{Field: "tilesets", Err: errMissing}
	}

	if m.Properties, err = newPropertiesFromJSON(jm.Properties); err != nil {
		return nil, err
	}

	if m.Tilesets, err = l.tilesets(*jm.Tilesets, baseDir); err != nil {
		return nil, err
	}

	m.Bounds = TileBounds{Empty: true}
	for _, jl := range *jm.Layers {
		layer, err := l.layer(m, &jl)
		if err != nil {
			return nil, err
		}
		m.Layers = append(m.Layers, layer)
	}

	return m, nil
}

// tilesets reads embedded tilesets & loads external ones, then checks
// their gid ranges.
func (l *Loader) tilesets(raws []json.RawMessage, baseDir string) ([]*Tileset, error) {
	cache := l.Cache
	if cache == nil {
		cache = DefaultCache
	}

	result := make([]*Tileset, 0, len(raws))
	for i, raw := range raws {
		ref := &jsonTileset{}
		if err := json.Unmarshal(raw, ref); err != nil {
			return nil, &ParseError{Field: fmt.Sprintf("tilesets[%d]", i), Err: err}
		}
		if ref.FirstGID == nil {
			return nil, &ParseError{Field: fmt.Sprintf("tilesets[%d].firstgid", i), Err: errMissing}
		}

		if ref.Source == "" {
			ts, err := ParseEmbedded(raw)
			if err != nil {
				return nil, fmt.Errorf("tileset %d: %w", i, err)
			}
			result = append(result, ts)
			continue
		}

		path := ref.Source
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		ts, err := cache.Load(path)
		if err != nil {
			return nil, fmt.Errorf("tileset %d (%s): %w", i, ref.Source, err)
		}
		ts.FirstGID = *ref.FirstGID
		ts.Source = ref.Source
		ts.Path = path
		ts.External = true

		l.Log.Debug().Str("source", ref.Source).Uint32("firstgid", ts.FirstGID).Msg("external tileset")
		result = append(result, ts)
	}

	return result, validateTilesets(result)
}

// validateTilesets checks firstgids are > 0, strictly increasing & that
// ranges don't overlap.
func validateTilesets(tss []*Tileset) error {
	for i, ts := range tss {
		if ts.FirstGID == 0 {
			return &SchemaError{Field: fmt.Sprintf("tilesets[%d].firstgid", i), Value: 0, Reason: "gid 0 is reserved for the empty tile"}
		}
		if i == 0 {
			continue
		}

		prev := tss[i-1]
		if ts.FirstGID <= prev.FirstGID {
			return &SchemaError{
				Field:  fmt.Sprintf("tilesets[%d].firstgid", i),
				Value:  ts.FirstGID,
				Reason: fmt.Sprintf("must be greater than the previous tileset's %d", prev.FirstGID),
			}
		}
		if n := prev.span(); n > 0 && prev.FirstGID+n > ts.FirstGID {
			return &SchemaError{
				Field:  fmt.Sprintf("tilesets[%d].firstgid", i),
				Value:  ts.FirstGID,
				Reason: fmt.Sprintf("overlaps tileset %d (gids %d-%d)", i-1, prev.FirstGID, prev.FirstGID+n-1),
			}
		}
	}
	return nil
}

// layer converts a raw layer (recursively for groups). Bounds on `m` are
// grown to cover any chunks.
func (l *Loader) layer(m *TiledMap, jl *jsonLayer) (*Layer, error) {
	props, err := newPropertiesFromJSON(jl.Properties)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", jl.Name, err)
	}

	layer := &Layer{
		ID:         jl.ID,
		Name:       jl.Name,
		Kind:       LayerKind(jl.Type),
		Width:      jl.Width,
		Height:     jl.Height,
		Offset:     PixelCoord{X: jl.OffsetX, Y: jl.OffsetY},
		Opacity:    1,
		Visible:    true,
		Properties: props,
		ParallaxX:  1,
		ParallaxY:  1,
	}
	if jl.Opacity != nil {
		layer.Opacity = *jl.Opacity
	}
	if jl.Visible != nil {
		layer.Visible = *jl.Visible
	}

	switch layer.Kind {
	case TileLayer:
		if m.Infinite {
			err = l.chunks(m, layer, jl)
		} else {
			err = l.tiles(layer, jl)
		}
	case ObjectLayer:
		layer.Objects, err = l.objects(jl)
	case ImageLayer:
		layer.Image = jl.Image
		if jl.ParallaxX != nil {
			layer.ParallaxX = *jl.ParallaxX
		}
		if jl.ParallaxY != nil {
			layer.ParallaxY = *jl.ParallaxY
		}
		layer.RepeatX = jl.RepeatX
		layer.RepeatY = jl.RepeatY
	case GroupLayer:
		for i := range jl.Layers {
			child, err := l.layer(m, &jl.Layers[i])
			if err != nil {
				return nil, err
			}
			layer.Layers = append(layer.Layers, child)
		}
	default:
		return nil, &SchemaError{Field: "layers.type", Value: jl.Type, Reason: fmt.Sprintf("unknown type for layer %q", jl.Name)}
	}
	if err != nil {
		return nil, err
	}

	return layer, nil
}

// tiles decodes a finite tile layer
func (l *Loader) tiles(layer *Layer, jl *jsonLayer) error {
	if jl.Width <= 0 || jl.Height <= 0 {
		return &SchemaError{
			Field:  "layers.width/height",
			Value:  fmt.Sprintf("%dx%d", jl.Width, jl.Height),
			Reason: fmt.Sprintf("layer %q must have a positive size", jl.Name),
		}
	}

	expected, ok := tileCount(jl.Width, jl.Height)
	if !ok {
		return &SchemaError{
			Field:  "layers.width/height",
			Value:  fmt.Sprintf("%dx%d", jl.Width, jl.Height),
			Reason: fmt.Sprintf("layer %q is too large", jl.Name),
		}
	}

	ids, err := decodeLayerData(jl.Data, jl.Encoding, jl.Compression)
	if err != nil {
		return fmt.Errorf("layer %q: %w", jl.Name, err)
	}

	if len(ids) != expected {
		return &DataSizeError{Layer: jl.Name, Chunk: -1, Expected: expected, Actual: len(ids)}
	}
	layer.Data = ids

	l.Log.Debug().Str("layer", jl.Name).Int("tiles", len(ids)).Msg("decoded tile layer")
	return nil
}

// chunks decodes each chunk of an infinite tile layer on it's own
func (l *Loader) chunks(m *TiledMap, layer *Layer, jl *jsonLayer) error {
	for i, jc := range jl.Chunks {
		if jc.Width <= 0 || jc.Height <= 0 {
			return &SchemaError{
				Field:  "chunks.width/height",
				Value:  fmt.Sprintf("%dx%d", jc.Width, jc.Height),
				Reason: fmt.Sprintf("layer %q chunk %d must have a positive size", jl.Name, i),
			}
		}

		expected, ok := tileCount(jc.Width, jc.Height)
		if !ok {
			return &SchemaError{
				Field:  "chunks.width/height",
				Value:  fmt.Sprintf("%dx%d", jc.Width, jc.Height),
				Reason: fmt.Sprintf("layer %q chunk %d is too large", jl.Name, i),
			}
		}

		ids, err := decodeLayerData(jc.Data, jl.Encoding, jl.Compression)
		if err != nil {
			return fmt.Errorf("layer %q chunk %d: %w", jl.Name, i, err)
		}

		if len(ids) != expected {
			return &DataSizeError{Layer: jl.Name, Chunk: i, Expected: expected, Actual: len(ids)}
		}

		c := &Chunk{
			Origin: TileCoord{X: jc.X, Y: jc.Y},
			Width:  jc.Width,
			Height: jc.Height,
			Data:   ids,
		}
		layer.Chunks = append(layer.Chunks, c)
		m.Bounds = m.Bounds.include(c)
	}

	l.Log.Debug().Str("layer", jl.Name).Int("chunks", len(layer.Chunks)).Msg("decoded infinite tile layer")
	return nil
}

// maxLayerTiles caps the number of tiles in one layer or chunk
const maxLayerTiles = math.MaxInt32

// tileCount returns width * height, or false if a layer that size can't
// exist. Sizes must already be positive.
func tileCount(width, height int) (int, bool) {
	if width > maxLayerTiles || height > maxLayerTiles {
		return 0, false
	}
	n := int64(width) * int64(height)
	if n > maxLayerTiles {
		return 0, false
	}
	return int(n), true
}

// decodeLayerData handles both JSON array & string payloads
func decodeLayerData(raw json.RawMessage, encoding, compression string) ([]uint32, error) {
	payload, isArray, err := layerPayload(raw)
	if err != nil {
		return nil, err
	}

	enc := Encoding(encoding)
	if isArray {
		if enc == EncodingBase64 {
			return nil, &ParseError{Field: "data", Err: fmt.Errorf("base64 layer data must be a string")}
		}
		enc = EncodingCSV
	}

	return Decode(payload, enc, Compression(compression))
}

// objects converts the objects of an object layer
func (l *Loader) objects(jl *jsonLayer) ([]*Object, error) {
	result := make([]*Object, 0, len(jl.Objects))

	for i := range jl.Objects {
		jo := &jl.Objects[i]

		props, err := newPropertiesFromJSON(jo.Properties)
		if err != nil {
			return nil, fmt.Errorf("layer %q object %d: %w", jl.Name, jo.ID, err)
		}
		if jo.Template != "" {
			l.Log.Debug().Str("layer", jl.Name).Int("object", jo.ID).Str("template", jo.Template).
				Msg("object templates are not resolved")
		}

		o := &Object{
			ID:         jo.ID,
			Name:       jo.Name,
			Type:       jo.Type,
			GID:        jo.GID,
			Position:   PixelCoord{X: jo.X, Y: jo.Y},
			Width:      jo.Width,
			Height:     jo.Height,
			Rotation:   jo.Rotation,
			Visible:    jo.Visible == nil || *jo.Visible,
			Properties: props,
		}
		if o.Type == "" {
			o.Type = jo.Class
		}

		switch {
		case jo.GID != 0:
			o.Shape = ShapeTile
		case jo.Point:
			o.Shape = ShapePoint
		case jo.Ellipse:
			o.Shape = ShapeEllipse
		case jo.Polygon != nil:
			o.Shape = ShapePolygon
			o.Points = toPoints(jo.Polygon)
		case jo.Polyline != nil:
			o.Shape = ShapePolyline
			o.Points = toPoints(jo.Polyline)
		case jo.Text != nil:
			o.Shape = ShapeText
			t := Text(*jo.Text)
			o.Text = &t
		default:
			o.Shape = ShapeRectangle
		}

		result = append(result, o)
	}

	return result, nil
}

func toPoints(in []jsonPoint) []PixelCoord {
	pts := make([]PixelCoord, len(in))
	for i, p := range in {
		pts[i] = PixelCoord{X: p.X, Y: p.Y}
	}
	return pts
}

// requireDimension checks a required size field is present & positive
func requireDimension(field string, v *int) (int, error) {
	if v == nil {
		return 0, &ParseError{Field: field, Err: errMissing}
	}
	if *v <= 0 {
		return 0, &SchemaError{Field: field, Value: *v, Reason: "must be positive"}
	}
	return *v, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
