package tiled

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc = map[string]interface{}

// orthoMap is a minimal finite 32x32px map with one 16 tile tileset
func orthoMap(width, height int, layers ...doc) doc {
	return doc{
		"width":       width,
		"height":      height,
		"tilewidth":   32,
		"tileheight":  32,
		"orientation": "orthogonal",
		"renderorder": "right-down",
		"infinite":    false,
		"tilesets":    []interface{}{embeddedTileset(1, 16)},
		"layers":      append([]doc{}, layers...),
	}
}

func embeddedTileset(firstgid, count int) doc {
	return doc{
		"firstgid":    firstgid,
		"name":        "terrain",
		"tilewidth":   32,
		"tileheight":  32,
		"tilecount":   count,
		"columns":     4,
		"image":       "terrain.png",
		"imagewidth":  128,
		"imageheight": 32 * ((count + 3) / 4),
	}
}

func tileLayerDoc(name string, width, height int, data []uint32) doc {
	return doc{
		"id":      1,
		"name":    name,
		"type":    "tilelayer",
		"width":   width,
		"height":  height,
		"opacity": 1,
		"visible": true,
		"x":       0,
		"y":       0,
		"data":    data,
	}
}

func objectLayerDoc(name string, objects ...doc) doc {
	return doc{
		"id":      2,
		"name":    name,
		"type":    "objectgroup",
		"opacity": 1,
		"visible": true,
		"objects": append([]doc{}, objects...),
	}
}

func filled(n int, id uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = id
	}
	return out
}

func writeJSON(t *testing.T, dir, name string, v interface{}) string {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return writeFile(t, dir, name, data)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// loadDoc loads a map document with a fresh loader & cache
func loadDoc(t *testing.T, d doc) (*TiledMap, error) {
	data, err := json.Marshal(d)
	require.NoError(t, err)
	return NewLoader().Load(bytes.NewReader(data), t.TempDir())
}

func TestLoadFinite(t *testing.T) {
	m, err := loadDoc(t, orthoMap(4, 4, tileLayerDoc("ground", 4, 4, filled(16, 1))))

	require.NoError(t, err)
	assert.Equal(t, 4, m.Width)
	assert.Equal(t, 4, m.Height)
	assert.Equal(t, 32, m.TileWidth)
	assert.Equal(t, Orthogonal, m.Orientation)
	assert.Equal(t, RightDown, m.RenderOrder)
	assert.False(t, m.Infinite)
	assert.Equal(t, 1, len(m.Tilesets))
	assert.Equal(t, 1, len(m.Layers))
	assert.Equal(t, TileLayer, m.Layers[0].Kind)
	assert.Equal(t, filled(16, 1), m.Layers[0].Data)
	assert.Equal(t, float64(128), m.PixelHeight())
}

func TestLoadFileSetsPath(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "level.json", orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{1})))

	m, err := NewLoader().LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	assert.Equal(t, []string{path}, m.Dependencies())
}

func TestLoadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")

	m, err := NewLoader().LoadFile(path)

	assert.Nil(t, m)
	var ioerr *IOError
	require.True(t, errors.As(err, &ioerr))
	assert.Equal(t, path, ioerr.Path)
}

func TestLoadBadJSONNamesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.json", []byte(`{"width": 4,`))

	m, err := NewLoader().LoadFile(path)

	assert.Nil(t, m)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, path, perr.Path)
}

func TestLoadDefaultsRenderOrder(t *testing.T) {
	d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
	delete(d, "renderorder")

	m, err := loadDoc(t, d)

	require.NoError(t, err)
	assert.Equal(t, RightDown, m.RenderOrder)
}

func TestLoadRequiredFields(t *testing.T) {
	cases := map[string]string{
		"orientation": "orientation",
		"tilewidth":   "tilewidth",
		"tileheight":  "tileheight",
		"width":       "width",
		"height":      "height",
		"layers":      "layers",
		"tilesets":    "tilesets",
	}

	for remove, field := range cases {
		d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
		delete(d, remove)

		m, err := loadDoc(t, d)

		assert.Nil(t, m, remove)
		var perr *ParseError
		if assert.True(t, errors.As(err, &perr), remove) {
			assert.Equal(t, field, perr.Field)
		}
	}
}

func TestLoadSchemaErrors(t *testing.T) {
	cases := []struct {
		Name  string
		Set   string
		Value interface{}
		Field string
	}{
		{"hexagonal", "orientation", "hexagonal", "orientation"},
		{"staggered", "orientation", "staggered", "orientation"},
		{"unknown orientation", "orientation", "sideways", "orientation"},
		{"zero width", "width", 0, "width"},
		{"negative tileheight", "tileheight", -32, "tileheight"},
		{"bad renderorder", "renderorder", "down-left", "renderorder"},
	}

	for _, tt := range cases {
		d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
		d[tt.Set] = tt.Value

		m, err := loadDoc(t, d)

		assert.Nil(t, m, tt.Name)
		var serr *SchemaError
		if assert.True(t, errors.As(err, &serr), tt.Name) {
			assert.Equal(t, tt.Field, serr.Field, tt.Name)
		}
	}
}

func TestLoadDataSizeMismatch(t *testing.T) {
	m, err := loadDoc(t, orthoMap(4, 4, tileLayerDoc("ground", 4, 4, filled(15, 1))))

	assert.Nil(t, m)
	var derr *DataSizeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, &DataSizeError{Layer: "ground", Chunk: -1, Expected: 16, Actual: 15}, derr)
	assert.Contains(t, derr.Error(), "ground")
}

func TestLoadTooMuchData(t *testing.T) {
	_, err := loadDoc(t, orthoMap(2, 2, tileLayerDoc("ground", 2, 2, filled(5, 1))))

	var derr *DataSizeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 4, derr.Expected)
	assert.Equal(t, 5, derr.Actual)
}

func TestLoadBase64Layer(t *testing.T) {
	ids := []uint32{1, 2, WithFlags(3, Flip{Horizontal: true}), 0}
	payload, err := Encode(ids, 0, EncodingBase64, CompressionZlib)
	require.NoError(t, err)

	layer := tileLayerDoc("ground", 2, 2, nil)
	layer["data"] = string(payload)
	layer["encoding"] = "base64"
	layer["compression"] = "zlib"

	m, err := loadDoc(t, orthoMap(2, 2, layer))

	require.NoError(t, err)
	assert.Equal(t, ids, m.Layers[0].Data)
}

func TestLoadTruncatedGzipLayer(t *testing.T) {
	// gzip the data ourselves so we can cut the compressed stream short
	ids := filled(16, 1)
	raw := make([]byte, 0, 64)
	for _, id := range ids {
		raw = append(raw, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
	}
	compressed := gzipBytes(t, raw)
	payload := base64Encode(compressed[:len(compressed)-1])

	layer := tileLayerDoc("ground", 4, 4, nil)
	layer["data"] = payload
	layer["encoding"] = "base64"
	layer["compression"] = "gzip"

	m, err := loadDoc(t, orthoMap(4, 4, layer))

	assert.Nil(t, m)
	var cerr *CompressionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, CompressionGzip, cerr.Format)
	assert.Equal(t, CauseTruncated, cerr.Cause)
}

func TestLoadArrayDataWithBase64Encoding(t *testing.T) {
	layer := tileLayerDoc("ground", 1, 1, []uint32{1})
	layer["encoding"] = "base64"

	_, err := loadDoc(t, orthoMap(1, 1, layer))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "data", perr.Field)
}

func TestLoadUnknownLayerType(t *testing.T) {
	_, err := loadDoc(t, orthoMap(1, 1, doc{"name": "what", "type": "hologram"}))

	var serr *SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "layers.type", serr.Field)
}

func infiniteMap(layers ...doc) doc {
	d := orthoMap(0, 0, layers...)
	d["infinite"] = true
	delete(d, "width")
	delete(d, "height")
	return d
}

func chunkDoc(x, y, width, height int, data []uint32) doc {
	return doc{"x": x, "y": y, "width": width, "height": height, "data": data}
}

func infiniteLayerDoc(name string, chunks ...doc) doc {
	return doc{
		"id":      1,
		"name":    name,
		"type":    "tilelayer",
		"opacity": 1,
		"visible": true,
		"startx":  -16,
		"starty":  -16,
		"chunks":  append([]doc{}, chunks...),
	}
}

func TestLoadInfinite(t *testing.T) {
	m, err := loadDoc(t, infiniteMap(
		infiniteLayerDoc("ground",
			chunkDoc(-16, -16, 16, 16, filled(256, 5)),
			chunkDoc(0, -16, 16, 16, filled(256, 0)),
		),
	))

	require.NoError(t, err)
	assert.True(t, m.Infinite)

	layer := m.Layers[0]
	require.Equal(t, 2, len(layer.Chunks))
	assert.Equal(t, TileCoord{X: -16, Y: -16}, layer.Chunks[0].Origin)
	assert.Equal(t, 256, len(layer.Chunks[0].Data))

	assert.Equal(t, TileBounds{Min: TileCoord{X: -16, Y: -16}, Max: TileCoord{X: 15, Y: -1}}, m.Bounds)
	assert.Equal(t, float64(0), m.PixelHeight())
}

func TestLoadInfiniteChunkSizeMismatch(t *testing.T) {
	_, err := loadDoc(t, infiniteMap(
		infiniteLayerDoc("ground",
			chunkDoc(0, 0, 2, 2, filled(4, 1)),
			chunkDoc(2, 0, 2, 2, filled(3, 1)),
		),
	))

	var derr *DataSizeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, &DataSizeError{Layer: "ground", Chunk: 1, Expected: 4, Actual: 3}, derr)
	assert.Contains(t, derr.Error(), "chunk 1")
}

func TestLoadLayerSizeOverflow(t *testing.T) {
	// 2^32 x 2^32 wraps to zero in an int multiply
	huge := int64(1) << 32

	layer := tileLayerDoc("ground", 1, 1, []uint32{})
	layer["width"] = huge
	layer["height"] = huge

	m, err := loadDoc(t, orthoMap(4, 4, layer))

	assert.Nil(t, m)
	var serr *SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "layers.width/height", serr.Field)
}

func TestLoadChunkSizeOverflow(t *testing.T) {
	huge := int64(1) << 32

	chunk := chunkDoc(0, 0, 1, 1, []uint32{})
	chunk["width"] = huge
	chunk["height"] = huge

	m, err := loadDoc(t, infiniteMap(infiniteLayerDoc("ground", chunk)))

	assert.Nil(t, m)
	var serr *SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "chunks.width/height", serr.Field)
}

func TestTileCount(t *testing.T) {
	cases := []struct {
		Width, Height int
		Count         int
		Ok            bool
	}{
		{4, 4, 16, true},
		{1, maxLayerTiles, maxLayerTiles, true},
		{2, maxLayerTiles, 0, false},
		{65536, 65536, 0, false},
	}

	for _, tt := range cases {
		n, ok := tileCount(tt.Width, tt.Height)
		assert.Equal(t, tt.Ok, ok, "%dx%d", tt.Width, tt.Height)
		assert.Equal(t, tt.Count, n, "%dx%d", tt.Width, tt.Height)
	}
}

func TestLoadInfiniteNoChunks(t *testing.T) {
	m, err := loadDoc(t, infiniteMap(infiniteLayerDoc("ground")))

	require.NoError(t, err)
	assert.True(t, m.Bounds.Empty)
}

func TestLoadTilesetValidation(t *testing.T) {
	cases := map[string][]interface{}{
		"zero firstgid": {embeddedTileset(0, 4)},
		"not increasing": {
			embeddedTileset(5, 4),
			embeddedTileset(5, 4),
		},
		"overlapping": {
			embeddedTileset(1, 16),
			embeddedTileset(10, 4),
		},
	}

	for name, tilesets := range cases {
		d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
		d["tilesets"] = tilesets

		m, err := loadDoc(t, d)

		assert.Nil(t, m, name)
		var serr *SchemaError
		assert.True(t, errors.As(err, &serr), name)
	}
}

func TestLoadTilesetMissingFirstGID(t *testing.T) {
	ts := embeddedTileset(1, 4)
	delete(ts, "firstgid")
	d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
	d["tilesets"] = []interface{}{ts}

	_, err := loadDoc(t, d)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "tilesets[0].firstgid", perr.Field)
}

func TestLoadGroupAndImageLayers(t *testing.T) {
	d := orthoMap(2, 2,
		doc{
			"name":    "world",
			"type":    "group",
			"offsetx": 10,
			"offsety": 20,
			"visible": false,
			"layers": []doc{
				tileLayerDoc("ground", 2, 2, filled(4, 1)),
				objectLayerDoc("things"),
			},
		},
		doc{
			"name":      "sky",
			"type":      "imagelayer",
			"image":     "sky.png",
			"parallaxx": 0.5,
			"repeatx":   true,
		},
	)

	m, err := loadDoc(t, d)

	require.NoError(t, err)
	require.Equal(t, 2, len(m.Layers))

	group := m.Layers[0]
	assert.Equal(t, GroupLayer, group.Kind)
	assert.Equal(t, PixelCoord{X: 10, Y: 20}, group.Offset)
	assert.False(t, group.Visible)
	require.Equal(t, 2, len(group.Layers))
	assert.Equal(t, "ground", group.Layers[0].Name)
	assert.Equal(t, ObjectLayer, group.Layers[1].Kind)

	sky := m.Layers[1]
	assert.Equal(t, ImageLayer, sky.Kind)
	assert.Equal(t, "sky.png", sky.Image)
	assert.Equal(t, 0.5, sky.ParallaxX)
	assert.Equal(t, 1.0, sky.ParallaxY)
	assert.True(t, sky.RepeatX)
}

func TestLoadObjects(t *testing.T) {
	d := orthoMap(2, 2, objectLayerDoc("things",
		doc{"id": 1, "name": "spawn", "type": "player", "x": 16, "y": 16, "point": true},
		doc{"id": 2, "class": "chest", "x": 32, "y": 0, "width": 32, "height": 32},
		doc{"id": 3, "x": 0, "y": 0, "polygon": []doc{{"x": 0, "y": 0}, {"x": 10, "y": 0}, {"x": 10, "y": 10}}},
		doc{"id": 4, "x": 0, "y": 0, "polyline": []doc{{"x": 0, "y": 0}, {"x": 5, "y": 5}}},
		doc{"id": 5, "x": 0, "y": 0, "width": 8, "height": 4, "ellipse": true},
		doc{"id": 6, "x": 0, "y": 0, "text": doc{"text": "hello", "wrap": true}},
		doc{"id": 7, "x": 0, "y": 32, "gid": WithFlags(2, Flip{Vertical: true}), "visible": false},
		doc{"id": 8, "x": 0, "y": 0, "properties": []doc{{"name": "hp", "type": "int", "value": 10}}},
	))

	m, err := loadDoc(t, d)

	require.NoError(t, err)
	objs := m.Layers[0].Objects
	require.Equal(t, 8, len(objs))

	assert.Equal(t, ShapePoint, objs[0].Shape)
	assert.Equal(t, "player", objs[0].Type)
	assert.Equal(t, PixelCoord{X: 16, Y: 16}, objs[0].Position)

	assert.Equal(t, "chest", objs[1].Type)
	assert.Equal(t, ShapeRectangle, objs[1].Shape)

	assert.Equal(t, ShapePolygon, objs[2].Shape)
	assert.Equal(t, []PixelCoord{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, objs[2].Points)

	assert.Equal(t, ShapePolyline, objs[3].Shape)
	assert.Equal(t, ShapeEllipse, objs[4].Shape)

	assert.Equal(t, ShapeText, objs[5].Shape)
	require.NotNil(t, objs[5].Text)
	assert.Equal(t, "hello", objs[5].Text.Text)
	assert.True(t, objs[5].Text.Wrap)

	assert.Equal(t, ShapeTile, objs[6].Shape)
	assert.Equal(t, WithFlags(2, Flip{Vertical: true}), objs[6].GID)
	assert.False(t, objs[6].Visible)
	assert.True(t, objs[0].Visible)

	hp, ok := objs[7].Properties.Int("hp")
	assert.True(t, ok)
	assert.Equal(t, 10, hp)
}

func TestLoadMapProperties(t *testing.T) {
	d := orthoMap(1, 1, tileLayerDoc("ground", 1, 1, []uint32{0}))
	d["properties"] = []doc{
		{"name": "music", "type": "file", "value": "theme.ogg"},
		{"name": "gravity", "type": "float", "value": 9.8},
	}

	m, err := loadDoc(t, d)

	require.NoError(t, err)
	music, _ := m.Properties.String("music")
	assert.Equal(t, "theme.ogg", music)
	gravity, _ := m.Properties.Float("gravity")
	assert.Equal(t, 9.8, gravity)
}
