package tiled

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *LevelStore {
	s, err := OpenLevelStore(filepath.Join(t.TempDir(), "level.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storeLevel(t *testing.T) *LevelDefinition {
	d := orthoMap(4, 4,
		tileLayerDoc("ground", 4, 4, filled(16, 1)),
		tileLayerDoc("walls", 4, 4, []uint32{0, 0, 0, 0, 0, WithFlags(2, Flip{Horizontal: true}), 0, 0, 0, 0, 0, 0, 0, 0, 0, 3}),
		objectLayerDoc("things",
			doc{"id": 1, "type": "enemy", "name": "grunt", "x": 40, "y": 50, "properties": []doc{
				{"name": "hp", "type": "int", "value": 3},
				{"name": "speed", "type": "float", "value": 1.5},
			}},
			doc{"id": 2, "x": 100, "y": 100, "polygon": []doc{{"x": 0, "y": 0}, {"x": 8, "y": 0}, {"x": 8, "y": 8}}},
			doc{"id": 3, "x": 10, "y": 10, "text": doc{"text": "hi"}},
		),
		objectLayerDoc("collision", doc{"id": 1, "x": 0, "y": 120, "width": 128, "height": 8}),
	)
	d["properties"] = []doc{{"name": "music", "type": "string", "value": "theme.ogg"}}
	m := mustLoad(t, d)

	cfg := ConfigFor(m)
	cfg.TypeToPlaceholder = map[string]string{"enemy": "prefabs/grunt"}
	return mustConvert(t, m, cfg)
}

func TestStoreSaveAndRead(t *testing.T) {
	s := testStore(t)
	level := storeLevel(t)

	require.NoError(t, s.Save(level))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, &StoreInfo{Orientation: Orthogonal, RenderOrder: RightDown, TileWidth: 32, TileHeight: 32, PixelHeight: 128}, info)

	levels, err := s.ZLevels()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, levels)

	bounds, err := s.Bounds()
	require.NoError(t, err)
	assert.Equal(t, TileBounds{Min: TileCoord{X: 0, Y: 0}, Max: TileCoord{X: 3, Y: 3}}, bounds)

	tile, err := s.At(1, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, tile)
	assert.Equal(t, level.TileLayers[1].Tiles[0], *tile)
	assert.True(t, tile.Flip.Horizontal)

	tile, err = s.At(0, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, tile)

	music, err := s.Properties(srcLevel)
	require.NoError(t, err)
	v, _ := music.String("music")
	assert.Equal(t, "theme.ogg", v)
}

func TestStoreMatchesLevelPlacements(t *testing.T) {
	s := testStore(t)
	level := storeLevel(t)
	require.NoError(t, s.Save(level))

	min, max := TileCoord{X: 1, Y: 0}, TileCoord{X: 3, Y: 2}
	for _, p := range []Placements{level, s} {
		levels, err := p.ZLevels()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, levels)
	}

	for _, z := range []int{0, 1} {
		expect, err := level.TilesIn(z, min, max)
		require.NoError(t, err)

		result, err := s.TilesIn(z, min, max)
		require.NoError(t, err)

		assert.Equal(t, expect, result, "z %d", z)
	}
}

func TestStoreEntities(t *testing.T) {
	s := testStore(t)
	level := storeLevel(t)
	require.NoError(t, s.Save(level))

	entities, err := s.Entities(PixelCoord{X: 0, Y: 0}, PixelCoord{X: 128, Y: 128})
	require.NoError(t, err)
	require.Equal(t, 4, len(entities))

	byKey := map[string]*EntityPlacement{}
	for _, e := range entities {
		byKey[entitySrc(e.Layer, e.ID)] = e
	}
	for _, e := range level.Entities {
		stored, ok := byKey[entitySrc(e.Layer, e.ID)]
		if assert.True(t, ok, "%s %d", e.Layer, e.ID) {
			assert.Equal(t, e, stored)
		}
	}

	grunt := byKey[entitySrc("things", 1)]
	assert.Equal(t, "prefabs/grunt", grunt.Placeholder)
	hp, _ := grunt.Properties.Int("hp")
	assert.Equal(t, 3, hp)
	speed, _ := grunt.Properties.Float("speed")
	assert.Equal(t, 1.5, speed)

	assert.True(t, byKey[entitySrc("collision", 1)].Collision)

	// only the polygon's anchor is in this area
	entities, err = s.Entities(PixelCoord{X: 90, Y: 90}, PixelCoord{X: 110, Y: 110})
	require.NoError(t, err)
	require.Equal(t, 1, len(entities))
	assert.Equal(t, ShapePolygon, entities[0].Shape)
	assert.Equal(t, 3, len(entities[0].Points))
}

func TestStoreSaveTwice(t *testing.T) {
	s := testStore(t)
	level := storeLevel(t)

	require.NoError(t, s.Save(level))
	require.NoError(t, s.Save(level))

	tiles, err := s.TilesIn(0, TileCoord{X: 0, Y: 0}, TileCoord{X: 3, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, 16, len(tiles))

	entities, err := s.Entities(PixelCoord{X: -1000, Y: -1000}, PixelCoord{X: 1000, Y: 1000})
	require.NoError(t, err)
	assert.Equal(t, 4, len(entities))
}

func TestStoreLargeLevel(t *testing.T) {
	// more tiles than fit in a single insert
	m := mustLoad(t, infiniteMap(infiniteLayerDoc("ground",
		chunkDoc(-32, -32, 32, 32, filled(1024, 1)),
		chunkDoc(0, 0, 32, 32, filled(1024, 2)),
	)))
	level := mustConvert(t, m, ConfigFor(m))

	s := testStore(t)
	require.NoError(t, s.Save(level))

	tiles, err := s.TilesIn(0, TileCoord{X: -100, Y: -100}, TileCoord{X: 100, Y: 100})
	require.NoError(t, err)
	assert.Equal(t, 2048, len(tiles))

	tiles, err = s.TilesIn(0, TileCoord{X: -1, Y: -1}, TileCoord{X: 0, Y: 0})
	require.NoError(t, err)
	assert.Equal(t, []TileCoord{{X: -1, Y: -1}, {X: 0, Y: 0}}, worlds(tiles))

	bounds, err := s.Bounds()
	require.NoError(t, err)
	assert.Equal(t, TileBounds{Min: TileCoord{X: -32, Y: -32}, Max: TileCoord{X: 31, Y: 31}}, bounds)
}

func TestStoreEmpty(t *testing.T) {
	s := testStore(t)

	bounds, err := s.Bounds()
	require.NoError(t, err)
	assert.True(t, bounds.Empty)

	levels, err := s.ZLevels()
	require.NoError(t, err)
	assert.Equal(t, 0, len(levels))

	props, err := s.Properties("nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, props.Len())

	_, err = s.Info()
	assert.Error(t, err)
}

func TestStoreSetProperties(t *testing.T) {
	s := testStore(t)
	p := NewProperties()
	p.SetBool("dark", true)

	require.NoError(t, s.SetProperties(layerSrc("ground"), p))

	result, err := s.Properties(layerSrc("ground"))
	require.NoError(t, err)
	dark, ok := result.Bool("dark")
	assert.True(t, ok)
	assert.True(t, dark)
}

func TestStoreReopen(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "level.sqlite")
	s, err := OpenLevelStore(fname)
	require.NoError(t, err)
	require.NoError(t, s.Save(storeLevel(t)))
	require.NoError(t, s.Close())

	s, err = OpenLevelStore(fname)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, fname, s.Filename())
	levels, err := s.ZLevels()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, levels)
}

func TestNewLevelStore(t *testing.T) {
	s, err := NewLevelStore()
	require.NoError(t, err)
	defer os.Remove(s.Filename())
	defer s.Close()

	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(s.Filename()))
	assert.NoError(t, s.Save(storeLevel(t)))
}

func TestStoreEntitiesManyProperties(t *testing.T) {
	// more entities than a single properties lookup holds
	count := batchSize*2 + 7

	level := &LevelDefinition{
		Orientation: Orthogonal,
		RenderOrder: RightDown,
		TileWidth:   32,
		TileHeight:  32,
		Properties:  NewProperties(),
	}
	for i := 0; i < count; i++ {
		props := NewProperties()
		props.SetInt("index", i)
		level.Entities = append(level.Entities, &EntityPlacement{
			ID:         i + 1,
			Layer:      "crowd",
			Position:   PixelCoord{X: float64(i % 50), Y: float64(i / 50)},
			Shape:      ShapePoint,
			Tileset:    -1,
			Visible:    true,
			Properties: props,
		})
	}

	s := testStore(t)
	require.NoError(t, s.Save(level))

	entities, err := s.Entities(PixelCoord{X: 0, Y: 0}, PixelCoord{X: 1000, Y: 1000})
	require.NoError(t, err)
	require.Equal(t, count, len(entities))

	for _, e := range entities {
		index, ok := e.Properties.Int("index")
		assert.True(t, ok, "entity %d", e.ID)
		assert.Equal(t, e.ID-1, index)
	}
}
