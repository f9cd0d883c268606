package tiled

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqlUpdateTiles = `INSERT INTO tiles (id, x, y, z, layer, gid, localid, tileset, offx, offy, flip)
		VALUES (:id, :x, :y, :z, :layer, :gid, :localid, :tileset, :offx, :offy, :flip)
		ON CONFLICT (id) DO UPDATE SET layer=EXCLUDED.layer, gid=EXCLUDED.gid, localid=EXCLUDED.localid,
		tileset=EXCLUDED.tileset, offx=EXCLUDED.offx, offy=EXCLUDED.offy, flip=EXCLUDED.flip;`
	sqlUpdateEntities = `INSERT INTO entities (key, id, layer, name, type, placeholder, unmapped, collision, visible, z,
		x, y, width, height, rotation, shape, gid, tileset, flip, points, text)
		VALUES (:key, :id, :layer, :name, :type, :placeholder, :unmapped, :collision, :visible, :z,
		:x, :y, :width, :height, :rotation, :shape, :gid, :tileset, :flip, :points, :text)
		ON CONFLICT (key) DO UPDATE SET name=EXCLUDED.name, type=EXCLUDED.type, placeholder=EXCLUDED.placeholder,
		unmapped=EXCLUDED.unmapped, collision=EXCLUDED.collision, visible=EXCLUDED.visible, z=EXCLUDED.z,
		x=EXCLUDED.x, y=EXCLUDED.y, width=EXCLUDED.width, height=EXCLUDED.height, rotation=EXCLUDED.rotation,
		shape=EXCLUDED.shape, gid=EXCLUDED.gid, tileset=EXCLUDED.tileset, flip=EXCLUDED.flip,
		points=EXCLUDED.points, text=EXCLUDED.text;`
	sqlUpdateLevel = `INSERT INTO level (id, orientation, renderorder, tilewidth, tileheight, flipy, pixelheight)
		VALUES (1, :orientation, :renderorder, :tilewidth, :tileheight, :flipy, :pixelheight)
		ON CONFLICT (id) DO UPDATE SET orientation=EXCLUDED.orientation, renderorder=EXCLUDED.renderorder,
		tilewidth=EXCLUDED.tilewidth, tileheight=EXCLUDED.tileheight, flipy=EXCLUDED.flipy,
		pixelheight=EXCLUDED.pixelheight;`
	sqlGetProps    = `SELECT src,data FROM properties WHERE `
	sqlUpdateProps = `INSERT INTO properties (src, data) VALUES (:src, :data) ON CONFLICT (src) DO UPDATE SET data=EXCLUDED.data;`

	// rows per multi row insert, keeps us under sqlite's bound variable limit
	batchSize = 500

	// properties table keys
	srcLevel = "level"
)

// namedQuery allows us to use either a transaction.NamedQuery or DB.NamedQuery
// in our sub functions.
// Tl;dr it's helpful for using the same code in & out of transactions.
type namedQuery func(string, interface{}) (*sqlx.Rows, error)

// NewLevelStore creates a store with a random name in the os tempdir.
func NewLevelStore() (*LevelStore, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fname := filepath.Join(os.TempDir(), fmt.Sprintf("level.%d.sqlite", rng.Intn(1000000)))
	return OpenLevelStore(fname)
}

// OpenLevelStore given it's filename (database file) on disk.
// Will create if it doesn't exist.
func OpenLevelStore(fname string) (*LevelStore, error) {
	db, err := sqlx.Open("sqlite3", fname)
	if err != nil {
		return nil, &IOError{Path: fname, Err: err}
	}

	s := &LevelStore{db: db, filename: fname}
	return s, s.init()
}

// LevelStore holds converted levels on disk so large (infinite) maps can be
// converted once & then read back a region at a time.
//
// Saving more than one level into the same store merges them; tiles are
// unique by (x,y,z) & entities by (layer,id).
type LevelStore struct {
	filename string
	db       *sqlx.DB
}

// StoreInfo is the level wide data of a store
type StoreInfo struct {
	Orientation Orientation `db:"orientation"`
	RenderOrder RenderOrder `db:"renderorder"`
	TileWidth   int         `db:"tilewidth"`
	TileHeight  int         `db:"tileheight"`
	FlipY       bool        `db:"flipy"`
	PixelHeight float64     `db:"pixelheight"`
}

// Filename returns the path to the level data on disk
func (s *LevelStore) Filename() string {
	return s.filename
}

// Close the underlying database
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// Save writes `level` into the store in a single transaction.
func (s *LevelStore) Save(level *LevelDefinition) error {
	tiles := []dbTile{}
	for _, tl := range level.TileLayers {
		for _, t := range tl.Tiles {
			tiles = append(tiles, newDBTile(tl.Name, t))
		}
	}

	entities := []dbEntity{}
	props := []dbProp{newDBProp(srcLevel, level.Properties)}
	for _, tl := range level.TileLayers {
		props = append(props, newDBProp(layerSrc(tl.Name), tl.Properties))
	}
	for _, e := range level.Entities {
		dbe, err := newDBEntity(e)
		if err != nil {
			return err
		}
		entities = append(entities, dbe)
		props = append(props, newDBProp(dbe.Key, e.Properties))
	}

	txn, err := s.db.Beginx()
	if err != nil {
		return err
	}

	_, err = txn.NamedExec(sqlUpdateLevel, StoreInfo{
		Orientation: level.Orientation,
		RenderOrder: level.RenderOrder,
		TileWidth:   level.TileWidth,
		TileHeight:  level.TileHeight,
		FlipY:       level.FlipY,
		PixelHeight: level.MapPixelHeight,
	})
	if err != nil {
		txn.Rollback()
		return err
	}

	for _, batch := range []struct {
		query string
		rows  func(i, j int) interface{}
		count int
	}{
		{sqlUpdateTiles, func(i, j int) interface{} { return tiles[i:j] }, len(tiles)},
		{sqlUpdateEntities, func(i, j int) interface{} { return entities[i:j] }, len(entities)},
		{sqlUpdateProps, func(i, j int) interface{} { return props[i:j] }, len(props)},
	} {
		for i := 0; i < batch.count; i += batchSize {
			j := i + batchSize
			if j > batch.count {
				j = batch.count
			}
			_, err = txn.NamedExec(batch.query, batch.rows(i, j))
			if err != nil {
				txn.Rollback()
				return err
			}
		}
	}

	return txn.Commit()
}

// Info returns the level wide settings of the last saved level
func (s *LevelStore) Info() (*StoreInfo, error) {
	info := &StoreInfo{}
	err := s.db.Get(info, "SELECT orientation,renderorder,tilewidth,tileheight,flipy,pixelheight FROM level WHERE id=1;")
	if err != nil {
		return nil, err
	}
	return info, nil
}

// At returns the tile that exists at the given location (or nil if unset)
func (s *LevelStore) At(x, y, z int) (*TilePlacement, error) {
	rows, err := s.db.NamedQuery(
		"SELECT * FROM tiles WHERE x=:x0 AND y=:y0 AND z=:z0 LIMIT 1;",
		map[string]interface{}{
			"x0": x,
			"y0": y,
			"z0": z,
		},
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found *TilePlacement
	tile := dbTile{}
	for rows.Next() { // there's at most one due to LIMIT 1
		if err := rows.StructScan(&tile); err != nil {
			return nil, err
		}
		t := tile.placement()
		found = &t
	}

	return found, rows.Err()
}

// TilesIn returns placements on z-layer `z` in the inclusive rectangle
// min -> max.
func (s *LevelStore) TilesIn(z int, min, max TileCoord) ([]TilePlacement, error) {
	rows, err := s.db.NamedQuery(
		"SELECT * FROM tiles WHERE z=:z AND x>=:x0 AND x<=:x1 AND y>=:y0 AND y<=:y1 ORDER BY y, x;",
		map[string]interface{}{
			"z":  z,
			"x0": min.X, "x1": max.X,
			"y0": min.Y, "y1": max.Y,
		},
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := []TilePlacement{}
	tile := dbTile{}
	for rows.Next() {
		if err := rows.StructScan(&tile); err != nil {
			return nil, err
		}
		found = append(found, tile.placement())
	}

	return found, rows.Err()
}

// Bounds returns the inclusive tile rectangle covering every stored tile
func (s *LevelStore) Bounds() (TileBounds, error) {
	found := struct {
		MinX *int `db:"minx"`
		MinY *int `db:"miny"`
		MaxX *int `db:"maxx"`
		MaxY *int `db:"maxy"`
	}{}
	err := s.db.Get(&found, "SELECT MIN(x) AS minx, MIN(y) AS miny, MAX(x) AS maxx, MAX(y) AS maxy FROM tiles;")
	if err != nil {
		return TileBounds{}, err
	}
	if found.MinX == nil {
		return TileBounds{Empty: true}, nil
	}
	return TileBounds{
		Min: TileCoord{X: *found.MinX, Y: *found.MinY},
		Max: TileCoord{X: *found.MaxX, Y: *found.MaxY},
	}, nil
}

// ZLevels returns all z-orders with at least one tile, low -> high
func (s *LevelStore) ZLevels() ([]int, error) {
	levels := []int{}
	err := s.db.Select(&levels, "SELECT DISTINCT z FROM tiles ORDER BY z;")
	return levels, err
}

// Entities returns all entities whose position lies within the inclusive
// pixel rectangle min -> max, in (z, id) order.
func (s *LevelStore) Entities(min, max PixelCoord) ([]*EntityPlacement, error) {
	rows, err := s.db.NamedQuery(
		"SELECT * FROM entities WHERE x>=:x0 AND x<=:x1 AND y>=:y0 AND y<=:y1 ORDER BY z, id;",
		map[string]interface{}{
			"x0": min.X, "x1": max.X,
			"y0": min.Y, "y1": max.Y,
		},
	)
	if err != nil {
		return nil, err
	}

	found := []*EntityPlacement{}
	keys := []string{}
	for rows.Next() {
		dbe := dbEntity{}
		if err := rows.StructScan(&dbe); err != nil {
			rows.Close()
			return nil, err
		}
		e, err := dbe.placement()
		if err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, e)
		keys = append(keys, dbe.Key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	props, err := s.properties(s.db.NamedQuery, keys...)
	if err != nil {
		return nil, err
	}
	for i, e := range found {
		e.Properties = NewProperties().Merge(props[keys[i]])
	}

	return found, nil
}

// properties returns set properties by their src name. Lookups are split
// into batchSize queries.
func (s *LevelStore) properties(do namedQuery, in ...string) (map[string]*Properties, error) {
	result := map[string]*Properties{}

	for i := 0; i < len(in); i += batchSize {
		j := i + batchSize
		if j > len(in) {
			j = len(in)
		}
		if err := s.propertiesBatch(do, result, in[i:j]); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// propertiesBatch reads properties for `in` into `result` with one query
func (s *LevelStore) propertiesBatch(do namedQuery, result map[string]*Properties, in []string) error {
	args := map[string]interface{}{}
	or := []string{}

	for i, src := range in {
		name := fmt.Sprintf("prop_%d", i)

		args[name] = src
		or = append(or, fmt.Sprintf("src=:%s", name))
	}

	qstr := fmt.Sprintf("%s %s LIMIT %d;", sqlGetProps, strings.Join(or, " OR "), len(in))

	rows, err := do(qstr, args)
	if err != nil {
		return err
	}
	defer rows.Close()

	r := dbProp{}
	for rows.Next() {
		err = rows.StructScan(&r)
		if err != nil {
			return err
		}

		props, err := r.properties()
		if err != nil {
			return err
		}
		result[r.Src] = props
	}

	return rows.Err()
}

// Properties returns the properties saved for the level (src "level"), a
// tile layer ("layer/<name>") or an entity ("entity/<layer>/<id>").
// If no properties are set an empty properties will be returned.
func (s *LevelStore) Properties(src string) (*Properties, error) {
	result, err := s.properties(s.db.NamedQuery, src)
	if err != nil {
		return nil, err
	}

	props, _ := result[src]
	if props == nil {
		return NewProperties(), nil
	}

	return props, nil
}

// SetProperties for the given src. This doesn't do an update / merge just overwrites.
func (s *LevelStore) SetProperties(src string, props *Properties) error {
	_, err := s.db.NamedExec(sqlUpdateProps, newDBProp(src, props))
	return err
}

// init creates some DB tables for us if they don't exist
func (s *LevelStore) init() error {
	for _, create := range []string{
		`CREATE TABLE IF NOT EXISTS level(
		id INTEGER PRIMARY KEY,
		orientation TEXT NOT NULL,
		renderorder TEXT NOT NULL,
		tilewidth INTEGER NOT NULL,
		tileheight INTEGER NOT NULL,
		flipy BOOLEAN NOT NULL,
		pixelheight REAL NOT NULL
	    );`,
		`CREATE TABLE IF NOT EXISTS tiles(
		id TEXT PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		z INTEGER NOT NULL,
		layer TEXT NOT NULL,
		gid INTEGER NOT NULL,
		localid INTEGER NOT NULL,
		tileset INTEGER NOT NULL,
		offx REAL NOT NULL,
		offy REAL NOT NULL,
		flip INTEGER NOT NULL
	    );`,
		`CREATE INDEX IF NOT EXISTS tiles_zxy ON tiles (z, x, y);`,
		`CREATE TABLE IF NOT EXISTS entities(
		key TEXT PRIMARY KEY,
		id INTEGER NOT NULL,
		layer TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		placeholder TEXT NOT NULL,
		unmapped BOOLEAN NOT NULL,
		collision BOOLEAN NOT NULL,
		visible BOOLEAN NOT NULL,
		z INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		width REAL NOT NULL,
		height REAL NOT NULL,
		rotation REAL NOT NULL,
		shape TEXT NOT NULL,
		gid INTEGER NOT NULL,
		tileset INTEGER NOT NULL,
		flip INTEGER NOT NULL,
		points TEXT NOT NULL,
		text TEXT NOT NULL
	    );`,
		`CREATE TABLE IF NOT EXISTS properties(
		src TEXT PRIMARY KEY,
		data TEXT
	    );`,
	} {
		if _, err := s.db.Exec(create); err != nil {
			return err
		}
	}
	return nil
}

// layerSrc is the properties key of a tile layer
func layerSrc(name string) string {
	return "layer/" + name
}

// dbTile object encodes a single tile.
// The ID here is used to insert/update on a unique tile by it's (x,y,z)
// with a more straight forward query.
type dbTile struct {
	ID      string  `db:"id"`
	X       int     `db:"x"`
	Y       int     `db:"y"`
	Z       int     `db:"z"`
	Layer   string  `db:"layer"`
	GID     int64   `db:"gid"`
	LocalID int64   `db:"localid"`
	Tileset int     `db:"tileset"`
	OffX    float64 `db:"offx"`
	OffY    float64 `db:"offy"`
	Flip    int64   `db:"flip"`
}

// newDBTile crafts a dbTile struct given it's inputs
func newDBTile(layer string, t TilePlacement) dbTile {
	return dbTile{
		ID:      fmt.Sprintf("%d-%d-%d", t.World.X, t.World.Y, t.ZOrder),
		X:       t.World.X,
		Y:       t.World.Y,
		Z:       t.ZOrder,
		Layer:   layer,
		GID:     int64(t.GID),
		LocalID: int64(t.LocalID),
		Tileset: t.Tileset,
		OffX:    t.Offset.X,
		OffY:    t.Offset.Y,
		Flip:    int64(t.Flip.bits()),
	}
}

func (t dbTile) placement() TilePlacement {
	return TilePlacement{
		World:   TileCoord{X: t.X, Y: t.Y},
		ZOrder:  t.Z,
		GID:     uint32(t.GID),
		LocalID: uint32(t.LocalID),
		Tileset: t.Tileset,
		Offset:  PixelCoord{X: t.OffX, Y: t.OffY},
		Flip:    Flags(uint32(t.Flip)),
	}
}

// entitySrc is the key of an entity, also used for it's properties
func entitySrc(layer string, id int) string {
	return fmt.Sprintf("entity/%s/%d", layer, id)
}

// dbEntity object encodes a single entity, keyed by entitySrc.
// Points & text are stored as JSON, properties live in the properties table
// under the same key.
type dbEntity struct {
	Key         string  `db:"key"`
	ID          int     `db:"id"`
	Layer       string  `db:"layer"`
	Name        string  `db:"name"`
	Type        string  `db:"type"`
	Placeholder string  `db:"placeholder"`
	Unmapped    bool    `db:"unmapped"`
	Collision   bool    `db:"collision"`
	Visible     bool    `db:"visible"`
	Z           int     `db:"z"`
	X           float64 `db:"x"`
	Y           float64 `db:"y"`
	Width       float64 `db:"width"`
	Height      float64 `db:"height"`
	Rotation    float64 `db:"rotation"`
	Shape       string  `db:"shape"`
	GID         int64   `db:"gid"`
	Tileset     int     `db:"tileset"`
	Flip        int64   `db:"flip"`
	Points      string  `db:"points"`
	Text        string  `db:"text"`
}

func newDBEntity(e *EntityPlacement) (dbEntity, error) {
	points, err := json.Marshal(e.Points)
	if err != nil {
		return dbEntity{}, err
	}
	text := []byte{}
	if e.Text != nil {
		text, err = json.Marshal(e.Text)
		if err != nil {
			return dbEntity{}, err
		}
	}

	return dbEntity{
		Key:         entitySrc(e.Layer, e.ID),
		ID:          e.ID,
		Layer:       e.Layer,
		Name:        e.Name,
		Type:        e.Type,
		Placeholder: e.Placeholder,
		Unmapped:    e.Unmapped,
		Collision:   e.Collision,
		Visible:     e.Visible,
		Z:           e.ZOrder,
		X:           e.Position.X,
		Y:           e.Position.Y,
		Width:       e.Width,
		Height:      e.Height,
		Rotation:    e.Rotation,
		Shape:       string(e.Shape),
		GID:         int64(e.GID),
		Tileset:     e.Tileset,
		Flip:        int64(e.Flip.bits()),
		Points:      string(points),
		Text:        string(text),
	}, nil
}

func (d dbEntity) placement() (*EntityPlacement, error) {
	e := &EntityPlacement{
		ID:          d.ID,
		Name:        d.Name,
		Type:        d.Type,
		Placeholder: d.Placeholder,
		Unmapped:    d.Unmapped,
		Layer:       d.Layer,
		ZOrder:      d.Z,
		Collision:   d.Collision,
		Position:    PixelCoord{X: d.X, Y: d.Y},
		Width:       d.Width,
		Height:      d.Height,
		Rotation:    d.Rotation,
		Visible:     d.Visible,
		Shape:       Shape(d.Shape),
		GID:         uint32(d.GID),
		Tileset:     d.Tileset,
		Flip:        Flags(uint32(d.Flip)),
	}
	if err := json.Unmarshal([]byte(d.Points), &e.Points); err != nil {
		return nil, err
	}
	if d.Text != "" {
		e.Text = &Text{}
		if err := json.Unmarshal([]byte(d.Text), e.Text); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// dbProp object encodes properties for a single src.
type dbProp struct {
	Src  string `db:"src"`
	Data string `db:"data"`
}

// propBlock is how properties are written as JSON in the db
type propBlock struct {
	I map[string]int
	F map[string]float64
	S map[string]string
	B map[string]bool
}

// newDBProp crafts a dbProp struct given it's inputs.
// Properties are encoded into JSON.
func newDBProp(src string, props *Properties) dbProp {
	props = props.Copy()
	databytes, _ := json.Marshal(propBlock{props.ints, props.floats, props.strings, props.bools})
	return dbProp{Src: src, Data: string(databytes)}
}

func (r dbProp) properties() (*Properties, error) {
	// fresh block each time so results don't bleed together
	block := propBlock{}
	if err := json.Unmarshal([]byte(r.Data), &block); err != nil {
		return nil, err
	}

	props := NewProperties()
	for k, v := range block.I {
		props.SetInt(k, v)
	}
	for k, v := range block.F {
		props.SetFloat(k, v)
	}
	for k, v := range block.S {
		props.SetString(k, v)
	}
	for k, v := range block.B {
		props.SetBool(k, v)
	}
	return props, nil
}
