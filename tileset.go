package tiled

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Tileset is a set of tiles sharing an image (or an image collection) along
// with where their IDs start in a map's global ID space.
type Tileset struct {
	FirstGID    uint32
	Name        string
	TileWidth   int // in pixels
	TileHeight  int // in pixels
	TileCount   int
	Columns     int
	Spacing     int
	Margin      int
	Image       string
	ImageWidth  int
	ImageHeight int

	// TileOffset is the pixel offset applied when drawing tiles of this set
	TileOffset PixelCoord

	// Source is the external file as referenced by the map ("" if embedded),
	// Path where we read it from
	Source   string
	Path     string
	External bool

	Properties *Properties
}

// span is the number of gids claimed by the tileset, or 0 where we can't
// tell (image collections may have sparse tile IDs).
func (t *Tileset) span() uint32 {
	if t.Image == "" || t.TileCount <= 0 {
		return 0
	}
	return uint32(t.TileCount)
}

// Contains returns if the bare gid `gid` belongs to this tileset.
// Image collection tilesets claim everything from FirstGID up.
func (t *Tileset) Contains(gid uint32) bool {
	if gid < t.FirstGID || gid == 0 {
		return false
	}
	n := t.span()
	return n == 0 || gid-t.FirstGID < n
}

// copy returns a deep copy
func (t *Tileset) copy() *Tileset {
	c := *t
	c.Properties = t.Properties.Copy()
	return &c
}

// ParseEmbedded reads a tileset embedded in a map's "tilesets" list.
func ParseEmbedded(raw json.RawMessage) (*Tileset, error) {
	jt := &jsonTileset{}
	if err := json.Unmarshal(raw, jt); err != nil {
		return nil, &ParseError{Field: "tilesets", Err: err}
	}

	ts, err := tilesetFromJSON("", jt)
	if err != nil {
		return nil, err
	}
	if jt.FirstGID != nil {
		ts.FirstGID = *jt.FirstGID
	}
	return ts, nil
}

// LoadExternal reads a tileset file. Files ending in .tsx or .xml are read
// as XML, anything else as JSON.
func LoadExternal(path string) (*Tileset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".xml":
		xt := &xmlTileset{}
		if err := xml.Unmarshal(data, xt); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		return tilesetFromXML(path, xt)
	}

	jt := &jsonTileset{}
	if err := json.Unmarshal(data, jt); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if jt.Type != "" && jt.Type != "tileset" {
		return nil, &ParseError{Path: path, Field: "type", Err: fmt.Errorf("expected \"tileset\", got %q", jt.Type)}
	}
	return tilesetFromJSON(path, jt)
}

// tilesetFromJSON validates & converts a JSON tileset. `path` is only used in
// errors.
func tilesetFromJSON(path string, jt *jsonTileset) (*Tileset, error) {
	if err := requirePositive(path, "tilewidth", jt.TileWidth); err != nil {
		return nil, err
	}
	if err := requirePositive(path, "tileheight", jt.TileHeight); err != nil {
		return nil, err
	}
	if jt.TileCount == nil {
		return nil, &ParseError{Path: path, Field: "tilecount", Err: errMissing}
	}

	ts := &Tileset{
		Name:        jt.Name,
		TileWidth:   *jt.TileWidth,
		TileHeight:  *jt.TileHeight,
		TileCount:   *jt.TileCount,
		Columns:     jt.Columns,
		Spacing:     jt.Spacing,
		Margin:      jt.Margin,
		Image:       jt.Image,
		ImageWidth:  jt.ImageWidth,
		ImageHeight: jt.ImageHeight,
	}
	if jt.TileOffset != nil {
		ts.TileOffset = PixelCoord{X: float64(jt.TileOffset.X), Y: float64(jt.TileOffset.Y)}
	}

	props, err := newPropertiesFromJSON(jt.Properties)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Path = path
		}
		return nil, err
	}
	ts.Properties = props

	return ts, checkTilesetCounts(path, ts)
}

// tilesetFromXML validates & converts a TSX tileset
func tilesetFromXML(path string, xt *xmlTileset) (*Tileset, error) {
	if err := requirePositive(path, "tilewidth", xt.TileWidth); err != nil {
		return nil, err
	}
	if err := requirePositive(path, "tileheight", xt.TileHeight); err != nil {
		return nil, err
	}
	if xt.TileCount == nil {
		return nil, &ParseError{Path: path, Field: "tilecount", Err: errMissing}
	}

	ts := &Tileset{
		Name:       xt.Name,
		TileWidth:  *xt.TileWidth,
		TileHeight: *xt.TileHeight,
		TileCount:  *xt.TileCount,
		Columns:    xt.Columns,
		Spacing:    xt.Spacing,
		Margin:     xt.Margin,
		Properties: newPropertiesFromList(xt.Properties),
	}
	if xt.Image != nil {
		if xt.Image.Source == "" {
			return nil, &ParseError{Path: path, Field: "image.source", Err: errMissing}
		}
		ts.Image = xt.Image.Source
		ts.ImageWidth = xt.Image.Width
		ts.ImageHeight = xt.Image.Height
	}
	if xt.TileOffset != nil {
		ts.TileOffset = PixelCoord{X: float64(xt.TileOffset.X), Y: float64(xt.TileOffset.Y)}
	}

	return ts, checkTilesetCounts(path, ts)
}

func checkTilesetCounts(path string, ts *Tileset) error {
	fields := []string{"tilecount", "columns", "spacing", "margin"}
	for i, v := range []int{ts.TileCount, ts.Columns, ts.Spacing, ts.Margin} {
		if v < 0 {
			return &ParseError{Path: path, Field: fields[i], Err: errNegative}
		}
	}
	return nil
}

func requirePositive(path, field string, v *int) error {
	if v == nil {
		return &ParseError{Path: path, Field: field, Err: errMissing}
	}
	if *v <= 0 {
		return &ParseError{Path: path, Field: field, Err: errNotPositive}
	}
	return nil
}

// DefaultCache is used by loaders not given a cache of their own.
var DefaultCache = NewTilesetCache()

// CacheStats reports how a TilesetCache has been used
type CacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

// TilesetCache holds parsed external tilesets by (absolute) path.
//
// A single lock is held over lookup, parse & insert so concurrent loads of
// the same file parse it once. Entries are never modified once inserted;
// callers are handed copies.
type TilesetCache struct {
	lock    sync.Mutex
	entries map[string]*Tileset
	hits    int
	misses  int
}

// NewTilesetCache returns an empty cache
func NewTilesetCache() *TilesetCache {
	return &TilesetCache{entries: map[string]*Tileset{}}
}

// cacheKey normalises a path
func cacheKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Load returns the tileset at `path`, reading it if we haven't already.
// Failed loads are not cached.
func (c *TilesetCache) Load(path string) (*Tileset, error) {
	key := cacheKey(path)

	c.lock.Lock()
	defer c.lock.Unlock()

	if ts, ok := c.entries[key]; ok {
		c.hits++
		return ts.copy(), nil
	}
	c.misses++

	ts, err := LoadExternal(path)
	if err != nil {
		return nil, err
	}
	c.entries[key] = ts

	return ts.copy(), nil
}

// Forget drops the entry for `path` (if any) so the next Load re-reads it.
func (c *TilesetCache) Forget(path string) bool {
	key := cacheKey(path)

	c.lock.Lock()
	defer c.lock.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Contains returns if `path` is cached
func (c *TilesetCache) Contains(path string) bool {
	key := cacheKey(path)

	c.lock.Lock()
	defer c.lock.Unlock()

	_, ok := c.entries[key]
	return ok
}

// Stats returns hit / miss counts
func (c *TilesetCache) Stats() CacheStats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
