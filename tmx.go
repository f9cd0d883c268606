/* this file is a simplified set of structs for reading Tiled JSON maps and
JSON / XML (tsx) tilesets.

We only need a part of the feature set of Tiled in order to do what we want
so we only bother to parse those things.
- no templates, wang sets or tile animations
- no per tile collision shapes
- orthogonal & isometric orientations only
*/
package tiled

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
)

// jsonMap is the root of a Tiled JSON map.
// Pointer fields are required & checked for presence by the loader.
type jsonMap struct {
	Width       *int               `json:"width"`  // in tiles
	Height      *int               `json:"height"` // in tiles
	TileWidth   *int               `json:"tilewidth"`
	TileHeight  *int               `json:"tileheight"`
	Orientation *string            `json:"orientation"`
	RenderOrder string             `json:"renderorder"`
	Infinite    bool               `json:"infinite"`
	Layers      *[]jsonLayer       `json:"layers"`
	Tilesets    *[]json.RawMessage `json:"tilesets"`
	Properties  []jsonProperty     `json:"properties"`
}

// jsonLayer is any kind of layer, told apart by Type
// (tilelayer, objectgroup, imagelayer, group)
type jsonLayer struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	OffsetX     float64         `json:"offsetx"`
	OffsetY     float64         `json:"offsety"`
	Opacity     *float64        `json:"opacity"`
	Visible     *bool           `json:"visible"`
	Properties  []jsonProperty  `json:"properties"`
	Data        json.RawMessage `json:"data"`
	Encoding    string          `json:"encoding"`
	Compression string          `json:"compression"`
	Chunks      []jsonChunk     `json:"chunks"`
	Objects     []jsonObject    `json:"objects"`
	Layers      []jsonLayer     `json:"layers"`
	Image       string          `json:"image"`
	ParallaxX   *float64        `json:"parallaxx"`
	ParallaxY   *float64        `json:"parallaxy"`
	RepeatX     bool            `json:"repeatx"`
	RepeatY     bool            `json:"repeaty"`
}

type jsonChunk struct {
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Data   json.RawMessage `json:"data"`
}

type jsonObject struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Class      string         `json:"class"` // replaces 'type' as of Tiled 1.9
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Rotation   float64        `json:"rotation"`
	GID        uint32         `json:"gid"`
	Visible    *bool          `json:"visible"`
	Ellipse    bool           `json:"ellipse"`
	Point      bool           `json:"point"`
	Polygon    []jsonPoint    `json:"polygon"`
	Polyline   []jsonPoint    `json:"polyline"`
	Text       *jsonText      `json:"text"`
	Template   string         `json:"template"`
	Properties []jsonProperty `json:"properties"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type jsonText struct {
	Text       string `json:"text"`
	Wrap       bool   `json:"wrap"`
	FontFamily string `json:"fontfamily"`
	PixelSize  int    `json:"pixelsize"`
	Color      string `json:"color"`
	HAlign     string `json:"halign"`
	VAlign     string `json:"valign"`
}

// jsonTileset is both an embedded tileset (in a map) and an external JSON
// tileset file. External references only have FirstGID & Source set.
type jsonTileset struct {
	Type        string         `json:"type"`
	FirstGID    *uint32        `json:"firstgid"`
	Source      string         `json:"source"`
	Name        string         `json:"name"`
	TileWidth   *int           `json:"tilewidth"`
	TileHeight  *int           `json:"tileheight"`
	TileCount   *int           `json:"tilecount"`
	Columns     int            `json:"columns"`
	Spacing     int            `json:"spacing"`
	Margin      int            `json:"margin"`
	Image       string         `json:"image"`
	ImageWidth  int            `json:"imagewidth"`
	ImageHeight int            `json:"imageheight"`
	TileOffset  *jsonOffset    `json:"tileoffset"`
	Properties  []jsonProperty `json:"properties"`
}

type jsonOffset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// xmlTileset is a TSX file structure which represents a Tiled Tileset
type xmlTileset struct {
	XMLName    xml.Name       `xml:"tileset"`
	Name       string         `xml:"name,attr"`
	TileWidth  *int           `xml:"tilewidth,attr"`
	TileHeight *int           `xml:"tileheight,attr"`
	TileCount  *int           `xml:"tilecount,attr"`
	Columns    int            `xml:"columns,attr"`
	Spacing    int            `xml:"spacing,attr"`
	Margin     int            `xml:"margin,attr"`
	TileOffset *xmlTileOffset `xml:"tileoffset"`
	Image      *xmlImage      `xml:"image"`
	Properties []*xmlProperty `xml:"properties>property"`
}

// xmlProperty is a TSX file structure which holds a Tiled property.
type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
	Type  string `xml:"type,attr"` // string (default), int, float, bool + others kept as strings
}

// xmlImage is an image file in TSX
type xmlImage struct {
	Source string `xml:"source,attr"`
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
}

type xmlTileOffset struct {
	X int `xml:"x,attr"`
	Y int `xml:"y,attr"`
}

// layerPayload returns the bytes of a layer (or chunk) "data" field in a form
// Decode understands. Tiled writes CSV data as a JSON array of numbers, whose
// inner text is already valid CSV, and base64 data as a string.
// The bool reports whether the data was an array.
func layerPayload(raw json.RawMessage) ([]byte, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	switch raw[0] {
	case '[':
		return raw[1 : len(raw)-1], true, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, err
		}
		return []byte(s), false, nil
	}

	return nil, false, &ParseError{Field: "data", Err: errNotArrayOrString}
}
