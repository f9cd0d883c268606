package tiled

import (
	"os"
	"strings"

	"github.com/go-yaml/yaml"
)

// ConversionConfig includes settings for converting a TiledMap into a
// LevelDefinition. Zero values are filled in from the map being converted.
type ConversionConfig struct {
	MapOrientation Orientation `yaml:"orientation"`
	RenderOrder    RenderOrder `yaml:"render_order"`

	// in pixels
	TileWidth  int `yaml:"tile_width"`
	TileHeight int `yaml:"tile_height"`

	// FlipY mirrors orthogonal object positions so y grows upwards from the
	// bottom of the map.
	FlipY bool `yaml:"flip_y"`

	// TypeToPlaceholder maps object types to the placeholder (prefab, entity
	// template ..) that should be created for them.
	TypeToPlaceholder map[string]string `yaml:"placeholders"`

	// CollisionLayerPatterns are matched (case insensitive substrings)
	// against object layer names to mark the layer as collision / triggers.
	CollisionLayerPatterns []string `yaml:"collision_patterns"`
}

// DefaultConfig returns a config with default settings.
func DefaultConfig() *ConversionConfig {
	return &ConversionConfig{
		TypeToPlaceholder:      map[string]string{},
		CollisionLayerPatterns: []string{"collision", "trigger"},
	}
}

// ConfigFor returns the default config with map settings filled in.
func ConfigFor(m *TiledMap) ConversionConfig {
	return DefaultConfig().resolve(m)
}

// LoadConfig reads a YAML config file. Unset fields keep their defaults.
func LoadConfig(path string) (*ConversionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	switch cfg.MapOrientation {
	case "", Orthogonal, Isometric:
	default:
		return nil, &SchemaError{Field: "orientation", Value: cfg.MapOrientation, Reason: "unsupported orientation"}
	}
	if cfg.TileWidth < 0 || cfg.TileHeight < 0 {
		return nil, &SchemaError{Field: "tile_width/tile_height", Value: []int{cfg.TileWidth, cfg.TileHeight}, Reason: "must not be negative"}
	}

	return cfg, nil
}

// resolve returns a copy of the config with unset fields taken from `m`.
// Nothing in the result is shared with `c`.
func (c ConversionConfig) resolve(m *TiledMap) ConversionConfig {
	out := c
	if out.MapOrientation == "" {
		out.MapOrientation = m.Orientation
	}
	if out.RenderOrder == "" {
		out.RenderOrder = m.RenderOrder
	}
	if out.TileWidth == 0 {
		out.TileWidth = m.TileWidth
	}
	if out.TileHeight == 0 {
		out.TileHeight = m.TileHeight
	}

	out.TypeToPlaceholder = map[string]string{}
	for k, v := range c.TypeToPlaceholder {
		out.TypeToPlaceholder[k] = v
	}

	out.CollisionLayerPatterns = make([]string, 0, len(c.CollisionLayerPatterns))
	for _, p := range c.CollisionLayerPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out.CollisionLayerPatterns = append(out.CollisionLayerPatterns, p)
		}
	}

	return out
}

// isCollisionLayer matches a layer name against the (lower cased) patterns
func (c *ConversionConfig) isCollisionLayer(name string) bool {
	name = strings.ToLower(name)
	for _, p := range c.CollisionLayerPatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
