package main

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fogleman/gg"
	"github.com/mitchellh/go-homedir"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/voidshard/tiled"
)

const desc = `Draws a preview png of a region of a level database (as written by tiledconv --db).

Tiles are drawn as rectangles (diamonds on isometric levels) coloured by tileset, entities as
outlines / markers. It's meant for checking a conversion, not for rendering sprites.`

var cli struct {
	// where to find input database file
	Input  string `short:"i" help:"input level database file (required)"`
	Output string `short:"o" help:"where to write output .png. Defaults to input + coords + .png. Overwrites output file if it exists."`

	// z levels to draw, everything if not given
	Z []int `short:"z" help:"z levels to draw (default: all)"`

	// region, if all zero the whole level is drawn
	X0 int `default:"0" help:"x coord of region, top left corner (tiles)"`
	Y0 int `default:"0" help:"y coord of region, top left corner (tiles)"`
	X1 int `default:"0" help:"x coord of region, bottom right corner (tiles, inclusive)"`
	Y1 int `default:"0" help:"y coord of region, bottom right corner (tiles, inclusive)"`

	MaxWidth   uint `help:"scale the output down to at most this many pixels wide (0: no scaling)"`
	NoEntities bool `help:"don't draw entities"`

	Verbose bool `short:"v" help:"debug logging"`
}

// colours per tileset index
var palette = [][3]float64{
	{0.40, 0.65, 0.35},
	{0.55, 0.45, 0.30},
	{0.35, 0.50, 0.75},
	{0.70, 0.70, 0.40},
	{0.60, 0.35, 0.60},
	{0.45, 0.70, 0.70},
	{0.75, 0.50, 0.35},
	{0.50, 0.50, 0.50},
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("level-render"), kong.Description(desc))

	lvl := zerolog.InfoLevel
	if cli.Verbose {
		lvl = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	if cli.Input == "" {
		ctx.Fatalf("input file required")
	}
	input, err := homedir.Expand(cli.Input)
	ctx.FatalIfErrorf(err)

	if !fileExists(input) {
		ctx.Fatalf("input file not found: %s", input)
	}

	store, err := tiled.OpenLevelStore(input)
	ctx.FatalIfErrorf(err)
	defer store.Close()

	info, err := store.Info()
	ctx.FatalIfErrorf(err)

	region := tiled.TileBounds{
		Min: tiled.TileCoord{X: cli.X0, Y: cli.Y0},
		Max: tiled.TileCoord{X: cli.X1, Y: cli.Y1},
	}
	if cli.X0 == 0 && cli.Y0 == 0 && cli.X1 == 0 && cli.Y1 == 0 {
		region, err = store.Bounds()
		ctx.FatalIfErrorf(err)
		if region.Empty {
			ctx.Fatalf("level has no tiles")
		}
	}
	if region.Max.X < region.Min.X || region.Max.Y < region.Min.Y {
		ctx.Fatalf("requested region invalid, unable to render level")
	}

	zlevels := cli.Z
	if len(zlevels) == 0 {
		zlevels, err = store.ZLevels()
		ctx.FatalIfErrorf(err)
	}

	r := newRenderer(info, region)
	for _, z := range zlevels {
		tiles, err := store.TilesIn(z, region.Min, region.Max)
		ctx.FatalIfErrorf(err)

		log.Debug().Int("z", z).Int("tiles", len(tiles)).Msg("drawing z level")
		for _, t := range tiles {
			r.tile(t)
		}
	}

	if !cli.NoEntities {
		min, max := r.pixelRegion()
		entities, err := store.Entities(min, max)
		ctx.FatalIfErrorf(err)

		log.Debug().Int("entities", len(entities)).Msg("drawing entities")
		for _, e := range entities {
			r.entity(e)
		}
	}

	if cli.Output == "" {
		cli.Output = fmt.Sprintf("%s_%d.%d_%d.%d.png", input, region.Min.X, region.Min.Y, region.Max.X, region.Max.Y)
	}
	output, err := homedir.Expand(cli.Output)
	ctx.FatalIfErrorf(err)

	ctx.FatalIfErrorf(write(output, r.dc.Image(), cli.MaxWidth))
	log.Info().Str("file", output).Msg("wrote preview")
}

// renderer draws one region of a level
type renderer struct {
	info   *tiled.StoreInfo
	region tiled.TileBounds
	dc     *gg.Context

	// screen position of the region's origin (isometric only)
	origin tiled.PixelCoord
}

func newRenderer(info *tiled.StoreInfo, region tiled.TileBounds) *renderer {
	w := region.Max.X - region.Min.X + 1
	h := region.Max.Y - region.Min.Y + 1

	r := &renderer{info: info, region: region}
	if info.Orientation == tiled.Isometric {
		// the diamond of a w x h region is (w+h) half tiles wide & high
		r.dc = gg.NewContext((w+h)*info.TileWidth/2, (w+h)*info.TileHeight/2)
		top := tiled.TileToScreen(region.Min, info.TileWidth, info.TileHeight)
		r.origin = tiled.PixelCoord{X: top.X - float64(h*info.TileWidth)/2, Y: top.Y}
	} else {
		r.dc = gg.NewContext(w*info.TileWidth, h*info.TileHeight)
	}

	r.dc.SetRGB(0.1, 0.1, 0.12)
	r.dc.Clear()
	r.dc.SetLineWidth(1)

	return r
}

// pixelRegion is the region in entity (pixel) space
func (r *renderer) pixelRegion() (tiled.PixelCoord, tiled.PixelCoord) {
	tw, th := float64(r.info.TileWidth), float64(r.info.TileHeight)
	if r.info.Orientation == tiled.Isometric {
		// isometric objects are measured in tile heights along both axes
		return tiled.PixelCoord{X: float64(r.region.Min.X) * th, Y: float64(r.region.Min.Y) * th},
			tiled.PixelCoord{X: float64(r.region.Max.X+1) * th, Y: float64(r.region.Max.Y+1) * th}
	}

	min := tiled.PixelCoord{X: float64(r.region.Min.X) * tw, Y: float64(r.region.Min.Y) * th}
	max := tiled.PixelCoord{X: float64(r.region.Max.X+1) * tw, Y: float64(r.region.Max.Y+1) * th}
	if r.info.FlipY {
		min.Y, max.Y = r.info.PixelHeight-max.Y, r.info.PixelHeight-min.Y
	}
	return min, max
}

func (r *renderer) setColour(tileset int, alpha float64) {
	c := palette[0]
	if tileset >= 0 {
		c = palette[tileset%len(palette)]
	}
	r.dc.SetRGBA(c[0], c[1], c[2], alpha)
}

func (r *renderer) tile(t tiled.TilePlacement) {
	tw, th := float64(r.info.TileWidth), float64(r.info.TileHeight)
	rel := tiled.TileCoord{X: t.World.X - r.region.Min.X, Y: t.World.Y - r.region.Min.Y}

	r.setColour(t.Tileset, 0.85)
	if r.info.Orientation == tiled.Isometric {
		top := tiled.TileToScreen(t.World, r.info.TileWidth, r.info.TileHeight)
		x := top.X - r.origin.X + t.Offset.X
		y := top.Y - r.origin.Y + t.Offset.Y
		r.dc.MoveTo(x, y)
		r.dc.LineTo(x+tw/2, y+th/2)
		r.dc.LineTo(x, y+th)
		r.dc.LineTo(x-tw/2, y+th/2)
		r.dc.ClosePath()
	} else {
		r.dc.DrawRectangle(float64(rel.X)*tw+t.Offset.X, float64(rel.Y)*th+t.Offset.Y, tw, th)
	}
	r.dc.FillPreserve()
	r.dc.SetRGBA(0, 0, 0, 0.3)
	r.dc.Stroke()

	if t.Flip.Any() && r.info.Orientation != tiled.Isometric {
		// mark flipped tiles with a diagonal
		r.dc.SetRGBA(1, 1, 1, 0.5)
		x, y := float64(rel.X)*tw, float64(rel.Y)*th
		r.dc.DrawLine(x, y, x+tw, y+th)
		r.dc.Stroke()
	}
}

// screen returns where an entity position lands in the image
func (r *renderer) screen(p tiled.PixelCoord) (float64, float64) {
	tw, th := float64(r.info.TileWidth), float64(r.info.TileHeight)
	if r.info.Orientation == tiled.Isometric {
		// tile space position (fractional) projected like a tile
		tx, ty := p.X/th, p.Y/th
		x := (tx-ty)*tw/2 - r.origin.X
		y := (tx+ty)*th/2 - r.origin.Y
		return x, y
	}
	if r.info.FlipY {
		p.Y = r.info.PixelHeight - p.Y
	}
	return p.X - float64(r.region.Min.X)*tw, p.Y - float64(r.region.Min.Y)*th
}

func (r *renderer) entity(e *tiled.EntityPlacement) {
	x, y := r.screen(e.Position)

	if e.Collision {
		r.dc.SetRGBA(0.9, 0.2, 0.2, 0.9)
	} else if e.Unmapped {
		r.dc.SetRGBA(0.9, 0.9, 0.9, 0.9)
	} else {
		r.dc.SetRGBA(0.95, 0.8, 0.2, 0.9)
	}

	switch e.Shape {
	case tiled.ShapePolygon, tiled.ShapePolyline:
		for i, p := range e.Points {
			py := p.Y
			if r.info.FlipY && r.info.Orientation != tiled.Isometric {
				py = -py
			}
			if i == 0 {
				r.dc.MoveTo(x+p.X, y+py)
			} else {
				r.dc.LineTo(x+p.X, y+py)
			}
		}
		if e.Shape == tiled.ShapePolygon {
			r.dc.ClosePath()
		}
		r.dc.Stroke()
	case tiled.ShapeRectangle, tiled.ShapeText:
		if r.info.Orientation != tiled.Isometric && e.Width > 0 && e.Height > 0 {
			r.dc.DrawRectangle(x, y, e.Width, e.Height)
			r.dc.Stroke()
			return
		}
		r.dc.DrawCircle(x, y, 3)
		r.dc.Fill()
	case tiled.ShapeEllipse:
		r.dc.DrawEllipse(x+e.Width/2, y+e.Height/2, e.Width/2, e.Height/2)
		r.dc.Stroke()
	case tiled.ShapeTile:
		// tile objects are anchored bottom left
		r.dc.DrawRectangle(x, y-e.Height, e.Width, e.Height)
		r.dc.Stroke()
	default:
		r.dc.DrawCircle(x, y, 3)
		r.dc.Fill()
	}
}

// write saves `img` as a png, first scaling it down to `maxWidth` if set
func write(output string, img image.Image, maxWidth uint) error {
	if maxWidth > 0 && uint(img.Bounds().Dx()) > maxWidth {
		img = resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}

// fileExists checks if file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
