package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"

	"github.com/voidshard/tiled"
)

const desc = `Converts a Tiled .json map (doc.mapeditor.org/en/stable/reference/json-map-format/) into a level.

The converted level can be written to a sqlite level database (--db), printed as JSON (--json) or both.
With --watch the map and its external tilesets are watched and the level is rebuilt each time one of
them changes.`

var cli struct {
	// map to convert
	Map string `arg:"" help:"input .json map"`

	// conversion settings
	Config string `short:"c" help:"YAML conversion config (placeholders, collision patterns, flip y ..)"`

	// outputs
	DB     string `help:"write the level into this sqlite database (created if missing, merged into if present)"`
	JSON   bool   `help:"print the converted level as JSON"`
	Output string `short:"o" help:"write JSON here rather than stdout (implies --json)"`

	Watch   bool `short:"w" help:"rebuild the level whenever the map or it's tilesets change"`
	Verbose bool `short:"v" help:"debug logging"`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("tiledconv"), kong.Description(desc))

	log := newLogger(cli.Verbose)

	mapfile, err := homedir.Expand(cli.Map)
	ctx.FatalIfErrorf(err)

	cfg := tiled.DefaultConfig()
	if cli.Config != "" {
		cfgfile, err := homedir.Expand(cli.Config)
		ctx.FatalIfErrorf(err)

		cfg, err = tiled.LoadConfig(cfgfile)
		ctx.FatalIfErrorf(err)
	}

	loader := tiled.NewLoader()
	loader.Log = log

	conv := tiled.NewConverter()
	conv.Log = log

	m, err := build(log, loader, conv, mapfile, cfg)
	ctx.FatalIfErrorf(err)

	if !cli.Watch {
		return
	}

	w, err := tiled.NewWatcher(m, loader.Cache)
	ctx.FatalIfErrorf(err)
	defer w.Close()

	log.Info().Strs("files", w.Files()).Msg("watching for changes")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	for {
		select {
		case changed, ok := <-w.Events:
			if !ok {
				return
			}
			log.Info().Str("file", changed).Msg("changed, rebuilding")

			m, err := build(log, loader, conv, mapfile, cfg)
			if err != nil {
				log.Error().Err(err).Msg("rebuild failed")
				continue
			}
			if err := w.Watch(m); err != nil {
				log.Error().Err(err).Msg("failed to update watched files")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watch error")
		case <-sig:
			return
		}
	}
}

// build loads, converts & writes out the level. Returns the loaded map.
func build(log zerolog.Logger, loader *tiled.Loader, conv *tiled.Converter, mapfile string, cfg *tiled.ConversionConfig) (*tiled.TiledMap, error) {
	m, err := loader.LoadFile(mapfile)
	if err != nil {
		return nil, err
	}

	level, err := conv.Convert(m, *cfg)
	if err != nil {
		return nil, err
	}

	for _, w := range level.Warnings {
		log.Debug().Msg(w.String())
	}
	log.Info().
		Str("map", mapfile).
		Int("tilelayers", len(level.TileLayers)).
		Int("entities", len(level.Entities)).
		Int("warnings", len(level.Warnings)).
		Msg("converted")

	if cli.DB != "" {
		err = save(cli.DB, level)
		if err != nil {
			return nil, err
		}
		log.Info().Str("db", cli.DB).Msg("saved level")
	}

	if cli.JSON || cli.Output != "" {
		data, err := json.MarshalIndent(level, "", "  ")
		if err != nil {
			return nil, err
		}

		if cli.Output == "" {
			fmt.Println(string(data))
		} else {
			out, err := homedir.Expand(cli.Output)
			if err != nil {
				return nil, err
			}
			err = ioutil.WriteFile(out, data, 0644)
			if err != nil {
				return nil, err
			}
			log.Info().Str("file", out).Msg("wrote level json")
		}
	}

	return m, nil
}

func save(dbfile string, level *tiled.LevelDefinition) error {
	dbfile, err := homedir.Expand(dbfile)
	if err != nil {
		return err
	}

	store, err := tiled.OpenLevelStore(dbfile)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(level)
}

func newLogger(verbose bool) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
