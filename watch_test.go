package tiled

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchedMap(t *testing.T) (string, string, *Loader, *TiledMap) {
	dir := t.TempDir()
	tsPath := writeJSON(t, dir, "terrain.json", externalTileset(16))

	d := orthoMap(2, 2, tileLayerDoc("ground", 2, 2, filled(4, 1)))
	d["tilesets"] = []doc{{"firstgid": 1, "source": "terrain.json"}}
	mapPath := writeJSON(t, dir, "level.json", d)

	loader := NewLoader()
	m, err := loader.LoadFile(mapPath)
	require.NoError(t, err)

	return mapPath, tsPath, loader, m
}

func nextEvent(t *testing.T, w *Watcher) string {
	select {
	case path := <-w.Events:
		return path
	case err := <-w.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change")
	}
	return ""
}

func TestWatcherTilesetChange(t *testing.T) {
	mapPath, tsPath, loader, m := watchedMap(t)

	w, err := NewWatcher(m, loader.Cache)
	require.NoError(t, err)
	defer w.Close()

	assert.ElementsMatch(t, []string{mapPath, tsPath}, w.Files())
	require.True(t, loader.Cache.Contains(tsPath))

	writeJSON(t, "", tsPath, externalTileset(32))

	assert.Equal(t, tsPath, nextEvent(t, w))
	assert.False(t, loader.Cache.Contains(tsPath))

	m, err = loader.LoadFile(mapPath)
	require.NoError(t, err)
	assert.Equal(t, 32, m.Tilesets[0].TileCount)
}

func TestWatcherMapChange(t *testing.T) {
	mapPath, _, loader, m := watchedMap(t)

	w, err := NewWatcher(m, loader.Cache)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Dir(mapPath), "unrelated.txt", []byte("x"))
	writeJSON(t, "", mapPath, orthoMap(1, 1, tileLayerDoc("ground", 1, 1, filled(1, 1))))

	assert.Equal(t, mapPath, nextEvent(t, w))
}

func TestWatcherClose(t *testing.T) {
	_, _, loader, m := watchedMap(t)

	w, err := NewWatcher(m, loader.Cache)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, ok := <-w.Events
	assert.False(t, ok)
}

func TestWatcherReportsSettledFile(t *testing.T) {
	mapPath, tsPath, loader, m := watchedMap(t)

	w, err := NewWatcher(m, loader.Cache)
	require.NoError(t, err)
	defer w.Close()

	// several quick writes are one change, reported after the last
	for _, count := range []int{20, 24, 28} {
		writeJSON(t, "", tsPath, externalTileset(count))
	}

	assert.Equal(t, tsPath, nextEvent(t, w))

	m, err = loader.LoadFile(mapPath)
	require.NoError(t, err)
	assert.Equal(t, 28, m.Tilesets[0].TileCount)

	select {
	case path := <-w.Events:
		t.Fatalf("unexpected second change: %s", path)
	case <-time.After(3 * debounce):
	}
}
