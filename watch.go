package tiled

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long a file must go without events before it's reported
// (editors tend to write a file in several steps)
const debounce = 100 * time.Millisecond

// Watcher reports when a map or any of its external tilesets change on disk.
//
// Changed tilesets are dropped from the cache before the change is reported
// so the next load of the map reads them again.
type Watcher struct {
	// Events receives the absolute path of each changed file
	Events chan string
	Errors chan error

	watcher *fsnotify.Watcher
	cache   *TilesetCache

	lock    sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewWatcher watches the files `m` was built from. `cache` may be nil.
func NewWatcher(m *TiledMap, cache *TilesetCache) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		Events:  make(chan string, 16),
		Errors:  make(chan error, 1),
		watcher: fw,
		cache:   cache,
		files:   map[string]bool{},
		dirs:    map[string]bool{},
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := w.Watch(m); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Watch replaces the set of watched files with the dependencies of `m`.
// Call it after reloading a map, it may have gained or lost tilesets.
func (w *Watcher) Watch(m *TiledMap) error {
	files := map[string]bool{}
	for _, dep := range m.Dependencies() {
		files[cacheKey(dep)] = true
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	// we watch directories rather than files, saving via a rename would
	// otherwise lose the watch
	for f := range files {
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files = files

	return nil
}

// Files returns the watched files
func (w *Watcher) Files() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	out := []string{}
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Close stops watching & closes Events and Errors
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.doneCh
		close(w.Events)
		close(w.Errors)
	})
	return err
}

func (w *Watcher) watching(path string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.files[path]
}

// settle is sent by a path's timer once no event has arrived for it in
// `debounce`. Timers replaced by a later event carry a stale gen.
type settle struct {
	path string
	gen  int
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	settled := make(chan settle)
	timers := map[string]*time.Timer{}
	gens := map[string]int{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			path := cacheKey(event.Name)
			if !w.watching(path) {
				continue
			}

			if t, ok := timers[path]; ok {
				t.Stop()
			}
			gens[path]++
			s := settle{path: path, gen: gens[path]}
			timers[path] = time.AfterFunc(debounce, func() {
				select {
				case settled <- s:
				case <-w.closeCh:
				}
			})
		case s := <-settled:
			if gens[s.path] != s.gen {
				continue
			}
			delete(timers, s.path)

			if w.cache != nil {
				w.cache.Forget(s.path)
			}

			select {
			case w.Events <- s.path:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.closeCh:
				return
			}
		case <-w.closeCh:
			return
		}
	}
}
