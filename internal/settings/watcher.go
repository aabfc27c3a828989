package settings

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the settings file for changes and swaps the active
// snapshot in the store when it is rewritten.
type Watcher struct {
	store       *Store
	path        string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	onReload    func(Settings)
}

// NewWatcher creates a watcher for the given settings file path.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:    store,
		path:     path,
		watcher:  fsw,
		stopChan: make(chan struct{}),
	}

	if stat, err := os.Stat(path); err == nil {
		w.lastModTime = stat.ModTime()
	}

	return w, nil
}

// SetReloadCallback registers a function invoked with every applied snapshot.
func (w *Watcher) SetReloadCallback(fn func(Settings)) {
	w.onReload = fn
}

// Start begins watching the settings file's directory. If the directory
// cannot be watched the watcher falls back to polling.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch settings directory, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("path", w.path).Msg("Started watching settings file for changes")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

// Reload manually triggers a reload (e.g. from SIGHUP).
func (w *Watcher) Reload() {
	w.reload()
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) && event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce so the write completes before we read.
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected settings file change")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Settings watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if stat.ModTime().After(w.lastModTime) {
				w.lastModTime = stat.ModTime()
				log.Info().Msg("Detected settings file change via polling")
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	env, err := godotenv.Read(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", w.path).Msg("Failed to read settings file")
			return
		}
		env = map[string]string{}
	}

	next := FromEnv(env)
	w.store.Replace(next)

	log.Info().
		Dur("alertBackoffMillis", next.AlertBackoffMillis).
		Int("alertBackoffCount", next.AlertBackoffCount).
		Dur("moveAlertsBackoffMillis", next.MoveAlertsBackoffMillis).
		Int("moveAlertsBackoffCount", next.MoveAlertsBackoffCount).
		Strs("allowList", next.AllowList).
		Int("hostDenyListSize", len(next.HostDenyList)).
		Bool("snsEnabled", next.AWS.SNSEnabled).
		Msg("Applied settings file changes to runtime config")

	if w.onReload != nil {
		w.onReload(next)
	}
}

// Load reads the settings file once at startup.
func Load(path string) Settings {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read settings file, using defaults")
		}
		return Default()
	}
	return FromEnv(env)
}
