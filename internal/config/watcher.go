package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Watcher hot-reloads loop count and org allowlist from a YAML file. It is
// the engine's binding of a key/value store with a change-notification
// channel: viper's OnConfigChange callback is reduced to the one path the
// engine reacts to, count, everything else in the file is read but ignored.
type Watcher struct {
	v     *viper.Viper
	store snapshotStore

	onCountChange func(n int)
}

// NewWatcher loads path (if it exists) and returns a Watcher primed with its
// initial values, falling back to defaultCount/defaultAllowlist when the
// file is absent or a key is missing.
func NewWatcher(path string, defaultCount int, defaultAllowlist []string) *Watcher {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("count", defaultCount)
	v.SetDefault("org_allowlist", defaultAllowlist)

	w := &Watcher{v: v}
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config: watch file not found, using defaults")
	}
	w.store.set(w.readSnapshot())
	return w
}

// Watch starts observing the file for changes. OnCountChange (if set before
// calling Watch) fires whenever /count under the file's namespace changes.
func (w *Watcher) Watch() {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		prev := w.store.get()
		next := w.readSnapshot()
		w.store.set(next)

		if next.LoopCount != prev.LoopCount {
			log.Info().Int("from", prev.LoopCount).Int("to", next.LoopCount).Msg("config: /count changed")
			if w.onCountChange != nil {
				w.onCountChange(next.LoopCount)
			}
		}
	})
	w.v.WatchConfig()
}

// OnCountChange registers the callback invoked when the loop count changes.
// It must be set before Watch is called to observe the first reload.
func (w *Watcher) OnCountChange(fn func(n int)) {
	w.onCountChange = fn
}

// Current returns the most recently observed snapshot.
func (w *Watcher) Current() Snapshot {
	return w.store.get()
}

func (w *Watcher) readSnapshot() Snapshot {
	return Snapshot{
		LoopCount:    w.v.GetInt("count"),
		OrgAllowlist: normalizeAllowlist(w.v.GetStringSlice("org_allowlist")),
	}
}

func normalizeAllowlist(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
