package serial

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// removalWatcher tears down connections whose device node disappears, which
// is how an unplugged USB adapter shows up before any read fails.
type removalWatcher struct {
	r   *Registry
	w   *fsnotify.Watcher
	log zerolog.Logger

	mu   sync.Mutex
	refs map[string]int // watched directory -> open paths inside it

	done chan struct{}
}

// WatchRemovals starts watching the directories of open device paths. A
// removed or renamed node tears its connection down with ErrDeviceNotFound
// as the cause. Calling it again is a no-op.
func (r *Registry) WatchRemovals() error {
	if r.watcher.Load() != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch removals: %w", err)
	}
	rw := &removalWatcher{
		r:    r,
		w:    fw,
		log:  r.log.With().Str("component", "hotplug").Logger(),
		refs: make(map[string]int),
		done: make(chan struct{}),
	}
	if !r.watcher.CompareAndSwap(nil, rw) {
		fw.Close()
		return nil
	}
	go rw.run()

	for _, p := range r.ManagedPortList() {
		rw.add(p)
	}
	return nil
}

func (rw *removalWatcher) add(path string) {
	dir := filepath.Dir(filepath.Clean(path))
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.refs[dir] == 0 {
		if err := rw.w.Add(dir); err != nil {
			rw.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch device directory")
			return
		}
	}
	rw.refs[dir]++
}

func (rw *removalWatcher) remove(path string) {
	dir := filepath.Dir(filepath.Clean(path))
	rw.mu.Lock()
	defer rw.mu.Unlock()
	n, ok := rw.refs[dir]
	if !ok {
		return
	}
	if n > 1 {
		rw.refs[dir] = n - 1
		return
	}
	delete(rw.refs, dir)
	_ = rw.w.Remove(dir)
}

func (rw *removalWatcher) run() {
	defer close(rw.done)
	for {
		select {
		case ev, ok := <-rw.w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				rw.r.deviceRemoved(filepath.Clean(ev.Name))
			}
		case err, ok := <-rw.w.Errors:
			if !ok {
				return
			}
			rw.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (rw *removalWatcher) close() error {
	err := rw.w.Close()
	<-rw.done
	return err
}

// deviceRemoved tears down the connection on the node at path, if any.
func (r *Registry) deviceRemoved(path string) {
	r.mu.Lock()
	var key string
	var target *entry
	for p, e := range r.entries {
		if e.conn != nil && filepath.Clean(p) == path {
			key, target = p, e
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return
	}

	r.log.Warn().Str("path", key).Msg("device node removed")
	cause := &PortError{Op: "watch", Path: key, Kind: ErrDeviceNotFound, Err: fmt.Errorf("device removed")}
	go r.teardown(key, target, cause)
}
