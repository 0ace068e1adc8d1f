package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the configuration files and invokes the supplied callback
// whenever a reload produces a valid snapshot. Stop must be called to release
// filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch wires fsnotify around the files that contributed to cfg and reloads the
// whole configuration on change. Invalid snapshots are reported through onError
// and the previous snapshot stays active.
func (l *Loader) Watch(ctx context.Context, cfg Config, onChange func(Config), onError func(error)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch requires a change callback")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("config: no configuration files to watch")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch: %w", err)
	}

	targets := make(map[string]struct{}, len(cfg.Sources))
	dirs := make(map[string]struct{})
	for _, source := range cfg.Sources {
		resolved := source
		if abs, err := filepath.Abs(source); err == nil {
			resolved = abs
		}
		resolved = filepath.Clean(resolved)
		targets[resolved] = struct{}{}
		dir := filepath.Dir(resolved)
		if _, ok := dirs[dir]; ok {
			continue
		}
		// Watch the directory so editors that replace the file are observed.
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			cancel()
			return nil, fmt.Errorf("config: watch add %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	done := make(chan struct{})
	watch := &Watcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch close: %w", err))
			}
		}()

		reload := func() {
			next, err := l.Load(watchCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(next)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		flushTimer := func() {
			if reloadTimer == nil {
				return
			}
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadSignal = nil
		}
		defer flushTimer()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				flushTimer()
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, tracked := targets[filepath.Clean(event.Name)]; !tracked {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
