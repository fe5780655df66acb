package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch watches path for writes and calls onChange with the freshly
// reloaded Config whenever it changes. A read/parse error or a watcher
// error is passed to onErr (when non-nil); the watch continues regardless.
// The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(Config), onErr func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					if onErr != nil {
						onErr(err)
					}
					continue
				}
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if onErr != nil {
					onErr(err)
				}
			}
		}
	}()
	return nil
}
