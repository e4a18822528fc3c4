// Package watch reports changes to a single file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 150 * time.Millisecond

// File watches path until ctx is cancelled and calls onChange once per
// burst of writes. The parent directory is watched rather than the file so
// that editors which save by renaming a temporary file are still seen.
func File(ctx context.Context, path string, debounce time.Duration, logger *logrus.Logger, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: resolving %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch: adding %s: %w", filepath.Dir(abs), err)
	}
	log := logger.WithField("path", abs)
	log.Info("watcher: started")

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Info("watcher: stopped")
			return nil

		case <-fire:
			log.Debug("watcher: changed")
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(werr).Error("watcher: error")
		}
	}
}
